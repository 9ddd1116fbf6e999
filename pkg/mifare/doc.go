/*
Package mifare models MIFARE Classic cards and the reader devices used to attack them.

It provides:
  - Card layout (Mini, 1K, 4K) with sector and trailer arithmetic
  - 6-byte sector keys, key types A/B, and dictionary (wordlist) loading
  - The Device contract implemented by readers and the emulator
  - A PC/SC implementation of the authentication and read primitives
  - Output writers (hex dump, Flipper NFC, key list) and a CBOR capture archive

# Memory Layout

Blocks are 16 bytes. Sectors 0-31 hold 4 blocks each, sectors 32-39 (4K only)
hold 16 blocks each. The last block of every sector is the sector trailer:

	Key A (6) | Access bits (3) | User byte (1) | Key B (6)

	1K:   16 sectors,  64 blocks, trailers 3, 7, 11, ... 63
	4K:   40 sectors, 256 blocks, trailers 3, 7, ... 127, 143, 159, ... 255
	Mini:  5 sectors,  20 blocks, trailers 3, 7, 11, 15, 19

Authentication is per sector: a key that authenticates any block of a sector
authenticates all of them. Readers never return Key A when the trailer is read,
and return Key B only when the access bits allow it, so a dump must substitute
the recovered keys into the trailer bytes.

# PC/SC Pseudo-APDUs

Contactless PC/SC readers (ACR122U and friends) expose MIFARE Classic through
pseudo-APDUs with CLA 0xFF:

	FF CA 00 00 00              Get UID
	FF 82 00 00 06 <key(6)>     Load key into volatile slot 0
	FF 86 00 00 05 01 00 <blk> <60|61> 00
	                            General Authenticate with slot 0 as key A/B
	FF B0 00 <blk> 10           Read 16 bytes

SW=9000 is success, SW=6300 means the key was rejected.

PC/SC readers cannot capture nested-authentication nonces, so the Connection
device returns ErrNotSupported for TestNonceDistance, AcquireNested and
AcquireStaticNested. Only keys present in the dictionary or reused across
sectors can be recovered through it.

# PRNG Classification

	PRNGWeak     nonces follow the 16-bit LFSR; nested capture yields invertible samples
	PRNGStatic   the card replays the same nonce; static-nested capture is used
	PRNGHard     hardened generator; no supported recovery strategy
	PRNGUnknown  the device could not classify the generator
*/
package mifare
