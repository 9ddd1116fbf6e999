package mifare

import (
	"fmt"
	"io"
	"strings"
)

// UnknownBlock is the dump line emitted for an unreadable block.
var UnknownBlock = strings.Repeat("?", 2*BlockSize)

// WriteHexDump writes one 32-character line per block.
func WriteHexDump(w io.Writer, lines []string) error {
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// WriteFlipperNFC writes the dump in Flipper Zero NFC device format.
// Unknown bytes ("??" pairs in the dump lines) are kept as "??".
func WriteFlipperNFC(w io.Writer, info *CardInfo, lines []string) error {
	var mfSize string
	switch info.Type {
	case CardTypeMini:
		mfSize = "MINI"
	case CardType4K:
		mfSize = "4K"
	default:
		mfSize = "1K"
	}

	var sb strings.Builder
	sb.WriteString("Filetype: Flipper NFC device\n")
	sb.WriteString("Version: 2\n")
	sb.WriteString("# Nfc device type can be UID, Mifare Ultralight, Mifare Classic, Bank card\n")
	sb.WriteString("Device type: Mifare Classic\n")
	sb.WriteString("# UID, ATQA and SAK are common for all formats\n")
	fmt.Fprintf(&sb, "UID: %s\n", spacedHex(hexUpper(info.UID)))
	fmt.Fprintf(&sb, "ATQA: %s\n", spacedHex(hexUpper(info.ATQA)))
	fmt.Fprintf(&sb, "SAK: %02X\n", info.SAK)
	sb.WriteString("# Mifare Classic specific data\n")
	fmt.Fprintf(&sb, "Mifare Classic type: %s\n", mfSize)
	sb.WriteString("Data format version: 2\n")
	sb.WriteString("# Mifare Classic blocks, '??' means unknown data\n")
	for i, line := range lines {
		fmt.Fprintf(&sb, "Block %d: %s\n", i, spacedHex(line))
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// spacedHex splits a hex string into space-separated byte pairs.
func spacedHex(s string) string {
	if len(s) < 2 {
		return s
	}
	pairs := make([]string, 0, len(s)/2)
	for i := 0; i+1 < len(s); i += 2 {
		pairs = append(pairs, s[i:i+2])
	}
	return strings.Join(pairs, " ")
}

// WriteKeyList writes keys in wordlist format so the file can seed the
// dictionary of a later run.
func WriteKeyList(w io.Writer, keys []Key) error {
	if _, err := fmt.Fprintln(w, "# recovered keys"); err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := fmt.Fprintln(w, k.String()); err != nil {
			return err
		}
	}
	return nil
}
