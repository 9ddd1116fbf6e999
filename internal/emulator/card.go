// Package emulator simulates a MIFARE Classic card behind a reader, for dry
// runs of the attack without hardware and for tests.
//
// Nonce captures are synthetic: they encode the target key so that the
// matching Solver can "recover" it, together with a decoy candidate that the
// attack has to reject.
package emulator

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/barnettlynn/mfcrack/pkg/mifare"
)

// DefaultDistance is the nonce distance reported by TestNonceDistance.
const DefaultDistance = 0x0000012C

type faultKey struct {
	op    string
	block int
}

// Card is an emulated card. It implements mifare.Device and
// mifare.MagicDetector. Not safe for concurrent use.
type Card struct {
	info     mifare.CardInfo
	blocks   [][]byte
	Distance uint32
	Magic    bool

	faults map[faultKey]error
	calls  map[string]int
}

// New builds a card from raw blocks. The block count selects the layout.
func New(info mifare.CardInfo, blocks [][]byte) (*Card, error) {
	switch len(blocks) {
	case mifare.CardTypeMini.BlockCount():
		info.Type = mifare.CardTypeMini
	case mifare.CardType1K.BlockCount():
		info.Type = mifare.CardType1K
	case mifare.CardType4K.BlockCount():
		info.Type = mifare.CardType4K
	default:
		return nil, fmt.Errorf("unsupported block count %d", len(blocks))
	}
	c := &Card{
		info:     info,
		blocks:   make([][]byte, len(blocks)),
		Distance: DefaultDistance,
		faults:   make(map[faultKey]error),
		calls:    make(map[string]int),
	}
	for i, b := range blocks {
		if len(b) != mifare.BlockSize {
			return nil, fmt.Errorf("block %d: expected %d bytes, got %d", i, mifare.BlockSize, len(b))
		}
		c.blocks[i] = append([]byte{}, b...)
	}
	return c, nil
}

// Load parses a hex dump (one 32-character line per block) and derives
// UID, SAK and ATQA from the manufacturer block.
func Load(r io.Reader, prng mifare.PRNGType) (*Card, error) {
	var blocks [][]byte
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		b, err := hex.DecodeString(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		blocks = append(blocks, b)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("dump is empty")
	}

	b0 := blocks[0]
	if len(b0) != mifare.BlockSize {
		return nil, fmt.Errorf("block 0: expected %d bytes, got %d", mifare.BlockSize, len(b0))
	}
	info := mifare.CardInfo{
		UID:  append([]byte{}, b0[0:4]...),
		SAK:  b0[5],
		ATQA: []byte{b0[7], b0[6]},
		PRNG: prng,
	}
	return New(info, blocks)
}

// LoadFile reads a hex dump from disk.
func LoadFile(path string, prng mifare.PRNGType) (*Card, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Load(bytes.NewReader(content), prng)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// FailOn makes every call of op against block return err. A block of -1
// matches every block.
func (c *Card) FailOn(op string, block int, err error) {
	c.faults[faultKey{op, block}] = err
}

// Calls returns how many times op was invoked.
func (c *Card) Calls(op string) int {
	return c.calls[op]
}

func (c *Card) enter(op string, block int) error {
	c.calls[op]++
	err, ok := c.faults[faultKey{op, block}]
	if !ok {
		err, ok = c.faults[faultKey{op, -1}]
	}
	if ok {
		return &mifare.DeviceError{Op: op, Block: block, Cause: err}
	}
	if block >= len(c.blocks) {
		return &mifare.DeviceError{Op: op, Block: block, Cause: &mifare.StatusError{Cmd: 0x86, SW: mifare.SWBlockNotFound}}
	}
	return nil
}

// SectorKey returns the real key of a sector as stored in its trailer.
func (c *Card) SectorKey(sector int, keyType mifare.KeyType) mifare.Key {
	var k mifare.Key
	trailer := c.blocks[mifare.TrailerBlock(sector)]
	if keyType == mifare.KeyA {
		copy(k[:], trailer[0:6])
	} else {
		copy(k[:], trailer[10:16])
	}
	return k
}

func (c *Card) authenticates(block int, keyType mifare.KeyType, key mifare.Key) bool {
	return c.SectorKey(mifare.SectorOf(block), keyType) == key
}

func (c *Card) Identify() (*mifare.CardInfo, error) {
	if err := c.enter(mifare.OpIdentify, -1); err != nil {
		return nil, err
	}
	info := c.info
	return &info, nil
}

func (c *Card) CheckGen1a() (bool, error) {
	return c.Magic, nil
}

func (c *Card) CheckBlockKey(block int, keyType mifare.KeyType, key mifare.Key) (bool, error) {
	if err := c.enter(mifare.OpCheckBlockKey, block); err != nil {
		return false, err
	}
	return c.authenticates(block, keyType, key), nil
}

// ReadBlock returns block contents. Trailer reads mask both keys with
// zeros, as readers never return key A and key B is usually protected.
func (c *Card) ReadBlock(block int, keyType mifare.KeyType, key mifare.Key) ([]byte, error) {
	if err := c.enter(mifare.OpReadBlock, block); err != nil {
		return nil, err
	}
	if !c.authenticates(block, keyType, key) {
		return nil, &mifare.DeviceError{Op: mifare.OpReadBlock, Block: block, Cause: &mifare.StatusError{Cmd: 0x86, SW: mifare.SWAuthFailed}}
	}
	data := append([]byte{}, c.blocks[block]...)
	if mifare.IsTrailer(block) {
		copy(data[0:6], make([]byte, 6))
		copy(data[10:16], make([]byte, 6))
	}
	return data, nil
}

func (c *Card) TestNonceDistance(known mifare.AuthTarget) (*mifare.NonceDistance, error) {
	if err := c.enter(mifare.OpTestNonceDistance, known.Block); err != nil {
		return nil, err
	}
	if !c.authenticates(known.Block, known.KeyType, known.Key) {
		return nil, &mifare.DeviceError{Op: mifare.OpTestNonceDistance, Block: known.Block, Cause: &mifare.StatusError{Cmd: 0x86, SW: mifare.SWAuthFailed}}
	}
	return &mifare.NonceDistance{UID: c.info.UID32(), Distance: c.Distance}, nil
}

func (c *Card) AcquireNested(known, target mifare.AuthTarget) ([]mifare.NestedCapture, error) {
	return c.acquire(mifare.OpAcquireNested, mifare.PRNGWeak, 2, known, target)
}

func (c *Card) AcquireStaticNested(known, target mifare.AuthTarget) ([]mifare.NestedCapture, error) {
	return c.acquire(mifare.OpAcquireStaticNested, mifare.PRNGStatic, 1, known, target)
}

func (c *Card) acquire(op string, want mifare.PRNGType, n int, known, target mifare.AuthTarget) ([]mifare.NestedCapture, error) {
	if err := c.enter(op, target.Block); err != nil {
		return nil, err
	}
	if c.info.PRNG != want {
		return nil, &mifare.DeviceError{Op: op, Block: target.Block, Cause: mifare.ErrUnsupportedPRNG}
	}
	if !c.authenticates(known.Block, known.KeyType, known.Key) {
		return nil, &mifare.DeviceError{Op: op, Block: known.Block, Cause: &mifare.StatusError{Cmd: 0x86, SW: mifare.SWAuthFailed}}
	}
	key := c.SectorKey(mifare.SectorOf(target.Block), target.KeyType)
	captures := make([]mifare.NestedCapture, 0, n)
	for i := 0; i < n; i++ {
		captures = append(captures, encodeCapture(c.info.UID32(), c.Distance, key, i))
	}
	return captures, nil
}
