package mifare

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// BlockSize is the size of a MIFARE Classic block in bytes.
const BlockSize = 16

// CardType identifies the memory layout of a MIFARE Classic card.
type CardType int

const (
	CardTypeUnknown CardType = iota
	CardTypeMini
	CardType1K
	CardType4K
)

func (t CardType) String() string {
	switch t {
	case CardTypeMini:
		return "MIFARE Mini"
	case CardType1K:
		return "MIFARE Classic 1K"
	case CardType4K:
		return "MIFARE Classic 4K"
	default:
		return "Unknown"
	}
}

// SectorCount returns the number of sectors. Unknown cards are treated as 1K.
func (t CardType) SectorCount() int {
	switch t {
	case CardTypeMini:
		return 5
	case CardType4K:
		return 40
	default:
		return 16
	}
}

// BlockCount returns the total number of blocks on the card.
func (t CardType) BlockCount() int {
	return FirstBlock(t.SectorCount()-1) + SectorBlockCount(t.SectorCount()-1)
}

// CardTypeFromSAK maps the anticollision SAK byte to a card type.
// Unrecognized values fall back to 1K.
func CardTypeFromSAK(sak byte) CardType {
	switch sak {
	case 0x09:
		return CardTypeMini
	case 0x18, 0x38:
		return CardType4K
	default:
		return CardType1K
	}
}

// SectorBlockCount returns the number of blocks in a sector.
func SectorBlockCount(sector int) int {
	if sector < 32 {
		return 4
	}
	return 16
}

// FirstBlock returns the first block number of a sector.
func FirstBlock(sector int) int {
	if sector < 32 {
		return sector * 4
	}
	return 128 + (sector-32)*16
}

// TrailerBlock returns the sector trailer block number of a sector.
func TrailerBlock(sector int) int {
	return FirstBlock(sector) + SectorBlockCount(sector) - 1
}

// SectorOf returns the sector containing a block.
func SectorOf(block int) int {
	if block < 128 {
		return block / 4
	}
	return 32 + (block-128)/16
}

// IsTrailer reports whether a block is a sector trailer.
func IsTrailer(block int) bool {
	return block == TrailerBlock(SectorOf(block))
}

// PRNGType classifies the card's nonce generator.
type PRNGType int

const (
	PRNGUnknown PRNGType = iota
	PRNGWeak
	PRNGStatic
	PRNGHard
)

func (p PRNGType) String() string {
	switch p {
	case PRNGWeak:
		return "weak"
	case PRNGStatic:
		return "static"
	case PRNGHard:
		return "hard"
	default:
		return "unknown"
	}
}

// ParsePRNGType parses "weak", "static", "hard" or "unknown" (case-insensitive).
func ParsePRNGType(s string) (PRNGType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "weak":
		return PRNGWeak, nil
	case "static":
		return PRNGStatic, nil
	case "hard":
		return PRNGHard, nil
	case "unknown", "":
		return PRNGUnknown, nil
	}
	return PRNGUnknown, fmt.Errorf("unknown PRNG type %q", s)
}

// CardInfo describes the card found in the reader field.
type CardInfo struct {
	UID  []byte
	ATQA []byte
	SAK  byte
	Type CardType
	PRNG PRNGType
}

// BlockCount returns the total number of blocks on the card.
func (c *CardInfo) BlockCount() int {
	return c.Type.BlockCount()
}

// Trailers returns all sector trailer block numbers in ascending order.
func (c *CardInfo) Trailers() []int {
	n := c.Type.SectorCount()
	trailers := make([]int, 0, n)
	for s := 0; s < n; s++ {
		trailers = append(trailers, TrailerBlock(s))
	}
	return trailers
}

// UID32 returns the UID as used by Crypto1: the first four bytes, big-endian.
func (c *CardInfo) UID32() uint32 {
	var v uint32
	for i := 0; i < 4 && i < len(c.UID); i++ {
		v = v<<8 | uint32(c.UID[i])
	}
	return v
}

func hexUpper(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// PrintCardInfo prints the identification block shown before an attack.
func PrintCardInfo(c *CardInfo) {
	fmt.Printf("Type:        %s\n", c.Type)
	fmt.Printf("UID:         %s\n", hexUpper(c.UID))
	fmt.Printf("ATQA:        %s\n", hexUpper(c.ATQA))
	fmt.Printf("SAK:         %02X\n", c.SAK)
	fmt.Printf("PRNG type:   %s\n", c.PRNG)
	fmt.Printf("Block count: %d\n", c.BlockCount())
}
