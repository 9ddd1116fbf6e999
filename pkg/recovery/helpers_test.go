package recovery

import (
	"reflect"
	"regexp"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/barnettlynn/mfcrack/internal/emulator"
	"github.com/barnettlynn/mfcrack/pkg/mifare"
)

var accessBits = []byte{0xFF, 0x07, 0x80, 0x69}

var dumpLine = regexp.MustCompile(`^[0-9A-F?]{32}$`)

func sectorKey(sector int, keyType mifare.KeyType) mifare.Key {
	if keyType == mifare.KeyA {
		return mifare.Key{0xA0, byte(sector), 0x01, 0x02, 0x03, 0x04}
	}
	return mifare.Key{0xB0, byte(sector), 0x05, 0x06, 0x07, 0x08}
}

// testBlocks builds a card image with distinct keys per sector.
func testBlocks(typ mifare.CardType) [][]byte {
	blocks := make([][]byte, typ.BlockCount())
	for i := range blocks {
		b := make([]byte, mifare.BlockSize)
		for j := range b {
			b[j] = byte(i*7 + j)
		}
		blocks[i] = b
	}
	copy(blocks[0], []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x22, 0x08, 0x04, 0x00})
	for s := 0; s < typ.SectorCount(); s++ {
		tb := blocks[mifare.TrailerBlock(s)]
		a, b := sectorKey(s, mifare.KeyA), sectorKey(s, mifare.KeyB)
		copy(tb[0:6], a[:])
		copy(tb[6:10], accessBits)
		copy(tb[10:16], b[:])
	}
	return blocks
}

func newTestCard(t *testing.T, typ mifare.CardType, prng mifare.PRNGType) (*emulator.Card, *Session) {
	t.Helper()
	info := mifare.CardInfo{UID: []byte{0xDE, 0xAD, 0xBE, 0xEF}, ATQA: []byte{0x00, 0x04}, SAK: 0x08, PRNG: prng}
	card, err := emulator.New(info, testBlocks(typ))
	if err != nil {
		t.Fatalf("emulator.New: %v", err)
	}
	got, err := card.Identify()
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	return card, NewSession(got)
}

// expectedDump renders blocks the way a fully recovered card is dumped.
func expectedDump(blocks [][]byte) []string {
	lines := make([]string, len(blocks))
	for i, b := range blocks {
		lines[i] = hexUpper(b)
	}
	return lines
}

func diffLines(t *testing.T, want, got []string) {
	t.Helper()
	if reflect.DeepEqual(want, got) {
		return
	}
	d := difflib.UnifiedDiff{
		A:        difflib.SplitLines(spew.Sdump(want)),
		B:        difflib.SplitLines(spew.Sdump(got)),
		FromFile: "want",
		ToFile:   "got",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(d)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	t.Fatalf("dump mismatch:\n%s", text)
}

func checkDumpShape(t *testing.T, lines []string, blockCount int) {
	t.Helper()
	if len(lines) != blockCount {
		t.Fatalf("expected %d lines, got %d", blockCount, len(lines))
	}
	for i, l := range lines {
		if !dumpLine.MatchString(l) {
			t.Fatalf("line %d malformed: %q", i, l)
		}
	}
}

func findOutcome(t *testing.T, outcomes []Outcome, block int, keyType mifare.KeyType) Outcome {
	t.Helper()
	for _, o := range outcomes {
		if o.Block == block && o.KeyType == keyType {
			return o
		}
	}
	t.Fatalf("no outcome for block %d key %s", block, keyType)
	return Outcome{}
}
