package recovery

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/barnettlynn/mfcrack/pkg/mifare"
)

func confirmAll(sess *Session, typ mifare.CardType, keyTypes ...mifare.KeyType) {
	for s := 0; s < typ.SectorCount(); s++ {
		for _, kt := range keyTypes {
			sess.State.Confirm(mifare.TrailerBlock(s), kt, sectorKey(s, kt))
		}
	}
}

func TestReconstructWithAllKeys(t *testing.T) {
	card, sess := newTestCard(t, mifare.CardType1K, mifare.PRNGWeak)
	confirmAll(sess, mifare.CardType1K, mifare.KeyA, mifare.KeyB)

	lines := reconstruct(t, card, sess)
	checkDumpShape(t, lines, 64)
	for i, l := range lines {
		if strings.Contains(l, "?") {
			t.Fatalf("line %d has unknown bytes: %q", i, l)
		}
	}
	diffLines(t, expectedDump(testBlocks(mifare.CardType1K)), lines)

	data, ok := sess.State.Data(7)
	if !ok || hexUpper(data) != lines[7] {
		t.Fatalf("expected trailer data recorded for block 7, got %X", data)
	}
}

func TestReconstructWithoutKeys(t *testing.T) {
	card, sess := newTestCard(t, mifare.CardTypeMini, mifare.PRNGWeak)
	lines := reconstruct(t, card, sess)
	checkDumpShape(t, lines, 20)
	for i, l := range lines {
		if l != mifare.UnknownBlock {
			t.Fatalf("line %d: expected unknown block, got %q", i, l)
		}
	}
	if card.Calls(mifare.OpReadBlock) != 0 {
		t.Fatalf("no read may happen without keys")
	}
}

func TestReconstructOnlyKeyA(t *testing.T) {
	card, sess := newTestCard(t, mifare.CardTypeMini, mifare.PRNGWeak)
	confirmAll(sess, mifare.CardTypeMini, mifare.KeyA)

	lines := reconstruct(t, card, sess)
	want := expectedDump(testBlocks(mifare.CardTypeMini))
	for s := 0; s < 5; s++ {
		want[mifare.TrailerBlock(s)] = sectorKey(s, mifare.KeyA).String() + "FF078069" + strings.Repeat("?", 12)
	}
	diffLines(t, want, lines)
	if _, ok := sess.State.Data(3); ok {
		t.Fatalf("half-known trailer must not be recorded as data")
	}
}

func TestReconstructFallsBackToKeyB(t *testing.T) {
	card, sess := newTestCard(t, mifare.CardTypeMini, mifare.PRNGWeak)
	confirmAll(sess, mifare.CardTypeMini, mifare.KeyB)
	// A stale key A lets the dump start, but every read with it is refused.
	stale := mifare.Key{0x00, 0x00, 0x00, 0x00, 0x00, 0x01}
	sess.State.Confirm(7, mifare.KeyA, stale)

	lines := reconstruct(t, card, sess)
	want := []string{
		hexUpper(testBlocks(mifare.CardTypeMini)[4]),
		hexUpper(testBlocks(mifare.CardTypeMini)[5]),
		hexUpper(testBlocks(mifare.CardTypeMini)[6]),
		stale.String() + "FF078069" + sectorKey(1, mifare.KeyB).String(),
	}
	diffLines(t, want, lines[4:8])
	if lines[0] != mifare.UnknownBlock {
		t.Fatalf("sector without key A must be unknown, got %q", lines[0])
	}
}

func TestReconstructReadFaults(t *testing.T) {
	card, sess := newTestCard(t, mifare.CardTypeMini, mifare.PRNGWeak)
	confirmAll(sess, mifare.CardTypeMini, mifare.KeyA, mifare.KeyB)
	card.FailOn(mifare.OpReadBlock, 5, errors.New("crc error"))
	card.FailOn(mifare.OpReadBlock, 7, errors.New("crc error"))

	lines := reconstruct(t, card, sess)
	checkDumpShape(t, lines, 20)
	if lines[5] != mifare.UnknownBlock {
		t.Fatalf("expected unknown block 5, got %q", lines[5])
	}
	wantTrailer := sectorKey(1, mifare.KeyA).String() + "????????" + sectorKey(1, mifare.KeyB).String()
	if lines[7] != wantTrailer {
		t.Fatalf("expected %q, got %q", wantTrailer, lines[7])
	}

	card.FailOn(mifare.OpReadBlock, 9, mifare.ErrCardRemoved)
	got, err := NewReconstructor(card, sess).Reconstruct(context.Background())
	if !errors.Is(err, mifare.ErrCardRemoved) || got != nil {
		t.Fatalf("expected abort without dump, got %d lines, err %v", len(got), err)
	}
}
