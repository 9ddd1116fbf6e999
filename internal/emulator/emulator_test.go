package emulator

import (
	"context"
	"encoding/hex"
	"errors"
	"strings"
	"testing"

	"github.com/barnettlynn/mfcrack/pkg/mifare"
)

const miniDump = `# MIFARE Mini
01020304042804004700000000000000
00000000000000000000000000000000
00000000000000000000000000000000
A0A1A2A3A4A5FF078069B0B1B2B3B4B5
`

func miniCard(t *testing.T, prng mifare.PRNGType) *Card {
	t.Helper()
	var sb strings.Builder
	sb.WriteString(miniDump)
	for s := 1; s < 5; s++ {
		sb.WriteString(strings.Repeat("00", 16) + "\n")
		sb.WriteString(strings.Repeat("00", 16) + "\n")
		sb.WriteString(strings.Repeat("00", 16) + "\n")
		sb.WriteString("FFFFFFFFFFFFFF078069FFFFFFFFFFFF\n")
	}
	c, err := Load(strings.NewReader(sb.String()), prng)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return c
}

func TestLoadDerivesIdentity(t *testing.T) {
	c := miniCard(t, mifare.PRNGWeak)
	info, err := c.Identify()
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if info.Type != mifare.CardTypeMini || info.UID32() != 0x01020304 || info.SAK != 0x28 {
		t.Fatalf("unexpected identity %+v", info)
	}
	if info.ATQA[0] != 0x00 || info.ATQA[1] != 0x04 {
		t.Fatalf("unexpected ATQA %X", info.ATQA)
	}

	if _, err := Load(strings.NewReader("0102\n"), mifare.PRNGWeak); err == nil {
		t.Fatalf("expected error for short block 0")
	}
	if _, err := Load(strings.NewReader(""), mifare.PRNGWeak); err == nil {
		t.Fatalf("expected error for empty dump")
	}
}

func TestReadBlockMasksTrailerKeys(t *testing.T) {
	c := miniCard(t, mifare.PRNGWeak)
	keyA, _ := mifare.ParseKey("A0A1A2A3A4A5")

	data, err := c.ReadBlock(3, mifare.KeyA, keyA)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	if got := strings.ToUpper(hex.EncodeToString(data)); got != "000000000000FF078069000000000000" {
		t.Fatalf("unexpected trailer read %s", got)
	}

	_, err = c.ReadBlock(1, mifare.KeyA, mifare.Key{})
	if !mifare.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestFaultInjection(t *testing.T) {
	c := miniCard(t, mifare.PRNGWeak)
	c.FailOn(mifare.OpCheckBlockKey, -1, mifare.ErrCardRemoved)

	_, err := c.CheckBlockKey(7, mifare.KeyA, mifare.Key{})
	if !mifare.IsFatal(err) {
		t.Fatalf("expected fatal fault, got %v", err)
	}
	var devErr *mifare.DeviceError
	if !errors.As(err, &devErr) || devErr.Op != mifare.OpCheckBlockKey || devErr.Block != 7 {
		t.Fatalf("unexpected device error %v", err)
	}
	if c.Calls(mifare.OpCheckBlockKey) != 1 {
		t.Fatalf("expected call to be counted")
	}
}

func TestNestedCaptureRoundTrip(t *testing.T) {
	c := miniCard(t, mifare.PRNGWeak)
	known := mifare.AuthTarget{Block: 3, KeyType: mifare.KeyA}
	known.Key, _ = mifare.ParseKey("A0A1A2A3A4A5")

	dist, err := c.TestNonceDistance(known)
	if err != nil {
		t.Fatalf("TestNonceDistance: %v", err)
	}
	captures, err := c.AcquireNested(known, mifare.AuthTarget{Block: 3, KeyType: mifare.KeyB})
	if err != nil {
		t.Fatalf("AcquireNested: %v", err)
	}
	keys, err := Solver{}.RecoverKeys(context.Background(), dist.UID, dist.Distance, captures)
	if err != nil {
		t.Fatalf("RecoverKeys: %v", err)
	}
	if len(keys) != 2 || keys[1].String() != "B0B1B2B3B4B5" || keys[0] == keys[1] {
		t.Fatalf("expected decoy then real key, got %v", keys)
	}

	if _, err := c.AcquireStaticNested(known, mifare.AuthTarget{Block: 3, KeyType: mifare.KeyB}); !errors.Is(err, mifare.ErrUnsupportedPRNG) {
		t.Fatalf("static capture on weak card: expected unsupported PRNG, got %v", err)
	}
}
