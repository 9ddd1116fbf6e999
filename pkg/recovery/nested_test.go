package recovery

import (
	"context"
	"errors"
	"testing"

	"github.com/barnettlynn/mfcrack/internal/emulator"
	"github.com/barnettlynn/mfcrack/pkg/mifare"
)

func knownTarget() mifare.AuthTarget {
	return mifare.AuthTarget{Block: 3, KeyType: mifare.KeyA, Key: sectorKey(0, mifare.KeyA)}
}

func TestNestedPromotesCandidates(t *testing.T) {
	card, sess := newTestCard(t, mifare.CardType1K, mifare.PRNGWeak)
	sink := &recordingSink{}
	n := NewNested(card, emulator.Solver{}, sess, sink)

	target := mifare.AuthTarget{Block: 7, KeyType: mifare.KeyB}
	keys, err := n.Recover(context.Background(), knownTarget(), target, mifare.PRNGWeak)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	want := sectorKey(1, mifare.KeyB)
	if len(keys) != 2 || keys[1] != want {
		t.Fatalf("expected decoy then %s, got %v", want, keys)
	}

	entries := sess.Keys.Entries()
	if len(entries) != 2 || entries[0].Key != keys[0] || entries[1].Key != want {
		t.Fatalf("expected candidates at cache front in solver order, got %+v", entries)
	}
	for _, e := range entries {
		if e.Confirmed || e.Block != 7 {
			t.Fatalf("candidate must be unconfirmed with origin 7, got %+v", e)
		}
	}
	if _, ok := sess.State.Key(7, mifare.KeyB); ok {
		t.Fatalf("nested round must not confirm keys")
	}

	if len(sink.records) != 1 {
		t.Fatalf("expected 1 archived capture set, got %d", len(sink.records))
	}
	rec := sink.records[0]
	if rec.TargetBlock != 7 || rec.TargetType != mifare.KeyB || rec.KnownBlock != 3 || len(rec.Captures) != 2 {
		t.Fatalf("unexpected capture record %+v", rec)
	}
}

func TestNestedSkipsUnsupportedPRNG(t *testing.T) {
	for _, prng := range []mifare.PRNGType{mifare.PRNGHard, mifare.PRNGUnknown} {
		card, sess := newTestCard(t, mifare.CardType1K, prng)
		n := NewNested(card, emulator.Solver{}, sess, nil)
		keys, err := n.Recover(context.Background(), knownTarget(), mifare.AuthTarget{Block: 7}, prng)
		if err != nil || keys != nil {
			t.Fatalf("%s: expected empty result, got %v %v", prng, keys, err)
		}
		if card.Calls(mifare.OpTestNonceDistance) != 0 {
			t.Fatalf("%s: no device primitive may run", prng)
		}
	}
}

func TestNestedAbsorbsFaults(t *testing.T) {
	card, sess := newTestCard(t, mifare.CardType1K, mifare.PRNGWeak)
	n := NewNested(card, emulator.Solver{}, sess, nil)

	wrong := knownTarget()
	wrong.Key = mifare.Key{0x01}
	keys, err := n.Recover(context.Background(), wrong, mifare.AuthTarget{Block: 7}, mifare.PRNGWeak)
	if err != nil || keys != nil {
		t.Fatalf("wrong known key: expected empty result, got %v %v", keys, err)
	}

	card.FailOn(mifare.OpAcquireNested, 7, errors.New("timeout"))
	keys, err = n.Recover(context.Background(), knownTarget(), mifare.AuthTarget{Block: 7}, mifare.PRNGWeak)
	if err != nil || keys != nil {
		t.Fatalf("capture fault: expected empty result, got %v %v", keys, err)
	}
	if sess.Keys.Len() != 0 {
		t.Fatalf("failed rounds must not touch the cache")
	}

	card.FailOn(mifare.OpAcquireNested, 11, mifare.ErrCardRemoved)
	if _, err := n.Recover(context.Background(), knownTarget(), mifare.AuthTarget{Block: 11}, mifare.PRNGWeak); !errors.Is(err, mifare.ErrCardRemoved) {
		t.Fatalf("expected card removed, got %v", err)
	}
}

// cancellingSolver simulates Ctrl-C arriving while the solver runs.
type cancellingSolver struct {
	cancel context.CancelFunc
}

func (s cancellingSolver) RecoverKeys(ctx context.Context, _, _ uint32, _ []mifare.NestedCapture) ([]mifare.Key, error) {
	s.cancel()
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestNestedReturnsCancellationDuringSolve(t *testing.T) {
	card, sess := newTestCard(t, mifare.CardType1K, mifare.PRNGWeak)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n := NewNested(card, cancellingSolver{cancel: cancel}, sess, nil)
	_, err := n.Recover(ctx, knownTarget(), mifare.AuthTarget{Block: 7}, mifare.PRNGWeak)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestAttackAbortsWhenSolveCancelled(t *testing.T) {
	card, sess := newTestCard(t, mifare.CardType1K, mifare.PRNGWeak)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outcomes, err := NewAttack(card, sess, Options{
		Dictionary: []mifare.Key{sectorKey(0, mifare.KeyA)},
		Solver:     cancellingSolver{cancel: cancel},
	}).Run(ctx)
	if !errors.Is(err, context.Canceled) || outcomes != nil {
		t.Fatalf("expected abort with context.Canceled, got %d outcomes, err %v", len(outcomes), err)
	}
}
