package recovery

import (
	"context"
	"errors"
	"log/slog"

	"github.com/barnettlynn/mfcrack/pkg/mifare"
)

var (
	// ErrNoKeyFound is the outcome of a slot that survived every stage.
	ErrNoKeyFound = errors.New("no key found")

	// ErrNoKnownKey means nested recovery had no confirmed key to start from.
	ErrNoKnownKey = errors.New("no known key to seed nested attack")
)

// Stage is a step of the per-slot search.
type Stage int

const (
	StageDictionary Stage = iota
	StageCachedKeys
	StageNestedRecovery
	StageCachedKeysRetry
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageDictionary:
		return "dictionary"
	case StageCachedKeys:
		return "cached keys"
	case StageNestedRecovery:
		return "nested recovery"
	case StageCachedKeysRetry:
		return "cached keys retry"
	default:
		return "failed"
	}
}

// Outcome is the result for one (trailer block, key type). Stage is the
// stage that confirmed the key, or StageFailed with Err set.
type Outcome struct {
	Block   int
	KeyType mifare.KeyType
	Found   bool
	Key     mifare.Key
	Stage   Stage
	Err     error
}

// Options configures an Attack.
type Options struct {
	Dictionary []mifare.Key
	Solver     Solver
	Sink       CaptureSink

	// OnOutcome is called after every (block, key type) is settled.
	OnOutcome func(Outcome)
}

// Attack recovers every sector key of one card: key A across all sectors,
// then key B. Per trailer it tries the cached keys, then a nested round, then
// the cached keys again. The dictionary seeds the cache while it is empty.
type Attack struct {
	dev    mifare.Device
	sess   *Session
	opts   Options
	prober *Prober
	nested *Nested

	// dictionary confirmations, reported with StageDictionary
	fromDictionary map[slot]bool
}

type slot struct {
	block   int
	keyType mifare.KeyType
}

func NewAttack(dev mifare.Device, sess *Session, opts Options) *Attack {
	return &Attack{
		dev:            dev,
		sess:           sess,
		opts:           opts,
		prober:         NewProber(dev, sess),
		nested:         NewNested(dev, opts.Solver, sess, opts.Sink),
		fromDictionary: make(map[slot]bool),
	}
}

// Run attacks every sector trailer. Per-slot failures are recorded in the
// outcomes and never stop the run; a fatal device fault or a cancelled
// context aborts it and the outcomes are discarded.
func (a *Attack) Run(ctx context.Context) ([]Outcome, error) {
	var outcomes []Outcome
	for _, keyType := range []mifare.KeyType{mifare.KeyA, mifare.KeyB} {
		if err := a.checkDictionary(ctx, keyType); err != nil {
			return nil, err
		}
		for _, block := range a.sess.Card.Trailers() {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out, err := a.attackBlock(ctx, block, keyType)
			if err != nil {
				return nil, err
			}
			if !out.Found {
				slog.Warn("no key found", "block", block, "key_type", keyType.String(), "reason", out.Err)
			}
			outcomes = append(outcomes, out)
			if a.opts.OnOutcome != nil {
				a.opts.OnOutcome(out)
			}
		}
	}
	return outcomes, nil
}

// checkDictionary bootstraps the cache from the wordlist against sector 0.
// Once any key is known anywhere on the card the dictionary is skipped.
func (a *Attack) checkDictionary(ctx context.Context, keyType mifare.KeyType) error {
	if a.sess.Keys.Len() > 0 {
		slog.Info("skipping dictionary, a key is already known", "key_type", keyType.String())
		return nil
	}
	block := mifare.TrailerBlock(0)
	slog.Info("checking dictionary", "key_type", keyType.String(), "keys", len(a.opts.Dictionary))
	for _, key := range a.opts.Dictionary {
		if err := ctx.Err(); err != nil {
			return err
		}
		ok, err := a.prober.Probe(block, key, keyType)
		if err != nil {
			return err
		}
		if ok {
			a.fromDictionary[slot{block, keyType}] = true
			return nil
		}
	}
	return nil
}

func (a *Attack) attackBlock(ctx context.Context, block int, keyType mifare.KeyType) (Outcome, error) {
	out := Outcome{Block: block, KeyType: keyType}

	if key, ok := a.sess.State.Key(block, keyType); ok && a.fromDictionary[slot{block, keyType}] {
		out.Found, out.Key, out.Stage = true, key, StageDictionary
		return out, nil
	}

	key, ok, err := a.tryCached(block, keyType)
	if err != nil {
		return out, err
	}
	if ok {
		out.Found, out.Key, out.Stage = true, key, StageCachedKeys
		return out, nil
	}

	prng := a.sess.Card.PRNG
	if prng != mifare.PRNGWeak && prng != mifare.PRNGStatic {
		out.Stage, out.Err = StageFailed, mifare.ErrUnsupportedPRNG
		return out, nil
	}
	known, ok := a.sess.Keys.LatestConfirmed()
	if !ok {
		out.Stage, out.Err = StageFailed, ErrNoKnownKey
		return out, nil
	}

	_, err = a.nested.Recover(ctx,
		mifare.AuthTarget{Block: known.Block, KeyType: known.KeyType, Key: known.Key},
		mifare.AuthTarget{Block: block, KeyType: keyType},
		prng,
	)
	if err != nil {
		return out, err
	}

	key, ok, err = a.tryCached(block, keyType)
	if err != nil {
		return out, err
	}
	if ok {
		out.Found, out.Key, out.Stage = true, key, StageCachedKeysRetry
		return out, nil
	}

	out.Stage, out.Err = StageFailed, ErrNoKeyFound
	return out, nil
}

// tryCached probes every cached key in cache order, stopping at the first hit.
func (a *Attack) tryCached(block int, keyType mifare.KeyType) (mifare.Key, bool, error) {
	for _, e := range a.sess.Keys.Entries() {
		ok, err := a.prober.Probe(block, e.Key, keyType)
		if err != nil {
			return mifare.Key{}, false, err
		}
		if ok {
			key, _ := a.sess.State.Key(block, keyType)
			return key, true, nil
		}
	}
	return mifare.Key{}, false, nil
}
