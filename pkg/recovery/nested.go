package recovery

import (
	"context"
	"log/slog"
	"time"

	"github.com/barnettlynn/mfcrack/pkg/mifare"
)

// Solver recovers candidate keys from nested-authentication captures. It
// may return several false positives; callers verify every candidate.
type Solver interface {
	RecoverKeys(ctx context.Context, uid, distance uint32, captures []mifare.NestedCapture) ([]mifare.Key, error)
}

// CaptureSink receives every capture set before it is solved.
type CaptureSink interface {
	WriteCapture(rec mifare.CaptureRecord) error
}

// Nested runs nested-authentication rounds against one target block.
type Nested struct {
	dev    mifare.Device
	solver Solver
	sess   *Session
	sink   CaptureSink
}

func NewNested(dev mifare.Device, solver Solver, sess *Session, sink CaptureSink) *Nested {
	return &Nested{dev: dev, solver: solver, sess: sess, sink: sink}
}

// Recover uses the known key to capture nonces for target, solves them and
// promotes the candidates in the key cache. Faults are logged and produce an
// empty result; only a fatal device fault or a cancelled ctx is returned.
func (n *Nested) Recover(ctx context.Context, known, target mifare.AuthTarget, prng mifare.PRNGType) ([]mifare.Key, error) {
	var static bool
	switch prng {
	case mifare.PRNGWeak:
		slog.Info("nested attack", "target_block", target.Block, "target_type", target.KeyType.String(), "known_block", known.Block)
	case mifare.PRNGStatic:
		static = true
		slog.Info("static nested attack", "target_block", target.Block, "target_type", target.KeyType.String(), "known_block", known.Block)
	default:
		slog.Warn("no nested strategy for PRNG", "prng", prng.String(), "target_block", target.Block)
		return nil, nil
	}
	if n.solver == nil {
		slog.Warn("no solver configured, skipping nested attack", "target_block", target.Block)
		return nil, nil
	}

	dist, err := n.dev.TestNonceDistance(known)
	if err != nil {
		return nil, n.absorb("nonce distance", target, err)
	}

	var captures []mifare.NestedCapture
	if static {
		captures, err = n.dev.AcquireStaticNested(known, target)
	} else {
		captures, err = n.dev.AcquireNested(known, target)
	}
	if err != nil {
		return nil, n.absorb("nested capture", target, err)
	}
	slog.Debug("captured nonces", "target_block", target.Block, "count", len(captures), "uid", dist.UID, "dist", dist.Distance)

	if n.sink != nil {
		rec := mifare.CaptureRecord{
			Time:        time.Now().UTC(),
			UID:         dist.UID,
			Distance:    dist.Distance,
			KnownBlock:  known.Block,
			KnownType:   known.KeyType,
			TargetBlock: target.Block,
			TargetType:  target.KeyType,
			Static:      static,
			Captures:    captures,
		}
		if err := n.sink.WriteCapture(rec); err != nil {
			slog.Warn("capture archive write failed", "err", err)
		}
	}

	keys, err := n.solver.RecoverKeys(ctx, dist.UID, dist.Distance, captures)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		slog.Warn("solver failed", "target_block", target.Block, "err", err)
		return nil, nil
	}
	slog.Info("nested candidates", "target_block", target.Block, "count", len(keys))

	n.sess.Keys.PromoteBatch(keys, target.Block)
	return keys, nil
}

func (n *Nested) absorb(step string, target mifare.AuthTarget, err error) error {
	if mifare.IsFatal(err) {
		return err
	}
	slog.Warn("nested attack failed", "step", step, "target_block", target.Block, "target_type", target.KeyType.String(), "err", err)
	return nil
}
