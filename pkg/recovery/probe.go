package recovery

import (
	"log/slog"

	"github.com/barnettlynn/mfcrack/pkg/mifare"
)

// Prober checks single keys against sector trailers.
type Prober struct {
	dev  mifare.Device
	sess *Session
}

func NewProber(dev mifare.Device, sess *Session) *Prober {
	return &Prober{dev: dev, sess: sess}
}

// Probe reports whether key authenticates block as keyType. If the session
// already holds a confirmed key for (block, keyType) it returns true without
// touching the device. On success the key is confirmed in the dump state and
// moved to the front of the key cache.
//
// A rejected key and non-fatal device faults both yield (false, nil); only a
// fatal fault is returned.
func (p *Prober) Probe(block int, key mifare.Key, keyType mifare.KeyType) (bool, error) {
	if _, ok := p.sess.State.Key(block, keyType); ok {
		slog.Debug("block already has key", "block", block, "key_type", keyType.String())
		return true, nil
	}

	ok, err := p.dev.CheckBlockKey(block, keyType, key)
	if err != nil {
		if mifare.IsFatal(err) {
			return false, err
		}
		slog.Warn("key check failed", "block", block, "key_type", keyType.String(), "err", err)
		return false, nil
	}
	if !ok {
		return false, nil
	}

	slog.Info("valid key", "key", key.String(), "block", block, "key_type", keyType.String())
	p.sess.State.Confirm(block, keyType, key)
	p.sess.Keys.Record(key, block, keyType)
	return true, nil
}
