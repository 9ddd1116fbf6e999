package recovery

import (
	"context"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/barnettlynn/mfcrack/pkg/mifare"
)

// Reconstructor reads the card with the recovered keys and renders the dump.
type Reconstructor struct {
	dev  mifare.Device
	sess *Session
}

func NewReconstructor(dev mifare.Device, sess *Session) *Reconstructor {
	return &Reconstructor{dev: dev, sess: sess}
}

// Reconstruct returns one 32-character line per block, ascending. Bytes
// that could not be read are rendered as '?'. A fatal device fault or a
// cancelled context aborts and no partial dump is returned.
func (r *Reconstructor) Reconstruct(ctx context.Context) ([]string, error) {
	count := r.sess.Card.BlockCount()
	lines := make([]string, 0, count)
	for block := 0; block < count; block++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var (
			line string
			err  error
		)
		if mifare.IsTrailer(block) {
			line, err = r.trailerLine(block)
		} else {
			line, err = r.dataLine(block)
		}
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// dataLine reads a data block with the trailer's key A, falling back to
// key B when the access bits refuse key A.
func (r *Reconstructor) dataLine(block int) (string, error) {
	trailer := r.sess.State.Trailer(mifare.TrailerBlock(mifare.SectorOf(block)))
	keyA, ok := trailer.Key(mifare.KeyA)
	if !ok {
		slog.Debug("no key A for block", "block", block)
		return mifare.UnknownBlock, nil
	}

	data, err := r.read(block, mifare.KeyA, keyA)
	if err != nil {
		return "", err
	}
	if data == nil {
		if keyB, ok := trailer.Key(mifare.KeyB); ok {
			if data, err = r.read(block, mifare.KeyB, keyB); err != nil {
				return "", err
			}
		}
	}
	if data == nil {
		return mifare.UnknownBlock, nil
	}
	r.sess.State.SetData(block, data)
	return hexUpper(data), nil
}

// trailerLine renders keyA(6) | access bits + user byte(4) | keyB(6). The
// middle bytes come from the key B read when possible, else the key A read.
func (r *Reconstructor) trailerLine(block int) (string, error) {
	trailer := r.sess.State.Trailer(block)
	keyA, ok := trailer.Key(mifare.KeyA)
	if !ok {
		slog.Debug("no key A for trailer", "block", block)
		return mifare.UnknownBlock, nil
	}

	var middle []byte
	dataA, err := r.read(block, mifare.KeyA, keyA)
	if err != nil {
		return "", err
	}
	if dataA != nil {
		middle = dataA[6:10]
	}

	keyB, hasB := trailer.Key(mifare.KeyB)
	if hasB {
		dataB, err := r.read(block, mifare.KeyB, keyB)
		if err != nil {
			return "", err
		}
		if dataB != nil {
			middle = dataB[6:10]
		}
	}

	var sb strings.Builder
	sb.WriteString(keyA.String())
	if middle != nil {
		sb.WriteString(hexUpper(middle))
	} else {
		sb.WriteString(strings.Repeat("?", 8))
	}
	if hasB {
		sb.WriteString(keyB.String())
	} else {
		sb.WriteString(strings.Repeat("?", 12))
	}

	if middle != nil && hasB {
		full := make([]byte, 0, mifare.BlockSize)
		full = append(full, keyA[:]...)
		full = append(full, middle...)
		full = append(full, keyB[:]...)
		r.sess.State.SetData(block, full)
	}
	return sb.String(), nil
}

// read returns nil data for non-fatal faults.
func (r *Reconstructor) read(block int, keyType mifare.KeyType, key mifare.Key) ([]byte, error) {
	data, err := r.dev.ReadBlock(block, keyType, key)
	if err != nil {
		if mifare.IsFatal(err) {
			return nil, err
		}
		slog.Warn("error reading block", "block", block, "key_type", keyType.String(), "err", err)
		return nil, nil
	}
	if len(data) != mifare.BlockSize {
		slog.Warn("short block read", "block", block, "len", len(data))
		return nil, nil
	}
	return data, nil
}

func hexUpper(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}
