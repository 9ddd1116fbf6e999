package emulator

import (
	"context"
	"encoding/binary"

	"github.com/barnettlynn/mfcrack/pkg/mifare"
)

func encodeCapture(uid, dist uint32, key mifare.Key, i int) mifare.NestedCapture {
	return mifare.NestedCapture{
		Nt1: uid ^ binary.BigEndian.Uint32(key[0:4]),
		Nt2: dist ^ (uint32(binary.BigEndian.Uint16(key[4:6]))<<16 | uint32(i)),
		Par: uint8(i),
	}
}

// Solver inverts the emulator's synthetic captures. For every distinct key
// it yields a decoy first, then the real key.
type Solver struct{}

func (Solver) RecoverKeys(_ context.Context, uid, distance uint32, captures []mifare.NestedCapture) ([]mifare.Key, error) {
	var keys []mifare.Key
	seen := make(map[mifare.Key]bool)
	for _, c := range captures {
		var k mifare.Key
		binary.BigEndian.PutUint32(k[0:4], c.Nt1^uid)
		binary.BigEndian.PutUint16(k[4:6], uint16((c.Nt2^distance)>>16))
		if seen[k] {
			continue
		}
		seen[k] = true
		decoy := k
		decoy[5] ^= 0xFF
		keys = append(keys, decoy, k)
	}
	return keys, nil
}
