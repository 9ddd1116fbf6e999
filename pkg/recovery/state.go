package recovery

import (
	"github.com/barnettlynn/mfcrack/pkg/mifare"
)

// SlotState says which keys of a sector trailer are confirmed.
type SlotState int

const (
	Unknown SlotState = iota
	ConfirmedA
	ConfirmedB
	ConfirmedBoth
)

func (s SlotState) String() string {
	switch s {
	case ConfirmedA:
		return "A"
	case ConfirmedB:
		return "B"
	case ConfirmedBoth:
		return "A+B"
	default:
		return "unknown"
	}
}

// TrailerKeys holds the confirmed keys of one sector trailer.
type TrailerKeys struct {
	state SlotState
	a, b  mifare.Key
}

func (t TrailerKeys) State() SlotState {
	return t.state
}

// Key returns the confirmed key for keyType.
func (t TrailerKeys) Key(keyType mifare.KeyType) (mifare.Key, bool) {
	switch {
	case keyType == mifare.KeyA && (t.state == ConfirmedA || t.state == ConfirmedBoth):
		return t.a, true
	case keyType == mifare.KeyB && (t.state == ConfirmedB || t.state == ConfirmedBoth):
		return t.b, true
	}
	return mifare.Key{}, false
}

func (t *TrailerKeys) confirm(keyType mifare.KeyType, key mifare.Key) {
	if keyType == mifare.KeyA {
		t.a = key
		switch t.state {
		case Unknown:
			t.state = ConfirmedA
		case ConfirmedB:
			t.state = ConfirmedBoth
		}
		return
	}
	t.b = key
	switch t.state {
	case Unknown:
		t.state = ConfirmedB
	case ConfirmedA:
		t.state = ConfirmedBoth
	}
}

// DumpState maps trailer blocks to confirmed keys and blocks to raw data.
type DumpState struct {
	keys map[int]*TrailerKeys
	data map[int][]byte
}

func NewDumpState() *DumpState {
	return &DumpState{
		keys: make(map[int]*TrailerKeys),
		data: make(map[int][]byte),
	}
}

// Confirm stores key as the confirmed keyType key of trailer block.
func (s *DumpState) Confirm(block int, keyType mifare.KeyType, key mifare.Key) {
	t, ok := s.keys[block]
	if !ok {
		t = &TrailerKeys{}
		s.keys[block] = t
	}
	t.confirm(keyType, key)
}

// Key returns the confirmed keyType key of trailer block.
func (s *DumpState) Key(block int, keyType mifare.KeyType) (mifare.Key, bool) {
	if t, ok := s.keys[block]; ok {
		return t.Key(keyType)
	}
	return mifare.Key{}, false
}

// Trailer returns the key state of trailer block.
func (s *DumpState) Trailer(block int) TrailerKeys {
	if t, ok := s.keys[block]; ok {
		return *t
	}
	return TrailerKeys{}
}

func (s *DumpState) SetData(block int, data []byte) {
	s.data[block] = append([]byte{}, data...)
}

func (s *DumpState) Data(block int) ([]byte, bool) {
	d, ok := s.data[block]
	return d, ok
}
