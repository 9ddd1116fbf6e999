package recovery

import (
	"github.com/barnettlynn/mfcrack/pkg/mifare"
)

// Session is the state of one recovery run against one card. It is owned by
// a single goroutine and needs no locking; concurrent runs use separate
// sessions and separate devices.
type Session struct {
	Card  *mifare.CardInfo
	Keys  *KeyCache
	State *DumpState
}

func NewSession(card *mifare.CardInfo) *Session {
	return &Session{
		Card:  card,
		Keys:  NewKeyCache(),
		State: NewDumpState(),
	}
}

// FoundKeys returns every distinct confirmed key, in cache order.
func (s *Session) FoundKeys() []mifare.Key {
	var keys []mifare.Key
	for _, e := range s.Keys.Entries() {
		if e.Confirmed {
			keys = append(keys, e.Key)
		}
	}
	return keys
}
