package recovery

import (
	"container/list"

	"github.com/barnettlynn/mfcrack/pkg/mifare"
)

// Entry is a candidate key with the place it was confirmed or derived.
// Confirmed is false for solver candidates that have not authenticated yet;
// KeyType is only meaningful when Confirmed is true.
type Entry struct {
	Key       mifare.Key
	Block     int
	KeyType   mifare.KeyType
	Confirmed bool
}

// KeyCache is a deduplicated, most-recent-first list of candidate keys.
// Membership and move-to-front are O(1).
type KeyCache struct {
	order *list.List
	index map[mifare.Key]*list.Element
}

func NewKeyCache() *KeyCache {
	return &KeyCache{
		order: list.New(),
		index: make(map[mifare.Key]*list.Element),
	}
}

// Record moves key to the front as a confirmed key for (block, keyType),
// inserting it if absent.
func (c *KeyCache) Record(key mifare.Key, block int, keyType mifare.KeyType) {
	c.remove(key)
	c.index[key] = c.order.PushFront(Entry{Key: key, Block: block, KeyType: keyType, Confirmed: true})
}

// PromoteBatch puts solver candidates for block at the front. keys[0] ends
// up at the head; keys already cached are moved rather than duplicated.
// Pushing the batch one key at a time from the start would leave the
// solver's last candidate first, so it is pushed in reverse.
func (c *KeyCache) PromoteBatch(keys []mifare.Key, block int) {
	for i := len(keys) - 1; i >= 0; i-- {
		c.remove(keys[i])
		c.index[keys[i]] = c.order.PushFront(Entry{Key: keys[i], Block: block})
	}
}

func (c *KeyCache) remove(key mifare.Key) {
	if el, ok := c.index[key]; ok {
		c.order.Remove(el)
		delete(c.index, key)
	}
}

// Entries returns a snapshot of the cache in trial order. Later mutations do
// not affect a snapshot already taken.
func (c *KeyCache) Entries() []Entry {
	entries := make([]Entry, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		entries = append(entries, el.Value.(Entry))
	}
	return entries
}

// Head returns the highest-priority entry.
func (c *KeyCache) Head() (Entry, bool) {
	if el := c.order.Front(); el != nil {
		return el.Value.(Entry), true
	}
	return Entry{}, false
}

// LatestConfirmed returns the most recently confirmed entry, skipping
// unverified candidates.
func (c *KeyCache) LatestConfirmed() (Entry, bool) {
	for el := c.order.Front(); el != nil; el = el.Next() {
		if e := el.Value.(Entry); e.Confirmed {
			return e, true
		}
	}
	return Entry{}, false
}

func (c *KeyCache) Contains(key mifare.Key) bool {
	_, ok := c.index[key]
	return ok
}

func (c *KeyCache) Len() int {
	return c.order.Len()
}

// Keys returns the cached keys in trial order.
func (c *KeyCache) Keys() []mifare.Key {
	keys := make([]mifare.Key, 0, c.order.Len())
	for el := c.order.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(Entry).Key)
	}
	return keys
}
