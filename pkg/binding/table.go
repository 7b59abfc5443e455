package binding

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/aretw0/softbus/pkg/domain"
)

// Entry is what a channel resolves to.
// SessionID is only meaningful on the client side; the privileged side leaves it zero.
type Entry struct {
	PkgName     string
	SessionName string
	SessionID   int
}

// Table maps channels to their owners. Proxy and udp ids live in disjoint
// namespaces: the same id under two types is two different channels.
// Safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	entries map[domain.ChannelKey]Entry
	next    map[domain.ChannelType]int32
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		entries: make(map[domain.ChannelKey]Entry),
		next:    make(map[domain.ChannelType]int32),
	}
}

func checkKey(key domain.ChannelKey) error {
	if !key.Type.Valid() {
		return fmt.Errorf("%w: channel type %s", domain.ErrInvalidParam, key.Type)
	}
	if key.ID < 0 {
		return fmt.Errorf("%w: channel id %d", domain.ErrInvalidParam, key.ID)
	}
	return nil
}

// Put records the owner of key, replacing any previous owner.
func (t *Table) Put(key domain.ChannelKey, e Entry) error {
	if err := checkKey(key); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[key] = e
	return nil
}

// Insert records the owner of key. It returns domain.ErrChannelBound if the
// key is already taken.
func (t *Table) Insert(key domain.ChannelKey, e Entry) error {
	if err := checkKey(key); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[key]; ok {
		return fmt.Errorf("channel %s: %w", key, domain.ErrChannelBound)
	}
	t.entries[key] = e
	return nil
}

// Allocate hands out the next id of type ct, starting at 0. Ids are never
// reused within one table.
func (t *Table) Allocate(ct domain.ChannelType) (int32, error) {
	if !ct.Valid() {
		return domain.InvalidChannelID, fmt.Errorf("%w: channel type %s", domain.ErrInvalidParam, ct)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.next[ct]
	if id == math.MaxInt32 {
		return domain.InvalidChannelID, fmt.Errorf("%s channel ids exhausted", ct)
	}
	t.next[ct] = id + 1
	return id, nil
}

// Get resolves key. Returns domain.ErrNotFound if the channel is unknown.
func (t *Table) Get(key domain.ChannelKey) (Entry, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[key]
	if !ok {
		return Entry{}, fmt.Errorf("channel %s: %w", key, domain.ErrNotFound)
	}
	return e, nil
}

// Delete removes key and reports whether it was present.
func (t *Table) Delete(key domain.ChannelKey) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.entries[key]
	delete(t.entries, key)
	return ok
}

// DeleteWhere removes every entry matching fn and returns the removed keys.
func (t *Table) DeleteWhere(fn func(domain.ChannelKey, Entry) bool) []domain.ChannelKey {
	t.mu.Lock()
	defer t.mu.Unlock()
	var removed []domain.ChannelKey
	for k, e := range t.entries {
		if fn(k, e) {
			delete(t.entries, k)
			removed = append(removed, k)
		}
	}
	return removed
}

// Len returns the number of bound channels.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Keys returns the bound channels of type ct ordered by id.
func (t *Table) Keys(ct domain.ChannelType) []domain.ChannelKey {
	t.mu.RLock()
	keys := make([]domain.ChannelKey, 0, len(t.entries))
	for k := range t.entries {
		if k.Type == ct {
			keys = append(keys, k)
		}
	}
	t.mu.RUnlock()

	sort.Slice(keys, func(i, j int) bool { return keys[i].ID < keys[j].ID })
	return keys
}
