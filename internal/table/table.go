// Package table implements the open-addressed hash table used for globals,
// permanent globals, class method tables, instance field tables, and the
// string intern pool.
package table

import "github.com/xirelogy/go-fer/internal/value"

type entry struct {
	key   *value.StringObj
	val   value.Value
	state entryState
}

type entryState uint8

const (
	stateEmpty entryState = iota
	stateTombstone
	stateLive
)

// Table is an open-addressed hash table with linear probing and tombstone
// deletion, keyed by interned string objects (so key comparison is pointer
// equality). Load factor is kept at or below 0.75 by growing and rehashing.
type Table struct {
	entries []entry
	count   int // live + tombstones, for load-factor accounting
}

// New returns an empty table; the backing array is allocated lazily on first
// insert, mirroring the original's zero-capacity initial state.
func New() *Table {
	return &Table{}
}

var _ value.StringTable = (*Table)(nil)

func (t *Table) Get(key *value.StringObj) (value.Value, bool) {
	if len(t.entries) == 0 {
		return value.Nil, false
	}
	idx, found := t.find(key)
	if !found {
		return value.Nil, false
	}
	return t.entries[idx].val, true
}

// Set inserts or overwrites key->val, returning true if this created a new
// key (as opposed to overwriting an existing live entry).
func (t *Table) Set(key *value.StringObj, val value.Value) bool {
	if float64(t.count+1) > float64(len(t.entries))*0.75 {
		t.grow()
	}
	idx := t.probe(key)
	isNew := t.entries[idx].state != stateLive
	if t.entries[idx].state == stateEmpty {
		t.count++
	}
	t.entries[idx] = entry{key: key, val: val, state: stateLive}
	return isNew
}

// Delete places a tombstone at key's slot, if present.
func (t *Table) Delete(key *value.StringObj) bool {
	if len(t.entries) == 0 {
		return false
	}
	idx, found := t.find(key)
	if !found {
		return false
	}
	t.entries[idx] = entry{state: stateTombstone, val: value.Bool(true)}
	return true
}

// AddAll copies every live entry of from into t, used for class-inheritance
// method-table copying.
func (t *Table) AddAll(from *Table) {
	for _, e := range from.entries {
		if e.state == stateLive {
			t.Set(e.key, e.val)
		}
	}
}

// Keys returns every live key, in table (not insertion) order.
func (t *Table) Keys() []*value.StringObj {
	keys := make([]*value.StringObj, 0, t.count)
	for _, e := range t.entries {
		if e.state == stateLive {
			keys = append(keys, e.key)
		}
	}
	return keys
}

// FindString looks up a live key by byte content and hash without already
// holding a StringObj, supporting the intern pool's lookup-or-insert.
func (t *Table) FindString(chars string, hash uint32) *value.StringObj {
	if len(t.entries) == 0 {
		return nil
	}
	capacity := len(t.entries)
	idx := int(hash) % capacity
	for {
		e := t.entries[idx]
		switch e.state {
		case stateEmpty:
			return nil
		case stateLive:
			if e.key.Hash == hash && e.key.Chars == chars {
				return e.key
			}
		}
		idx = (idx + 1) % capacity
	}
}

// find locates key's slot by pointer identity (safe: all string keys are
// interned).
func (t *Table) find(key *value.StringObj) (int, bool) {
	capacity := len(t.entries)
	idx := int(key.Hash) % capacity
	for {
		e := t.entries[idx]
		switch e.state {
		case stateEmpty:
			return 0, false
		case stateLive:
			if e.key == key {
				return idx, true
			}
		}
		idx = (idx + 1) % capacity
	}
}

// probe returns the slot key should occupy on insert: the first empty slot,
// or the first tombstone seen if no live match is found first.
func (t *Table) probe(key *value.StringObj) int {
	capacity := len(t.entries)
	idx := int(key.Hash) % capacity
	tombstone := -1
	for {
		e := t.entries[idx]
		switch e.state {
		case stateEmpty:
			if tombstone != -1 {
				return tombstone
			}
			return idx
		case stateTombstone:
			if tombstone == -1 {
				tombstone = idx
			}
		case stateLive:
			if e.key == key {
				return idx
			}
		}
		idx = (idx + 1) % capacity
	}
}

func (t *Table) grow() {
	newCap := 8
	if len(t.entries) > 0 {
		newCap = len(t.entries) * 2
	}
	old := t.entries
	t.entries = make([]entry, newCap)
	t.count = 0
	for _, e := range old {
		if e.state == stateLive {
			idx := t.probe(e.key)
			t.entries[idx] = entry{key: e.key, val: e.val, state: stateLive}
			t.count++
		}
	}
}
