package table

import "github.com/xirelogy/go-fer/internal/value"

// Interner is the process-unique (VM-unique) set of live string objects,
// indexed by byte content and FNV-1a hash. Creation goes through
// lookup-or-insert: duplicate contents return the existing canonical object.
type Interner struct {
	pool *Table
}

// NewInterner returns an empty intern pool.
func NewInterner() *Interner {
	return &Interner{pool: New()}
}

// Intern returns the canonical *StringObj for chars, allocating a new one
// via alloc only on first sight of this content. alloc receives the content
// and its hash and returns the new object; the caller (the VM's allocator)
// links it onto the allocation list.
func (in *Interner) Intern(chars string, alloc func(chars string, hash uint32) *value.StringObj) *value.StringObj {
	h := fnv1a(chars)
	if existing := in.pool.FindString(chars, h); existing != nil {
		return existing
	}
	obj := alloc(chars, h)
	in.pool.Set(obj, value.Bool(true))
	return obj
}

// Sweep erases every intern-pool entry whose key is unmarked, run before the
// general sweep so dead strings don't keep themselves "reachable" through
// the pool alone.
func (in *Interner) Sweep() {
	for _, key := range in.pool.Keys() {
		if !key.Marked {
			in.pool.Delete(key)
		}
	}
}

// fnv1a computes the 32-bit FNV-1a hash of s.
func fnv1a(s string) uint32 {
	var hash uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		hash ^= uint32(s[i])
		hash *= 16777619
	}
	return hash
}
