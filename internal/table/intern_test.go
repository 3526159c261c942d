package table

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xirelogy/go-fer/internal/value"
)

func newStringObj(chars string, hash uint32) *value.StringObj {
	return &value.StringObj{Chars: chars, Hash: hash}
}

func TestInternReturnsCanonicalObject(t *testing.T) {
	in := NewInterner()
	allocs := 0
	alloc := func(chars string, hash uint32) *value.StringObj {
		allocs++
		return newStringObj(chars, hash)
	}

	a := in.Intern("hi", alloc)
	b := in.Intern("hi", alloc)
	require.Same(t, a, b)
	require.Equal(t, 1, allocs, "second Intern of the same content must not allocate")

	c := in.Intern("bye", alloc)
	require.NotSame(t, a, c)
	require.Equal(t, 2, allocs)
}

func TestInternSweepErasesUnmarked(t *testing.T) {
	in := NewInterner()
	alloc := func(chars string, hash uint32) *value.StringObj {
		return newStringObj(chars, hash)
	}

	live := in.Intern("live", alloc)
	dead := in.Intern("dead", alloc)
	live.Marked = true

	in.Sweep()

	require.NotNil(t, in.pool.FindString("live", fnv1a("live")))
	require.Nil(t, in.pool.FindString("dead", fnv1a("dead")))
	_ = dead
}
