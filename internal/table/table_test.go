package table

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/xirelogy/go-fer/internal/value"
)

func str(chars string) *value.StringObj {
	return &value.StringObj{Chars: chars, Hash: fnv1a(chars)}
}

func TestTableSetGetDelete(t *testing.T) {
	tb := New()
	k := str("key")

	isNew := tb.Set(k, value.Number(1))
	require.True(t, isNew)

	v, ok := tb.Get(k)
	require.True(t, ok)
	require.Equal(t, value.Number(1), v)

	isNew = tb.Set(k, value.Number(2))
	require.False(t, isNew, "overwriting a live key is not a new insert")

	require.True(t, tb.Delete(k))
	_, ok = tb.Get(k)
	require.False(t, ok)
	require.False(t, tb.Delete(k), "deleting twice reports no key present")
}

func TestTableGetOnEmptyTable(t *testing.T) {
	tb := New()
	_, ok := tb.Get(str("missing"))
	require.False(t, ok)
}

func TestTableKeyIdentityNotContent(t *testing.T) {
	tb := New()
	a := str("same")
	b := str("same")
	tb.Set(a, value.Number(1))

	_, ok := tb.Get(b)
	require.False(t, ok, "find is by pointer identity, a distinct StringObj with equal content is a different key")
}

func TestTableGrowsAndSurvivesRehash(t *testing.T) {
	tb := New()
	keys := make([]*value.StringObj, 0, 64)
	for i := 0; i < 64; i++ {
		k := str(string(rune('a' + i%26)) + string(rune(i)))
		keys = append(keys, k)
		tb.Set(k, value.Number(float64(i)))
	}
	for i, k := range keys {
		v, ok := tb.Get(k)
		require.True(t, ok)
		require.Equal(t, value.Number(float64(i)), v)
	}
}

func TestTableAddAll(t *testing.T) {
	src := New()
	a, b := str("a"), str("b")
	src.Set(a, value.Number(1))
	src.Set(b, value.Number(2))

	dst := New()
	existing := str("existing")
	dst.Set(existing, value.Number(99))
	dst.AddAll(src)

	v, ok := dst.Get(a)
	require.True(t, ok)
	require.Equal(t, value.Number(1), v)
	v, ok = dst.Get(b)
	require.True(t, ok)
	require.Equal(t, value.Number(2), v)
	v, ok = dst.Get(existing)
	require.True(t, ok)
	require.Equal(t, value.Number(99), v)
}

func TestTableKeysAfterTombstone(t *testing.T) {
	tb := New()
	a, b := str("a"), str("b")
	tb.Set(a, value.Number(1))
	tb.Set(b, value.Number(2))
	tb.Delete(a)

	keys := tb.Keys()
	require.Len(t, keys, 1)
	require.Equal(t, b, keys[0])
}

func TestTableFindString(t *testing.T) {
	tb := New()
	a := str("hello")
	tb.Set(a, value.Bool(true))

	found := tb.FindString("hello", fnv1a("hello"))
	require.Same(t, a, found)

	require.Nil(t, tb.FindString("nope", fnv1a("nope")))
}

func TestFNV1AStable(t *testing.T) {
	require.Equal(t, fnv1a("hello"), fnv1a("hello"))
	require.NotEqual(t, fnv1a("hello"), fnv1a("world"))
}
