package chunk

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChunkWriteTracksLines(t *testing.T) {
	c := New()
	c.Write(byte(OpNil), 1)
	c.Write(byte(OpTrue), 1)
	c.Write(byte(OpPop), 2)

	require.Equal(t, []byte{byte(OpNil), byte(OpTrue), byte(OpPop)}, c.Code)
	require.Equal(t, []int{1, 1, 2}, c.Lines)
	require.Equal(t, 3, c.Len())
}

func TestChunkWriteU16BigEndian(t *testing.T) {
	c := New()
	c.WriteU16(0x1234, 5)
	require.Equal(t, []byte{0x12, 0x34}, c.Code)
	require.Equal(t, []int{5, 5}, c.Lines)
}

func TestChunkAddConstant(t *testing.T) {
	c := New()
	idx, err := c.AddConstant("first")
	require.NoError(t, err)
	require.Equal(t, 0, idx)

	idx, err = c.AddConstant("second")
	require.NoError(t, err)
	require.Equal(t, 1, idx)
	require.Equal(t, []interface{}{"first", "second"}, c.Constants)
}

func TestChunkAddConstantOverflow(t *testing.T) {
	c := New()
	for i := 0; i < 256; i++ {
		_, err := c.AddConstant(i)
		require.NoError(t, err)
	}
	_, err := c.AddConstant(256)
	require.Error(t, err)
}
