package bitfield

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGet(t *testing.T) {
	b := New(10)
	assert.False(t, b.Get(4))
	b.Set(4)
	assert.True(t, b.Get(4))
	b.Clear(4)
	assert.False(t, b.Get(4))
}

func TestTailMasked(t *testing.T) {
	// width 10 needs 2 bytes; bits 10..15 of the second byte must stay zero
	// even if the raw input has them set.
	raw := []byte{0xFF, 0xFF}
	bf, err := FromBytes(raw, 10)
	require.NoError(t, err)
	assert.Equal(t, byte(0xC0), bf.Bytes()[1])
}

func TestPopcountAllNone(t *testing.T) {
	b := New(8)
	assert.True(t, b.NoneSet())
	for i := 0; i < 8; i++ {
		b.Set(i)
	}
	assert.True(t, b.AllSet())
	assert.Equal(t, 8, b.Popcount())
}

func TestOutOfBoundsPanics(t *testing.T) {
	b := New(4)
	assert.Panics(t, func() { b.Get(4) })
	assert.Panics(t, func() { b.Set(-1) })
}
