package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetireRingFIFO(t *testing.T) {
	r := NewRetireRing[buffer](4)
	b1, b2 := newBuffer(), newBuffer()

	require.True(t, r.Retire(b1, 0))
	require.True(t, r.Retire(b2, 0))
	assert.Equal(t, 2, r.Len())

	e, ok := r.peek()
	require.True(t, ok)
	assert.Same(t, b1, e.obj)
	r.pop()

	e, ok = r.peek()
	require.True(t, ok)
	assert.Same(t, b2, e.obj)
	r.pop()

	_, ok = r.peek()
	assert.False(t, ok)
}

func TestRetireRingFull(t *testing.T) {
	r := NewRetireRing[buffer](2)
	assert.True(t, r.Retire(newBuffer(), 0))
	assert.True(t, r.Retire(newBuffer(), 0))
	assert.False(t, r.Retire(newBuffer(), 0))
	assert.Equal(t, 2, r.Cap())
}

func TestRetireRingSizeMustBePowerOfTwo(t *testing.T) {
	assert.Panics(t, func() { NewRetireRing[buffer](3) })
	assert.Panics(t, func() { NewRetireRing[buffer](0) })
}

func TestAdvanceAndReclaimWaitsForReaders(t *testing.T) {
	var epoch Epoch
	ring := NewRetireRing[buffer](8)
	pool, err := NewPool(newBuffer, 8)
	require.NoError(t, err)
	reader := NewReaderEpoch()

	reader.Enter(&epoch)
	require.True(t, ring.Retire(newBuffer(), epoch.Current()))

	n := AdvanceAndReclaim(&epoch, ring, pool, reader)
	assert.Zero(t, n.Total(), "reader may still see the retired object")
	assert.Equal(t, 1, ring.Len())

	reader.Exit()
	n = AdvanceAndReclaim(&epoch, ring, pool, reader)
	assert.Equal(t, Reclaimed{Kept: 1}, n)
	assert.Zero(t, ring.Len())
	assert.Equal(t, 1, pool.Len())
}

func TestAdvanceAndReclaimReaderEnteredLater(t *testing.T) {
	var epoch Epoch
	ring := NewRetireRing[buffer](8)
	pool, err := NewPool(newBuffer, 8)
	require.NoError(t, err)

	require.True(t, ring.Retire(newBuffer(), epoch.Current()))
	AdvanceAndReclaim(&epoch, ring, pool) // no readers: reclaimed immediately
	assert.Equal(t, 1, pool.Len())

	late := NewReaderEpoch()
	require.True(t, ring.Retire(newBuffer(), epoch.Current()))
	epoch.v.Add(1)
	late.Enter(&epoch)
	assert.True(t, late.Active())

	n := AdvanceAndReclaim(&epoch, ring, pool, late, nil)
	assert.Equal(t, 1, n.Kept, "reader entered after the retire epoch")
}

func TestAdvanceAndReclaimCountsDrops(t *testing.T) {
	var epoch Epoch
	ring := NewRetireRing[buffer](4)
	pool, err := NewPool(newBuffer, 1)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.True(t, ring.Retire(newBuffer(), epoch.Current()))
	}
	n := AdvanceAndReclaim(&epoch, ring, pool)
	assert.Equal(t, Reclaimed{Kept: 1, Dropped: 2}, n)
	assert.Equal(t, 3, n.Total())
	assert.Zero(t, ring.Len())
	assert.Equal(t, 1, pool.Len())
}
