package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type buffer struct {
	data []int
}

func newBuffer() *buffer { return &buffer{data: make([]int, 1000)} }

func TestPoolReusesLastReleased(t *testing.T) {
	built := 0
	p, err := NewPool(func() *buffer { built++; return newBuffer() }, 10)
	require.NoError(t, err)

	a := p.Get()
	b := p.Get()
	require.Equal(t, 2, built)

	assert.True(t, p.Release(a))
	assert.True(t, p.Release(b))
	assert.Same(t, b, p.Get(), "LIFO: last released comes back first")
	assert.Same(t, a, p.Get())
	assert.Equal(t, 2, built)

	p.Get()
	assert.Equal(t, 3, built, "empty pool falls back to the factory")
}

func TestPoolNeverExceedsMax(t *testing.T) {
	p, err := NewPool(newBuffer, 3)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		kept := p.Release(newBuffer())
		assert.Equal(t, i < 3, kept)
		assert.LessOrEqual(t, p.Len(), p.MaxSize())
	}
	assert.Equal(t, 3, p.Len())
}

func TestPoolZeroCapacity(t *testing.T) {
	p, err := NewPool(newBuffer, 0)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		p.Release(p.Get())
	}
	assert.Zero(t, p.Len())
}

func TestPoolLargeCapacity(t *testing.T) {
	p, err := NewPool(newBuffer, 1_000_000)
	require.NoError(t, err)

	held := make([]*buffer, 0, 1000)
	for i := 0; i < 1000; i++ {
		held = append(held, p.Get())
	}
	for _, b := range held {
		p.Release(b)
	}
	assert.Equal(t, 1000, p.Len())
}

func TestPoolConstructionErrors(t *testing.T) {
	_, err := NewPool[buffer](nil, 10)
	assert.ErrorIs(t, err, ErrNilFactory)

	_, err = NewPool(newBuffer, -1)
	assert.ErrorIs(t, err, ErrInvalidSize)
}

func TestPoolFactoryPanicPropagates(t *testing.T) {
	p, err := NewPool(func() *buffer { panic("factory failure") }, 1)
	require.NoError(t, err)
	assert.PanicsWithValue(t, "factory failure", func() { p.Get() })
}

func TestPoolReleaseNil(t *testing.T) {
	p, err := NewPool(newBuffer, 1)
	require.NoError(t, err)
	assert.False(t, p.Release(nil))
	assert.Zero(t, p.Len())
}

func TestPoolPutAnyWrongType(t *testing.T) {
	p, err := NewPool(newBuffer, 1)
	require.NoError(t, err)
	assert.Panics(t, func() { p.PutAny(42) })
	assert.True(t, p.PutAny(newBuffer()))
	assert.Equal(t, 1, p.Len())
}

func TestSyncPool(t *testing.T) {
	sp := NewSyncPool(newBuffer)
	b := sp.Get()
	require.NotNil(t, b)
	assert.Len(t, b.data, 1000)
	sp.Put(b)
	sp.Put(nil)
	assert.NotNil(t, sp.Get())
}

func BenchmarkPoolGetRelease(b *testing.B) {
	p, _ := NewPool(newBuffer, 64)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			p.Release(p.Get())
		}
	})
}

func BenchmarkSyncPoolGetPut(b *testing.B) {
	p := NewSyncPool(newBuffer)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			p.Put(p.Get())
		}
	})
}
