package memory

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestSizeofMinimalValues(t *testing.T) {
	for name, v := range map[string]any{
		"nil":    nil,
		"bool":   true,
		"int":    0,
		"string": "",
		"slice":  []int{},
		"map":    map[string]int{},
		"set":    map[int]struct{}{},
		"array":  [0]int{},
		"struct": struct{}{},
	} {
		if name == "array" || name == "struct" {
			assert.Zero(t, uint64(Sizeof(v)), name)
			continue
		}
		assert.Positive(t, uint64(Sizeof(v)), name)
	}
	assert.Equal(t, unsafe.Sizeof(any(nil)), Sizeof(nil))
}

func TestSizeofLargeContainers(t *testing.T) {
	large := make([]int, 1_000_000)
	assert.Greater(t, uint64(Sizeof(large)), uint64(1_000_000))

	dict := make(map[int]int, 100_000)
	for i := 0; i < 100_000; i++ {
		dict[i] = i * 2
	}
	assert.Greater(t, uint64(Sizeof(dict)), uint64(1_000_000))
}

func TestSizeofIsShallow(t *testing.T) {
	var nested any = []any{}
	for i := 0; i < 1000; i++ {
		nested = []any{nested}
	}
	shallow := uint64(Sizeof(nested))
	assert.Greater(t, shallow, uint64(24))
	assert.Less(t, shallow, uint64(128))
	assert.Greater(t, uint64(DeepSizeof(nested)), 500*shallow)
}

type ring struct {
	name string
	next *ring
	data []int
}

func TestDeepSizeofCycles(t *testing.T) {
	a := &ring{name: "a", data: make([]int, 100)}
	b := &ring{name: "b", next: a, data: make([]int, 100)}
	a.next = b

	deep := uint64(DeepSizeof(a))
	floor := uint64(2*(unsafe.Sizeof(ring{})+100*unsafe.Sizeof(int(0))) + 2)
	assert.GreaterOrEqual(t, deep, floor)

	self := []any{nil}
	self[0] = self
	assert.NotPanics(t, func() { DeepSizeof(self) })
}

func TestDeepSizeofCountsSharedOnce(t *testing.T) {
	shared := make([]byte, 4096)
	pair := [2][]byte{shared, shared}
	deep := uint64(DeepSizeof(pair))
	assert.Less(t, deep, uint64(2*4096))
	assert.Greater(t, deep, uint64(4096))
}

func TestMeasure(t *testing.T) {
	var sink []int
	a := Measure(func() { sink = make([]int, 100_000) })
	assert.GreaterOrEqual(t, a.Bytes, uint64(800_000))
	assert.Len(t, sink, 100_000)
}

func TestProcessRSS(t *testing.T) {
	rss, err := ProcessRSS()
	if err != nil {
		t.Skipf("process info unavailable: %v", err)
	}
	assert.Positive(t, rss)
}
