package memory

import (
	"sync"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNilFactory is returned when a pool is built without a factory.
	ErrNilFactory = errors.New("memory: pool factory is nil")
	// ErrInvalidSize is returned for a negative pool capacity.
	ErrInvalidSize = errors.New("memory: pool size must not be negative")
)

// Pool is a bounded reuse cache for expensive objects.
//
// Get hands back the most recently released instance, or builds a new one
// with the factory when the pool is empty. Release keeps an instance only
// while the pool holds fewer than MaxSize objects; anything beyond that is
// dropped and left to the garbage collector.
type Pool[T any] struct {
	mu      sync.Mutex
	factory func() *T
	maxSize int
	items   []*T
}

func NewPool[T any](factory func() *T, maxSize int) (*Pool[T], error) {
	if factory == nil {
		return nil, ErrNilFactory
	}
	if maxSize < 0 {
		return nil, errors.Wrapf(ErrInvalidSize, "got %d", maxSize)
	}
	return &Pool[T]{
		factory: factory,
		maxSize: maxSize,
		items:   make([]*T, 0, min(maxSize, 64)),
	}, nil
}

// Get returns a pooled instance or a freshly built one.
// A panicking factory propagates to the caller.
func (p *Pool[T]) Get() *T {
	p.mu.Lock()
	if n := len(p.items); n > 0 {
		obj := p.items[n-1]
		p.items[n-1] = nil
		p.items = p.items[:n-1]
		p.mu.Unlock()
		return obj
	}
	p.mu.Unlock()
	return p.factory()
}

// Release returns obj to the pool. It reports whether the pool kept it.
func (p *Pool[T]) Release(obj *T) bool {
	if obj == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.items) >= p.maxSize {
		return false
	}
	p.items = append(p.items, obj)
	return true
}

// PutAny allows Pool[T] to satisfy ReclaimablePool.
func (p *Pool[T]) PutAny(v any) bool {
	obj, ok := v.(*T)
	if !ok {
		panic("memory.Pool: PutAny received wrong type")
	}
	return p.Release(obj)
}

// Len is the number of idle instances currently held.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

func (p *Pool[T]) MaxSize() int { return p.maxSize }
