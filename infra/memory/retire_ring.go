package memory

import (
	"fmt"
	"sync/atomic"
)

type retired[T any] struct {
	obj   *T
	epoch uint64
}

// RetireRing is a lock-free SPSC ring buffer of objects waiting for
// every reader that could still observe them to leave its read section.
type RetireRing[T any] struct {
	head  uint64
	_pad1 [56]byte
	tail  uint64
	_pad2 [56]byte
	buf   []retired[T]
	mask  uint64
}

func NewRetireRing[T any](size uint64) *RetireRing[T] {
	if size == 0 || size&(size-1) != 0 {
		panic("RetireRing size must be power of two")
	}
	return &RetireRing[T]{
		buf:  make([]retired[T], size),
		mask: size - 1,
	}
}

// Retire tags obj with the epoch it was retired in. False means the ring is full.
func (r *RetireRing[T]) Retire(obj *T, epoch uint64) bool {
	h := atomic.LoadUint64(&r.head)
	t := atomic.LoadUint64(&r.tail)
	if h-t == uint64(len(r.buf)) {
		return false
	}
	r.buf[h&r.mask] = retired[T]{obj: obj, epoch: epoch}
	atomic.StoreUint64(&r.head, h+1)
	return true
}

// peek returns the oldest entry without removing it.
func (r *RetireRing[T]) peek() (retired[T], bool) {
	t := atomic.LoadUint64(&r.tail)
	h := atomic.LoadUint64(&r.head)
	if t == h {
		return retired[T]{}, false
	}
	return r.buf[t&r.mask], true
}

func (r *RetireRing[T]) pop() {
	t := atomic.LoadUint64(&r.tail)
	r.buf[t&r.mask] = retired[T]{}
	atomic.StoreUint64(&r.tail, t+1)
}

func (r *RetireRing[T]) Len() int {
	return int(atomic.LoadUint64(&r.head) - atomic.LoadUint64(&r.tail))
}

func (r *RetireRing[T]) Cap() int { return len(r.buf) }

func (r *RetireRing[T]) String() string {
	return fmt.Sprintf("RetireRing{len=%d, cap=%d, head=%d, tail=%d}",
		r.Len(), r.Cap(), atomic.LoadUint64(&r.head), atomic.LoadUint64(&r.tail))
}
