package memory

import "sync"

// SyncPool is a typed sync.Pool. Unlike Pool it is unbounded and the
// runtime may drop idle instances at any collection.
type SyncPool[T any] struct {
	p *sync.Pool
}

func NewSyncPool[T any](ctor func() *T) *SyncPool[T] {
	return &SyncPool[T]{
		p: &sync.Pool{
			New: func() any { return ctor() },
		},
	}
}

func (p *SyncPool[T]) Get() *T {
	return p.p.Get().(*T)
}

func (p *SyncPool[T]) Put(v *T) {
	if v == nil {
		return
	}
	p.p.Put(v)
}

// PutAny lets a SyncPool act as a ReclaimablePool. It keeps every non-nil object.
func (p *SyncPool[T]) PutAny(v any) bool {
	obj, ok := v.(*T)
	if !ok {
		panic("memory.SyncPool: PutAny received wrong type")
	}
	p.Put(obj)
	return obj != nil
}
