package memory

import "sync/atomic"

const inactive = ^uint64(0)

// Epoch is a monotonically increasing reclamation clock.
type Epoch struct {
	v atomic.Uint64
}

func (e *Epoch) Current() uint64 { return e.v.Load() }

// ReaderEpoch marks when a reader entered a read section.
type ReaderEpoch struct {
	epoch atomic.Uint64
}

// NewReaderEpoch returns a reader that starts outside any read section.
func NewReaderEpoch() *ReaderEpoch {
	r := &ReaderEpoch{}
	r.epoch.Store(inactive)
	return r
}

func (r *ReaderEpoch) Enter(e *Epoch) {
	r.epoch.Store(e.Current())
}

func (r *ReaderEpoch) Exit() {
	r.epoch.Store(inactive)
}

func (r *ReaderEpoch) Active() bool {
	return r.epoch.Load() != inactive
}

// ReclaimablePool is the only requirement for reclamation.
// PutAny reports whether the pool kept the object.
type ReclaimablePool interface {
	PutAny(any) bool
}

// Reclaimed counts what one AdvanceAndReclaim pass took off the ring.
type Reclaimed struct {
	Kept    int // returned to the pool
	Dropped int // refused by a full pool, left to the garbage collector
}

func (r Reclaimed) Total() int { return r.Kept + r.Dropped }

// AdvanceAndReclaim advances the epoch and hands every retired object
// that no active reader can still observe back to pool. An object retired
// in epoch E is safe once the oldest active reader entered after E.
func AdvanceAndReclaim[T any](
	e *Epoch,
	ring *RetireRing[T],
	pool ReclaimablePool,
	readers ...*ReaderEpoch,
) Reclaimed {
	e.v.Add(1)
	oldest := minReaderEpoch(readers...)

	var res Reclaimed
	for {
		r, ok := ring.peek()
		if !ok {
			return res
		}
		// FIFO: if the oldest retiree is not safe, newer ones are not either.
		if oldest != inactive && r.epoch >= oldest {
			return res
		}
		ring.pop()
		if pool.PutAny(r.obj) {
			res.Kept++
		} else {
			res.Dropped++
		}
	}
}

func minReaderEpoch(rs ...*ReaderEpoch) uint64 {
	oldest := inactive
	for _, r := range rs {
		if r == nil {
			continue
		}
		if v := r.epoch.Load(); v < oldest {
			oldest = v
		}
	}
	return oldest
}
