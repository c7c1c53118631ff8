// Package sequence issues run ids.
package sequence

import "sync/atomic"

// Sequencer generates strictly monotonic run ids.
type Sequencer struct {
	last atomic.Uint64
}

// New creates a sequencer whose first id is start+1.
// On a fresh store start = 0; otherwise start is the store's last id.
func New(start uint64) *Sequencer {
	s := &Sequencer{}
	s.last.Store(start)
	return s
}

// Next returns the next run id.
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current returns the last issued id.
func (s *Sequencer) Current() uint64 {
	return s.last.Load()
}
