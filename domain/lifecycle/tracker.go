package lifecycle

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
)

// Tracker collects destruction notices for tracked objects.
type Tracker struct {
	events  chan string
	tracked atomic.Int64
	reaped  atomic.Int64
}

func NewTracker() *Tracker {
	return &Tracker{events: make(chan string, 4096)}
}

// Track registers ptr so the tracker hears about it once the collector
// reclaims it. name must not reference ptr.
func Track[T any](t *Tracker, ptr *T, name string) {
	t.tracked.Add(1)
	runtime.AddCleanup(ptr, t.cleanup, name)
}

func (t *Tracker) cleanup(name string) {
	t.reaped.Add(1)
	t.events <- name
}

// Tracked is the number of objects registered so far.
func (t *Tracker) Tracked() int64 { return t.tracked.Load() }

// Reclaimed is the number of cleanups that have run.
func (t *Tracker) Reclaimed() int64 { return t.reaped.Load() }

// Wait forces collections until n destruction notices arrive or ctx ends.
// It returns the names in the order the runtime reported them.
func (t *Tracker) Wait(ctx context.Context, n int) ([]string, error) {
	names := make([]string, 0, n)
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()

	runtime.GC()
	for len(names) < n {
		select {
		case name := <-t.events:
			names = append(names, name)
		case <-tick.C:
			runtime.GC()
		case <-ctx.Done():
			return names, errors.Wrapf(ctx.Err(), "lifecycle: %d of %d objects reclaimed", len(names), n)
		}
	}
	return names, nil
}

// Drain returns notices that already arrived without forcing a collection.
func (t *Tracker) Drain() []string {
	var names []string
	for {
		select {
		case name := <-t.events:
			names = append(names, name)
		default:
			return names
		}
	}
}
