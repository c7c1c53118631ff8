package service

import (
	"fmt"
	"io"
	"runtime"

	"github.com/dustin/go-humanize"

	"memlab/infra/memory"
)

// TrackObjectsCount returns the number of live heap objects before and
// after a forced collection.
func TrackObjectsCount() (before, after uint64) {
	before = memory.ReadHeap().HeapObjects
	runtime.GC()
	after = memory.ReadHeap().HeapObjects
	return before, after
}

// GCStats is the runtime view printed by the statistics section.
type GCStats struct {
	ObjectsBefore uint64
	ObjectsAfter  uint64
	Heap          memory.HeapSample
	RSS           uint64
}

// Cleaned is how many objects the forced collection freed.
func (s GCStats) Cleaned() uint64 {
	if s.ObjectsAfter > s.ObjectsBefore {
		return 0
	}
	return s.ObjectsBefore - s.ObjectsAfter
}

func DemonstrateGCStatistics(w io.Writer) GCStats {
	var s GCStats
	s.ObjectsBefore, s.ObjectsAfter = TrackObjectsCount()
	s.Heap = memory.ReadHeap()

	fmt.Fprintf(w, "Objects before garbage collection: %d\n", s.ObjectsBefore)
	fmt.Fprintf(w, "Objects after garbage collection: %d\n", s.ObjectsAfter)
	fmt.Fprintf(w, "Objects cleaned up: %d\n", s.Cleaned())
	fmt.Fprintf(w, "Heap in use: %s, collections: %d, total pause: %s\n",
		humanize.IBytes(s.Heap.HeapAlloc), s.Heap.NumGC, s.Heap.PauseTotal)
	fmt.Fprintf(w, "Allocations: %s, frees: %s\n",
		humanize.Comma(int64(s.Heap.Mallocs)), humanize.Comma(int64(s.Heap.Frees)))

	if rss, err := memory.ProcessRSS(); err == nil {
		s.RSS = rss
		fmt.Fprintf(w, "Process resident set: %s\n", humanize.IBytes(rss))
	}
	return s
}
