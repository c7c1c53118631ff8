package memory

import (
	"os"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shirou/gopsutil/v3/process"
)

// HeapSample is a point-in-time read of the runtime allocator.
type HeapSample struct {
	HeapAlloc   uint64
	HeapObjects uint64
	TotalAlloc  uint64
	Mallocs     uint64
	Frees       uint64
	NumGC       uint32
	PauseTotal  time.Duration
}

func ReadHeap() HeapSample {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return HeapSample{
		HeapAlloc:   m.HeapAlloc,
		HeapObjects: m.HeapObjects,
		TotalAlloc:  m.TotalAlloc,
		Mallocs:     m.Mallocs,
		Frees:       m.Frees,
		NumGC:       m.NumGC,
		PauseTotal:  time.Duration(m.PauseTotalNs),
	}
}

// Allocation is what a measured function cost the allocator.
// TotalAlloc only grows, so Bytes is unaffected by collections during fn.
type Allocation struct {
	Bytes    uint64
	Objects  uint64
	Duration time.Duration
}

// Measure runs fn and reports the bytes and objects it allocated.
// Concurrent goroutines allocate into the same counters; callers that need
// exact numbers must keep the process otherwise idle.
func Measure(fn func()) Allocation {
	before := ReadHeap()
	start := time.Now()
	fn()
	d := time.Since(start)
	after := ReadHeap()
	return Allocation{
		Bytes:    after.TotalAlloc - before.TotalAlloc,
		Objects:  after.Mallocs - before.Mallocs,
		Duration: d,
	}
}

// ProcessRSS returns the resident set size of the current process.
func ProcessRSS() (uint64, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return 0, errors.Wrap(err, "memory: open self process")
	}
	mi, err := p.MemoryInfo()
	if err != nil {
		return 0, errors.Wrap(err, "memory: read process memory info")
	}
	return mi.RSS, nil
}
