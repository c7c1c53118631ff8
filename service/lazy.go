package service

import (
	"fmt"
	"io"
	"iter"
	"time"

	"github.com/dustin/go-humanize"

	"memlab/infra/memory"
)

// Range yields 0..n-1 on demand.
func Range(n int) iter.Seq[int] {
	return func(yield func(int) bool) {
		for i := 0; i < n; i++ {
			if !yield(i) {
				return
			}
		}
	}
}

// Sum consumes seq.
func Sum(seq iter.Seq[int]) int {
	total := 0
	for v := range seq {
		total += v
	}
	return total
}

// LazyResult compares a materialized slice with an iterator over the same values.
type LazyResult struct {
	Count int

	EagerBytes  uint64
	LazyBytes   uint64
	EagerCreate time.Duration
	LazyCreate  time.Duration
	// Ratio is EagerBytes over the iterator's footprint.
	Ratio float64

	EagerSum     int
	LazySum      int
	EagerProcess time.Duration
	LazyProcess  time.Duration
}

// DemonstrateLazyVsEager builds count integers eagerly into a slice and
// lazily as an iter.Seq, then sums both.
func DemonstrateLazyVsEager(w io.Writer, count int) LazyResult {
	res := LazyResult{Count: count}

	fmt.Fprintf(w, "\nCreating slice of %s integers...\n", humanize.Comma(int64(count)))
	var eager []int
	a := memory.Measure(func() {
		eager = make([]int, count)
		for i := range eager {
			eager[i] = i
		}
	})
	res.EagerBytes, res.EagerCreate = a.Bytes, a.Duration

	fmt.Fprintf(w, "\nCreating iterator for %s integers...\n", humanize.Comma(int64(count)))
	var lazy iter.Seq[int]
	a = memory.Measure(func() { lazy = Range(count) })
	res.LazyBytes, res.LazyCreate = a.Bytes, a.Duration

	footprint := max(res.LazyBytes, uint64(memory.Sizeof(lazy)))
	res.Ratio = float64(res.EagerBytes) / float64(footprint)

	fmt.Fprintf(w, "\nSlice: %.2f MB, created in %.4fs\n",
		float64(res.EagerBytes)/1024/1024, res.EagerCreate.Seconds())
	fmt.Fprintf(w, "Iterator: %.2f KB, created in %.4fs\n",
		float64(footprint)/1024, res.LazyCreate.Seconds())
	fmt.Fprintf(w, "Memory efficiency ratio: %.0fx\n", res.Ratio)

	fmt.Fprintln(w, "\nProcessing all values...")
	start := time.Now()
	for _, v := range eager {
		res.EagerSum += v
	}
	res.EagerProcess = time.Since(start)

	// An iter.Seq can be ranged again; a fresh one mirrors a one-shot generator.
	lazy = Range(count)
	start = time.Now()
	res.LazySum = Sum(lazy)
	res.LazyProcess = time.Since(start)

	fmt.Fprintf(w, "Slice processing time: %.4fs\n", res.EagerProcess.Seconds())
	fmt.Fprintf(w, "Iterator processing time: %.4fs\n", res.LazyProcess.Seconds())
	return res
}
