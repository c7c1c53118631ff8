package service

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"memlab/infra/memory"
)

// Measurement is the footprint of one container holding count integers.
type Measurement struct {
	Name string
	// Shallow is memory.Sizeof of the finished container.
	Shallow uint64
	// Allocated is every byte allocated while building it, including
	// backing arrays abandoned by growth.
	Allocated uint64
}

// CompareDataStructures builds equivalent containers of count integers and
// reports the memory each one takes.
func CompareDataStructures(w io.Writer, count int) []Measurement {
	builders := []struct {
		name  string
		build func() any
	}{
		{"slice (append)", func() any {
			var s []int
			for i := 0; i < count; i++ {
				s = append(s, i)
			}
			return s
		}},
		{"slice (preallocated)", func() any {
			s := make([]int, count)
			for i := range s {
				s[i] = i
			}
			return s
		}},
		{"set (map[int]struct{})", func() any {
			m := make(map[int]struct{}, count)
			for i := 0; i < count; i++ {
				m[i] = struct{}{}
			}
			return m
		}},
		{"dict (map[int]int)", func() any {
			m := make(map[int]int, count)
			for i := 0; i < count; i++ {
				m[i] = i
			}
			return m
		}},
	}

	results := make([]Measurement, 0, len(builders))
	for _, b := range builders {
		var v any
		a := memory.Measure(func() { v = b.build() })
		results = append(results, Measurement{
			Name:      b.name,
			Shallow:   uint64(memory.Sizeof(v)),
			Allocated: a.Bytes,
		})
	}

	fmt.Fprintf(w, "\nMemory usage comparison (%s integers):\n", humanize.Comma(int64(count)))
	for _, r := range results {
		fmt.Fprintf(w, "- %s: %.2f KB (allocated while building: %s)\n",
			r.Name, float64(r.Shallow)/1024, humanize.IBytes(r.Allocated))
	}
	return results
}
