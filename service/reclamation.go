package service

import (
	"fmt"
	"io"

	"github.com/cockroachdb/errors"

	"memlab/infra/memory"
)

// ReclaimResult is what DemonstrateDeferredReclamation observed.
type ReclaimResult struct {
	Retired            int
	ReclaimedInRead    int
	ReclaimedAfterRead int
	// Dropped counts reclaimed objects a full pool refused.
	Dropped int
	PoolLen int
	// Reused reports whether the next Get handed back a reclaimed instance.
	Reused bool
}

// DemonstrateDeferredReclamation retires pooled objects while a reader may
// still be looking at them. They stay parked in the retire ring until the
// reader leaves its read section, then return to the pool for reuse.
func DemonstrateDeferredReclamation(w io.Writer, retire int) (ReclaimResult, error) {
	var res ReclaimResult
	pool, err := memory.NewPool(func() *expensiveObject {
		return &expensiveObject{Data: make([]int, 1000)}
	}, retire)
	if err != nil {
		return res, err
	}
	ring := memory.NewRetireRing[expensiveObject](ringSize(retire))
	var epoch memory.Epoch
	reader := memory.NewReaderEpoch()

	fmt.Fprintln(w, "\nReader enters a read section...")
	reader.Enter(&epoch)

	fmt.Fprintf(w, "Writer retires %d objects the reader may still hold\n", retire)
	retired := make(map[*expensiveObject]bool, retire)
	for i := 0; i < retire; i++ {
		obj := pool.Get()
		retired[obj] = true
		if !ring.Retire(obj, epoch.Current()) {
			return res, errors.Newf("retire ring full after %d objects", i)
		}
		res.Retired++
	}

	inRead := memory.AdvanceAndReclaim(&epoch, ring, pool, reader)
	res.ReclaimedInRead = inRead.Total()
	fmt.Fprintf(w, "Epoch advanced to %d: reclaimed %d, %s\n", epoch.Current(), res.ReclaimedInRead, ring)

	fmt.Fprintln(w, "\nReader exits...")
	reader.Exit()
	afterRead := memory.AdvanceAndReclaim(&epoch, ring, pool, reader)
	res.ReclaimedAfterRead = afterRead.Total()
	res.Dropped = inRead.Dropped + afterRead.Dropped
	res.PoolLen = pool.Len()
	fmt.Fprintf(w, "Epoch advanced to %d: reclaimed %d (%d dropped by a full pool), pool holds %d\n",
		epoch.Current(), res.ReclaimedAfterRead, res.Dropped, res.PoolLen)

	if retire > 0 {
		res.Reused = retired[pool.Get()]
		fmt.Fprintf(w, "Next Get reuses a reclaimed object: %t\n", res.Reused)
	}
	return res, nil
}

func ringSize(n int) uint64 {
	size := uint64(1)
	for size < uint64(n) {
		size <<= 1
	}
	return size
}
