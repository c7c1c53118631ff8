package service

import (
	"fmt"
	"io"
	"time"

	"memlab/infra/memory"
)

// expensiveObject stands in for something costly to build.
type expensiveObject struct {
	Data []int
}

type PoolingConfig struct {
	Size        int
	Iterations  int
	FactoryCost time.Duration
}

// PoolingResult compares acquire/use/release loops.
type PoolingResult struct {
	Pooled     time.Duration
	Unpooled   time.Duration
	SyncPooled time.Duration
	// Constructed counts factory calls made by the bounded pool loop.
	Constructed int
	PoolLen     int
	Speedup     float64
}

// DemonstrateObjectPooling runs the same loop with the bounded pool, with
// no pool at all, and with sync.Pool.
func DemonstrateObjectPooling(w io.Writer, cfg PoolingConfig) (PoolingResult, error) {
	var res PoolingResult
	constructed := 0
	create := func() *expensiveObject {
		constructed++
		if cfg.FactoryCost > 0 {
			time.Sleep(cfg.FactoryCost)
		}
		return &expensiveObject{Data: make([]int, 1000)}
	}

	fmt.Fprintln(w, "\nCreating object pool...")
	pool, err := memory.NewPool(create, cfg.Size)
	if err != nil {
		return res, err
	}

	fmt.Fprintln(w, "\nTesting with object pooling...")
	start := time.Now()
	for i := 0; i < cfg.Iterations; i++ {
		obj := pool.Get()
		obj.Data[0] = i
		pool.Release(obj)
	}
	res.Pooled = time.Since(start)
	res.Constructed = constructed
	res.PoolLen = pool.Len()

	fmt.Fprintln(w, "\nTesting without object pooling...")
	start = time.Now()
	for i := 0; i < cfg.Iterations; i++ {
		obj := create()
		obj.Data[0] = i
	}
	res.Unpooled = time.Since(start)

	fmt.Fprintln(w, "\nTesting with sync.Pool...")
	sp := memory.NewSyncPool(create)
	start = time.Now()
	for i := 0; i < cfg.Iterations; i++ {
		obj := sp.Get()
		obj.Data[0] = i
		sp.Put(obj)
	}
	res.SyncPooled = time.Since(start)

	res.Speedup = float64(res.Unpooled) / float64(max(res.Pooled, time.Nanosecond))

	fmt.Fprintf(w, "\nTime with object pooling: %.4fs (%d constructed, %d idle)\n",
		res.Pooled.Seconds(), res.Constructed, res.PoolLen)
	fmt.Fprintf(w, "Time without object pooling: %.4fs\n", res.Unpooled.Seconds())
	fmt.Fprintf(w, "Time with sync.Pool: %.4fs\n", res.SyncPooled.Seconds())
	fmt.Fprintf(w, "Speed improvement: %.2fx\n", res.Speedup)
	return res, nil
}
