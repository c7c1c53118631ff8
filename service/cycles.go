package service

import (
	"context"
	"fmt"
	"io"
	"weak"

	"memlab/domain/lifecycle"
	"memlab/domain/refcount"
)

// CycleResult is what a circular reference demonstration observed.
type CycleResult struct {
	Nodes int
	// ReclaimedByCounting is how many nodes died when the external
	// references were released.
	ReclaimedByCounting int
	// LeakedAfterRelease is how many nodes survived counting alone.
	LeakedAfterRelease int
	// Collected is how many nodes the cycle-collecting pass reclaimed.
	Collected int
	// RuntimeReclaimed is how many Go-runtime nodes the tracing collector reclaimed.
	RuntimeReclaimed int
	// RuntimeSurvivors is how many Go-runtime nodes weak probes still reach.
	RuntimeSurvivors int
}

// CreateCircularReference builds a ring of nodes that own their successor,
// drops every external reference and shows that counting alone leaks the
// ring until a cycle collection runs. The same ring is then built from
// plain Go pointers, which the runtime's tracing collector reclaims.
func CreateCircularReference(ctx context.Context, w io.Writer, nodes int) (CycleResult, error) {
	fmt.Fprintln(w, "\nCreating nodes with circular references...")
	res, err := countedRing(w, nodes, false)
	if err != nil {
		return res, err
	}
	if res.Collected > 0 {
		fmt.Fprintln(w, "\nNodes with circular references are only reclaimed by the cycle collector!")
	}

	if err := runtimeRing(ctx, w, nodes, false, &res); err != nil {
		return res, err
	}
	return res, nil
}

// FixCircularReference repeats CreateCircularReference with weak links.
// Nothing owns a node except the caller, so every node dies on release.
func FixCircularReference(ctx context.Context, w io.Writer, nodes int) (CycleResult, error) {
	fmt.Fprintln(w, "\nCreating nodes with weak references...")
	res, err := countedRing(w, nodes, true)
	if err != nil {
		return res, err
	}
	if res.LeakedAfterRelease == 0 {
		fmt.Fprintln(w, "\nNodes with weak references are properly garbage collected!")
	}

	if err := runtimeRing(ctx, w, nodes, true, &res); err != nil {
		return res, err
	}
	return res, nil
}

func countedRing(w io.Writer, n int, weakLinks bool) (CycleResult, error) {
	res := CycleResult{Nodes: n}
	heap := refcount.NewHeap(
		refcount.WithCreateHook(func(o *refcount.Object) {
			fmt.Fprintf(w, "Node '%s' created\n", o.Name)
		}),
		refcount.WithDestroyHook(func(o *refcount.Object) {
			fmt.Fprintf(w, "Node '%s' destroyed\n", o.Name)
		}),
	)

	ring := make([]*refcount.Object, n)
	for i := range ring {
		ring[i] = heap.New(fmt.Sprintf("Node-%d", i))
	}
	link := heap.Link
	if weakLinks {
		link = heap.LinkWeak
	}
	for i, node := range ring {
		if err := link(node, ring[(i+1)%n]); err != nil {
			return res, err
		}
	}

	fmt.Fprintln(w, "\nRemoving external references to nodes...")
	for _, node := range ring {
		if err := heap.Release(node); err != nil {
			return res, err
		}
	}
	res.LeakedAfterRelease = heap.Live()
	res.ReclaimedByCounting = n - res.LeakedAfterRelease
	if res.LeakedAfterRelease > 0 {
		fmt.Fprintf(w, "%d of %d nodes outlived their last external reference\n",
			res.LeakedAfterRelease, n)
	}

	fmt.Fprintln(w, "\nRunning garbage collection...")
	res.Collected = heap.Collect()
	fmt.Fprintf(w, "cycle collector reclaimed %d node(s), %d still live\n", res.Collected, heap.Live())
	return res, nil
}

func runtimeRing(ctx context.Context, w io.Writer, n int, weakLinks bool, res *CycleResult) error {
	kind := "pointers"
	if weakLinks {
		kind = "weak.Pointer links"
	}
	fmt.Fprintf(w, "\nSame ring with Go %s, left to the runtime collector...\n", kind)

	tr := lifecycle.NewTracker()
	// The ring is only reachable inside this closure.
	probes := func() []weak.Pointer[lifecycle.Node] {
		return lifecycle.Probe(lifecycle.NewRing(tr, n, weakLinks))
	}()

	names, err := tr.Wait(ctx, n)
	names = append(names, tr.Drain()...)
	for _, name := range names {
		fmt.Fprintf(w, "Node '%s' reclaimed by runtime.GC\n", name)
	}
	res.RuntimeReclaimed = len(names)
	res.RuntimeSurvivors = lifecycle.Survivors(probes)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Go's tracing collector reclaimed %d of %d tracked nodes; weak probes left alive: %d\n",
		tr.Reclaimed(), tr.Tracked(), res.RuntimeSurvivors)
	return nil
}
