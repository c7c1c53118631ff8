package service

import (
	"fmt"
	"io"

	"memlab/domain/refcount"
)

// RefCountResult is what DemonstrateReferenceCounting observed.
type RefCountResult struct {
	// Counts after creation, aliasing, the first release and the second release.
	Counts []int
	// DestroyedAtRelease is the 1-based release that destroyed the object.
	DestroyedAtRelease int
}

// DemonstrateReferenceCounting creates an object, aliases it and drops the
// references one at a time. The object is destroyed only by the last release.
func DemonstrateReferenceCounting(w io.Writer) (RefCountResult, error) {
	var (
		res      RefCountResult
		releases int
	)
	heap := refcount.NewHeap(
		refcount.WithCreateHook(func(o *refcount.Object) {
			fmt.Fprintf(w, "Object '%s' created\n", o.Name)
		}),
		refcount.WithDestroyHook(func(o *refcount.Object) {
			res.DestroyedAtRelease = releases
			fmt.Fprintf(w, "Object '%s' destroyed\n", o.Name)
		}),
	)
	count := func(o *refcount.Object) {
		n := heap.RefCount(o)
		res.Counts = append(res.Counts, n)
		fmt.Fprintf(w, "reference count: %d\n", n)
	}

	fmt.Fprintln(w, "\nCreating object...")
	obj := heap.New("test")
	count(obj)

	fmt.Fprintln(w, "\nCreating second reference...")
	alias, err := heap.Retain(obj)
	if err != nil {
		return res, err
	}
	count(alias)

	fmt.Fprintln(w, "\nDeleting first reference...")
	releases++
	if err := heap.Release(obj); err != nil {
		return res, err
	}
	count(alias)

	fmt.Fprintln(w, "\nDeleting second reference...")
	releases++
	if err := heap.Release(alias); err != nil {
		return res, err
	}
	count(alias)

	return res, nil
}
