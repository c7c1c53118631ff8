package refcount

import (
	"cmp"
	"slices"

	"go.uber.org/zap"
)

// Collect runs one cycle-collecting pass and returns how many objects it
// reclaimed.
//
// For every live object the count of owners held by other heap objects is
// subtracted from its reference count. Whatever remains positive is owned
// from outside the heap and is a root. Objects reachable from a root through
// owning edges survive; everything else is garbage kept alive only by its
// own cycle. Destroy hooks fire in allocation order.
func (h *Heap) Collect() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	external := make(map[ObjectID]int, len(h.objects))
	for id, o := range h.objects {
		external[id] += o.refs
		for _, e := range o.edges {
			external[e.ID]--
		}
	}

	reachable := make(map[ObjectID]bool, len(h.objects))
	var stack []*Object
	for id, n := range external {
		if n > 0 {
			reachable[id] = true
			stack = append(stack, h.objects[id])
		}
	}
	for len(stack) > 0 {
		o := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range o.edges {
			if !reachable[e.ID] {
				reachable[e.ID] = true
				stack = append(stack, e)
			}
		}
	}

	var garbage []*Object
	for id, o := range h.objects {
		if !reachable[id] {
			garbage = append(garbage, o)
		}
	}
	slices.SortFunc(garbage, func(a, b *Object) int {
		return cmp.Compare(a.ID, b.ID)
	})

	var owned []*Object
	for _, o := range garbage {
		owned = append(owned, h.destroy(o)...)
	}
	// Survivors lose the references the garbage held on them.
	for _, e := range owned {
		if e.alive {
			h.decref(e)
		}
	}

	if len(garbage) > 0 {
		h.log.Debug("cycle collection", zap.Int("collected", len(garbage)), zap.Int("live", len(h.objects)))
	}
	return len(garbage)
}
