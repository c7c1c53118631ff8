// Package refcount models a reference-counted heap.
//
// Objects are reclaimed the moment their count of owners reaches zero.
// Owning edges between objects count as owners, so a ring of objects that
// point at each other keeps every member alive after the last external
// reference is gone. Collect is the cycle-collecting pass that finds and
// reclaims such rings. Weak edges never count as owners.
package refcount
