// Package memory provides the low-level primitives the demonstrations
// measure and reuse: a bounded object pool, a sync.Pool wrapper, value
// size estimation, heap sampling, and epoch-based deferred reclamation
// through a RetireRing.
//
// Everything here is single-process and dependency-light. Callers own
// the narration; this package only reports numbers.
package memory
