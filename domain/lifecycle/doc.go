// Package lifecycle observes real Go objects being reclaimed by the runtime
// collector, using runtime.AddCleanup for destruction notices and
// weak.Pointer for non-owning links.
package lifecycle
