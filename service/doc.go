// Package service runs the memory-management demonstrations.
//
// Each demonstration narrates to an io.Writer and returns what it measured.
// Suite runs them in their fixed order, turns the results into a
// report.Report, and optionally records it.
package service
