// Package rate provides a Redis-backed failed-attempt counter used by the
// sandbox identity provider to lock out password guessing.
//
// # Window semantics
//
// Fixed-window counters: INCR plus EXPIRE on the first hit. Keys are
// "<prefix>:<subject>".
//
// # What this package must NOT do
//
//   - Decide what counts as a failure. Callers report failures.
package rate
