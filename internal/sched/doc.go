// Package sched implements the time-slice expiration core of a preemptive
// round-robin scheduler: per-CPU slice tracking, the sliceability predicate,
// expiration handling with optional per-thread expiry callbacks, and
// cross-CPU coordination through pending flags plus best-effort signaling.
//
// The package is built around one rule: a CPU's tracker state is only ever
// touched by that CPU's own tick path. Anything that needs to affect another
// CPU (a global reconfiguration, an override installed on a thread running
// elsewhere) sets the target's pending flag and signals it; the target
// re-evaluates locally on its next tick. The tick path itself is O(1),
// allocation-free and never blocks.
package sched
