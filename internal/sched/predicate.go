package sched

// noExpiry is the sentinel remaining-ticks value for a CPU whose current
// thread is not subject to slicing. While pinned, ticks are cheap no-ops
// until the current thread changes or a remote re-evaluation arrives.
const noExpiry int64 = -1

// Sliceable is the full eligibility predicate: it reports whether t is
// subject to time slicing right now under cfg. Pure, no side effects, and
// cheap enough to evaluate on every tick.
func Sliceable(t *Thread, cfg Config) bool {
	return sliceCandidate(t, cfg) && t.PreemptLocks() == 0
}

// sliceCandidate is Sliceable minus the preemption-lock term. The lock is
// a transient exemption re-evaluated each tick, so the tracker must be
// able to tell "never sliceable with this thread" (pin the sentinel) from
// "sliceable once the lock drops" (keep the expiry pending).
func sliceCandidate(t *Thread, cfg Config) bool {
	if t.priority < 0 || t.idle {
		return false
	}
	if ov := t.override.Load(); ov != nil {
		// An explicit per-thread slice always applies: it ignores the
		// global enable flag and the priority ceiling.
		return ov.Ticks > 0
	}
	return cfg.Enabled() && t.priority >= cfg.Ceiling
}

// effectiveTicks returns the slice duration that applies to t: the
// override duration when present, else the global default, else noExpiry
// when the thread is not a slicing candidate at all.
func effectiveTicks(t *Thread, cfg Config) int64 {
	if !sliceCandidate(t, cfg) {
		return noExpiry
	}
	if ov := t.override.Load(); ov != nil {
		return ov.Ticks
	}
	return cfg.Ticks
}
