package sched

// Config is a snapshot of the global time-slicing configuration. It is
// replaced as a whole through an atomic pointer, so a reader never sees a
// duration from one configuration paired with a ceiling from another.
type Config struct {
	// Ticks is the default slice duration. Zero or negative disables
	// global time slicing.
	Ticks int64

	// Ceiling is the priority ceiling. Threads strictly more urgent than
	// the ceiling (priority < Ceiling) are exempt; a thread exactly at
	// the ceiling is sliced. Per-thread overrides bypass the ceiling.
	Ceiling int32
}

// Enabled reports whether global time slicing is on.
func (c Config) Enabled() bool { return c.Ticks > 0 }

// Override is a per-thread slice configuration. When installed it takes
// strict precedence over the global Config for that thread: the duration
// replaces the global default and the ceiling check is skipped entirely.
// Ticks <= 0 disables slicing for the thread unconditionally.
type Override struct {
	Ticks  int64
	expiry ExpiryHandler
	data   any
}
