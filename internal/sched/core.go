package sched

import (
	"sync/atomic"

	"github.com/phuslu/log"

	"ticksched/internal/logger"
)

// cpuSlice is one CPU's slice tracker. remaining and current are owned by
// the CPU's own tick path (OnTick/Reset must be called from a single
// goroutine per CPU); only the pending flag may be set remotely.
type cpuSlice struct {
	remaining int64
	current   *Thread
	pending   atomic.Bool
}

// Core is the time-slice expiration subsystem: the per-CPU trackers, the
// global configuration snapshot, and the expiration machinery. Trackers
// are allocated once at construction and live for the process lifetime.
type Core struct {
	cfg      atomic.Pointer[Config]
	cpus     []*cpuSlice
	queue    ReadyQueue
	signaler CPUSignaler
	obs      Observer
	log      log.Logger
}

// NewCore creates the subsystem for numCPU CPUs. The ready queue is
// required; signaler and observer may be nil, in which case signals are
// dropped and events are not recorded. Time slicing starts disabled until
// ConfigureGlobal or a per-thread override enables it.
func NewCore(numCPU int, queue ReadyQueue, signaler CPUSignaler, obs Observer) *Core {
	if signaler == nil {
		signaler = nopSignaler{}
	}
	if obs == nil {
		obs = nopObserver{}
	}
	c := &Core{
		cpus:     make([]*cpuSlice, numCPU),
		queue:    queue,
		signaler: signaler,
		obs:      obs,
		log:      logger.NewLoggerWithContext("sched"),
	}
	for i := range c.cpus {
		c.cpus[i] = &cpuSlice{remaining: noExpiry}
	}
	c.cfg.Store(&Config{})
	return c
}

// NumCPU returns the number of CPUs this core tracks.
func (c *Core) NumCPU() int { return len(c.cpus) }

// Snapshot returns the current global slice configuration.
func (c *Core) Snapshot() Config { return *c.cfg.Load() }

// ConfigureGlobal atomically replaces the global slice configuration.
// durationTicks <= 0 disables global time slicing. The change applies at
// each CPU's next reset; in-progress slices are never truncated. Every CPU
// is signaled to re-evaluate its current thread locally.
func (c *Core) ConfigureGlobal(durationTicks int64, ceilingPriority int32) {
	c.cfg.Store(&Config{Ticks: durationTicks, Ceiling: ceilingPriority})
	c.kickAll()
	c.log.Info().
		Int64("duration_ticks", durationTicks).
		Int32("ceiling_priority", ceilingPriority).
		Bool("enabled", durationTicks > 0).
		Msg("Global slice configuration replaced")
}

// ConfigureThread installs a per-thread slice override: a custom duration,
// an optional expiry handler and opaque data passed back to it. The
// override takes strict precedence over the global configuration;
// durationTicks <= 0 disables slicing for the thread unconditionally,
// bypassing the global ceiling. The thread may be running on any CPU, so
// all CPUs are signaled rather than writing remote tracker state.
func (c *Core) ConfigureThread(t *Thread, durationTicks int64, handler ExpiryHandler, data any) {
	if handler == nil {
		handler = noExpiryHandler
	}
	t.override.Store(&Override{Ticks: durationTicks, expiry: handler, data: data})
	c.kickAll()
	c.log.Debug().
		Uint32("thread", uint32(t.id)).
		Int64("duration_ticks", durationTicks).
		Msg("Per-thread slice override installed")
}

// ClearThreadSlice removes a thread's override, reverting it to the global
// configuration.
func (c *Core) ClearThreadSlice(t *Thread) {
	t.override.Store(nil)
	c.kickAll()
}

// OnTick is the timer subsystem's per-CPU hook. elapsed is the strictly
// positive number of ticks since the previous announcement for this CPU.
// The path is O(1), allocation-free and never blocks: a pending remote
// re-evaluation is consumed first, then the remaining-ticks counter is
// decremented and, on reaching zero, exactly one expiration pass runs.
func (c *Core) OnTick(cpu int, elapsed int64) {
	if cpu < 0 || cpu >= len(c.cpus) {
		c.log.Error().Int("cpu", cpu).Msg("Tick for unknown CPU ignored")
		return
	}
	if elapsed <= 0 {
		return
	}
	cs := c.cpus[cpu]
	if cs.pending.CompareAndSwap(true, false) {
		c.obs.RecordReevaluation(cpu)
		c.reevaluate(cs)
	}
	cur := cs.current
	if cur == nil {
		return
	}
	cur.runTicks.Add(elapsed)
	if cs.remaining == noExpiry {
		return
	}
	cs.remaining -= elapsed
	if cs.remaining > 0 {
		return
	}
	cs.remaining = 0
	cfg := *c.cfg.Load()
	switch {
	case Sliceable(cur, cfg):
		c.expire(cpu, cs, cur, cfg)
	case sliceCandidate(cur, cfg) && cur.PreemptLocks() > 0:
		// Transient exemption: the slice stays expired and the pass runs
		// on the first tick after the lock count returns to zero.
	default:
		cs.remaining = noExpiry
	}
}

// Reset re-binds a CPU's tracker to the thread now current on it. Called
// at every context-switch boundary and at the end of every expiration
// pass. The remaining-ticks counter reloads from the thread's effective
// duration, or pins the no-expiry sentinel for non-sliceable threads.
func (c *Core) Reset(cpu int, t *Thread) {
	if cpu < 0 || cpu >= len(c.cpus) {
		return
	}
	cs := c.cpus[cpu]
	cs.current = t
	cs.pending.Store(false)
	if t == nil {
		cs.remaining = noExpiry
		return
	}
	cs.remaining = effectiveTicks(t, *c.cfg.Load())
}

// expire runs one expiration pass for cpu. The predicate was just
// re-confirmed by the caller; the expiry callback runs before any queue
// mutation and may suspend or abort the thread, so runnability is checked
// again before rotation. If the callback invalidated the thread, the pass
// neither rotates nor touches the reference again.
func (c *Core) expire(cpu int, cs *cpuSlice, cur *Thread, cfg Config) {
	c.obs.RecordExpiration(cpu, cur.id)
	if ov := cur.override.Load(); ov != nil {
		if ov.expiry != noExpiryHandler {
			c.obs.RecordCallback(cpu, cur.id)
		}
		ov.expiry.OnExpired(cur, ov.data)
	}
	if c.queue.IsRunnable(cur) {
		c.queue.MoveToTail(cur.priority, cur)
		c.obs.RecordRotation(cpu, cur.id)
	}
	c.Reset(cpu, c.queue.PeekCurrent(cpu))
}

// reevaluate applies a pending cross-CPU request on the owning CPU's own
// tick path. A thread that is no longer a slicing candidate pins the
// sentinel; a thread that just became one starts a fresh slice. A slice
// already in progress keeps its remaining ticks untouched so that a
// configuration change never shortens it retroactively.
func (c *Core) reevaluate(cs *cpuSlice) {
	cur := cs.current
	cfg := *c.cfg.Load()
	switch {
	case cur == nil || !sliceCandidate(cur, cfg):
		cs.remaining = noExpiry
	case cs.remaining == noExpiry:
		cs.remaining = effectiveTicks(cur, cfg)
	}
}

// kickAll marks every CPU for local re-evaluation and signals it. Remote
// tracker state is never written directly; the flag plus signal is the
// whole cross-CPU protocol.
func (c *Core) kickAll() {
	for i, cs := range c.cpus {
		cs.pending.Store(true)
		c.signaler.Signal(i)
	}
}
