package sched

import "sync/atomic"

// ThreadID identifies a thread within the scheduler core.
type ThreadID uint32

// Thread run states. A thread leaves Ready only through Suspend or Abort;
// expiry callbacks are allowed to do either, which is why the expiration
// pass re-checks runnability after invoking them.
const (
	StateReady int32 = iota
	StateSuspended
	StateDead
)

// Thread is the scheduler core's view of a thread. The core never owns
// thread lifecycle; it holds references handed to it through the ready
// queue and Reset, and stops dereferencing a thread as soon as a callback
// renders it non-runnable.
//
// Priority is signed: lower values are more urgent, negative values mark
// cooperative threads that are never time sliced.
type Thread struct {
	id       ThreadID
	name     string
	priority int32
	idle     bool

	state    atomic.Int32
	locks    atomic.Int32 // preemption lock nesting count
	runTicks atomic.Int64

	// Slice override, owned by the thread. Swapped as a whole so tick
	// paths on other CPUs always observe a consistent record.
	override atomic.Pointer[Override]
}

// NewThread creates a preemptible or cooperative thread depending on the
// sign of priority.
func NewThread(id ThreadID, name string, priority int32) *Thread {
	t := &Thread{id: id, name: name, priority: priority}
	t.state.Store(StateReady)
	return t
}

// NewIdleThread creates the idle thread for a CPU. Idle threads are
// permanently exempt from time slicing.
func NewIdleThread(id ThreadID) *Thread {
	t := &Thread{id: id, name: "idle", priority: 0, idle: true}
	t.state.Store(StateReady)
	return t
}

// ID returns the thread identifier.
func (t *Thread) ID() ThreadID { return t.id }

// Name returns the thread name.
func (t *Thread) Name() string { return t.name }

// Priority returns the thread priority. Lower is more urgent; negative
// means cooperative.
func (t *Thread) Priority() int32 { return t.priority }

// IsIdle reports whether this is a CPU's idle thread.
func (t *Thread) IsIdle() bool { return t.idle }

// Runnable reports whether the thread may be picked by the ready queue.
func (t *Thread) Runnable() bool { return t.state.Load() == StateReady }

// Suspend makes the thread non-runnable until Resume.
func (t *Thread) Suspend() { t.state.CompareAndSwap(StateReady, StateSuspended) }

// Resume makes a suspended thread runnable again.
func (t *Thread) Resume() { t.state.CompareAndSwap(StateSuspended, StateReady) }

// Abort permanently retires the thread and drops its slice override, since
// the override record is owned by the thread object.
func (t *Thread) Abort() {
	t.state.Store(StateDead)
	t.override.Store(nil)
}

// LockPreemption increments the preemption lock count. While the count is
// above zero the thread is transiently exempt from rotation; an expired
// slice stays pending and rotation happens on the first tick after the
// count returns to zero.
func (t *Thread) LockPreemption() { t.locks.Add(1) }

// UnlockPreemption decrements the preemption lock count.
func (t *Thread) UnlockPreemption() { t.locks.Add(-1) }

// PreemptLocks returns the current preemption lock nesting count.
func (t *Thread) PreemptLocks() int32 { return t.locks.Load() }

// RunTicks returns the ticks this thread has accumulated while current on
// some CPU.
func (t *Thread) RunTicks() int64 { return t.runTicks.Load() }

// Override returns the thread's slice override, or nil.
func (t *Thread) Override() *Override { return t.override.Load() }
