package sched

import "testing"

// countObserver tallies slice events. Tests drive every CPU from the test
// goroutine, so plain fields are fine.
type countObserver struct {
	expirations int64
	rotations   int64
	callbacks   int64
	reevals     int64
	lastExpired ThreadID
}

func (o *countObserver) RecordExpiration(cpu int, id ThreadID) {
	o.expirations++
	o.lastExpired = id
}
func (o *countObserver) RecordCallback(cpu int, id ThreadID) { o.callbacks++ }
func (o *countObserver) RecordRotation(cpu int, id ThreadID) { o.rotations++ }
func (o *countObserver) RecordReevaluation(cpu int)          { o.reevals++ }

// fakeQueue is a scriptable ReadyQueue for callback-ordering tests. It
// records rotations so a test can assert what happened relative to the
// expiry callback.
type fakeQueue struct {
	events []string
	next   *Thread
}

func (q *fakeQueue) PeekCurrent(cpu int) *Thread { return q.next }
func (q *fakeQueue) MoveToTail(prio int32, t *Thread) {
	q.events = append(q.events, "rotate")
}
func (q *fakeQueue) IsRunnable(t *Thread) bool { return t != nil && t.Runnable() }

// drive runs the context-switch handshake a scheduler loop would: peek
// the current thread, reset the tracker on a switch, then tick.
func drive(c *Core, q *RunQueue, cpu int, last **Thread, ticks int64) {
	for i := int64(0); i < ticks; i++ {
		cur := q.PeekCurrent(cpu)
		if cur != *last {
			c.Reset(cpu, cur)
			*last = cur
		}
		c.OnTick(cpu, 1)
	}
}

func TestExpirationRotatesToSibling(t *testing.T) {
	q := NewRunQueue(1)
	obs := &countObserver{}
	c := NewCore(1, q, nil, obs)
	c.ConfigureGlobal(100, 0)

	a := NewThread(1, "a", 5)
	b := NewThread(2, "b", 5)
	q.Add(a)
	q.Add(b)

	var last *Thread
	drive(c, q, 0, &last, 100)

	if cur := q.PeekCurrent(0); cur != b {
		t.Fatalf("current after expiration = %v, want b", cur)
	}
	if got := a.RunTicks(); got != 100 {
		t.Errorf("a.RunTicks() = %d, want 100", got)
	}
	if got := b.RunTicks(); got != 0 {
		t.Errorf("b.RunTicks() = %d, want 0", got)
	}
	if obs.expirations != 1 || obs.rotations != 1 {
		t.Errorf("expirations = %d, rotations = %d, want 1 and 1", obs.expirations, obs.rotations)
	}
	if obs.lastExpired != a.ID() {
		t.Errorf("expired thread = %d, want %d", obs.lastExpired, a.ID())
	}
}

// A thread alone at its priority level rotates onto itself and keeps
// running, one expiration pass per slice.
func TestLoneThreadRotatesOntoItself(t *testing.T) {
	q := NewRunQueue(1)
	obs := &countObserver{}
	c := NewCore(1, q, nil, obs)
	c.ConfigureGlobal(10, 0)

	a := NewThread(1, "a", 5)
	q.Add(a)

	var last *Thread
	drive(c, q, 0, &last, 100)

	if cur := q.PeekCurrent(0); cur != a {
		t.Fatalf("current = %v, want a", cur)
	}
	if obs.expirations != 10 || obs.rotations != 10 {
		t.Errorf("expirations = %d, rotations = %d, want 10 and 10", obs.expirations, obs.rotations)
	}
}

func TestCooperativeThreadNeverRotates(t *testing.T) {
	q := NewRunQueue(1)
	obs := &countObserver{}
	c := NewCore(1, q, nil, obs)
	c.ConfigureGlobal(10, 0)

	coop := NewThread(1, "coop", -1)
	other := NewThread(2, "other", -1)
	q.Add(coop)
	q.Add(other)

	var last *Thread
	drive(c, q, 0, &last, 1000)

	if cur := q.PeekCurrent(0); cur != coop {
		t.Fatalf("cooperative thread was rotated away")
	}
	if obs.rotations != 0 {
		t.Errorf("rotations = %d, want 0", obs.rotations)
	}
}

func TestIdleThreadNeverRotates(t *testing.T) {
	q := NewRunQueue(1)
	obs := &countObserver{}
	c := NewCore(1, q, nil, obs)
	c.ConfigureGlobal(10, 0)

	idle := NewIdleThread(1)
	q.Add(idle)

	var last *Thread
	drive(c, q, 0, &last, 1000)

	if obs.expirations != 0 || obs.rotations != 0 {
		t.Errorf("idle thread saw expirations = %d, rotations = %d", obs.expirations, obs.rotations)
	}
}

func TestCallbackFiresBeforeRotationWithData(t *testing.T) {
	q := &fakeQueue{}
	obs := &countObserver{}
	c := NewCore(1, q, nil, obs)
	c.ConfigureGlobal(100, 0)

	th := NewThread(7, "cb", 5)
	q.next = th

	type payload struct{ tag string }
	data := &payload{tag: "opaque"}

	var gotThread *Thread
	var gotData any
	c.ConfigureThread(th, 10, ExpiryFunc(func(t *Thread, d any) {
		gotThread = t
		gotData = d
		q.events = append(q.events, "callback")
	}), data)

	c.Reset(0, th)
	c.OnTick(0, 10)

	if gotThread != th {
		t.Fatalf("callback thread = %v, want %v", gotThread, th)
	}
	if gotData != data {
		t.Fatalf("callback data = %v, want the opaque payload", gotData)
	}
	if len(q.events) != 2 || q.events[0] != "callback" || q.events[1] != "rotate" {
		t.Fatalf("event order = %v, want [callback rotate]", q.events)
	}
	if obs.callbacks != 1 || obs.expirations != 1 {
		t.Errorf("callbacks = %d, expirations = %d, want 1 and 1", obs.callbacks, obs.expirations)
	}
}

func TestCallbackSuspendSkipsRotation(t *testing.T) {
	q := &fakeQueue{}
	obs := &countObserver{}
	c := NewCore(1, q, nil, obs)

	th := NewThread(1, "victim", 5)
	q.next = th
	c.ConfigureThread(th, 10, ExpiryFunc(func(t *Thread, d any) {
		t.Suspend()
	}), nil)

	c.Reset(0, th)
	c.OnTick(0, 10)

	for _, ev := range q.events {
		if ev == "rotate" {
			t.Fatalf("rotation happened after the callback suspended the thread")
		}
	}
	if obs.rotations != 0 {
		t.Errorf("rotations = %d, want 0", obs.rotations)
	}
}

func TestCallbackAbortSkipsRotation(t *testing.T) {
	q := &fakeQueue{}
	c := NewCore(1, q, nil, nil)

	th := NewThread(1, "victim", 5)
	q.next = th
	fired := 0
	c.ConfigureThread(th, 10, ExpiryFunc(func(t *Thread, d any) {
		fired++
		t.Abort()
	}), nil)

	c.Reset(0, th)
	c.OnTick(0, 10)

	if fired != 1 {
		t.Fatalf("callback fired %d times, want 1", fired)
	}
	for _, ev := range q.events {
		if ev == "rotate" {
			t.Fatalf("rotation happened after the callback aborted the thread")
		}
	}
	if th.Override() != nil {
		t.Errorf("aborted thread still owns a slice override")
	}
}

func TestPreemptionLockDefersRotation(t *testing.T) {
	q := NewRunQueue(1)
	obs := &countObserver{}
	c := NewCore(1, q, nil, obs)
	c.ConfigureGlobal(100, 0)

	a := NewThread(1, "a", 5)
	b := NewThread(2, "b", 5)
	q.Add(a)
	q.Add(b)

	a.LockPreemption()
	var last *Thread
	drive(c, q, 0, &last, 150)

	if cur := q.PeekCurrent(0); cur != a {
		t.Fatalf("locked thread was rotated away")
	}
	if obs.rotations != 0 {
		t.Fatalf("rotations = %d while locked, want 0", obs.rotations)
	}

	// Exemption is re-evaluated each tick: rotation happens on the first
	// tick after the lock count returns to zero.
	a.UnlockPreemption()
	drive(c, q, 0, &last, 1)

	if cur := q.PeekCurrent(0); cur != b {
		t.Fatalf("no rotation after the preemption lock was released")
	}
	if obs.rotations != 1 {
		t.Errorf("rotations = %d after unlock, want 1", obs.rotations)
	}
}

func TestGlobalReconfigDoesNotTruncateSlice(t *testing.T) {
	q := NewRunQueue(1)
	obs := &countObserver{}
	c := NewCore(1, q, nil, obs)
	c.ConfigureGlobal(100, 0)

	a := NewThread(1, "a", 5)
	b := NewThread(2, "b", 5)
	q.Add(a)
	q.Add(b)

	var last *Thread
	drive(c, q, 0, &last, 50)

	// Shrink the slice mid-flight. The running thread keeps its 50
	// remaining ticks; the new duration applies from the next reset.
	c.ConfigureGlobal(10, 0)
	drive(c, q, 0, &last, 10)
	if obs.rotations != 0 {
		t.Fatalf("slice was truncated by reconfiguration")
	}
	if obs.reevals == 0 {
		t.Errorf("no re-evaluation was recorded after reconfiguration")
	}

	drive(c, q, 0, &last, 40)
	if obs.rotations != 1 {
		t.Fatalf("rotations = %d after the original slice ran out, want 1", obs.rotations)
	}

	// The sibling starts under the new 10-tick configuration.
	drive(c, q, 0, &last, 10)
	if obs.rotations != 2 {
		t.Errorf("rotations = %d, want 2 (new duration after reset)", obs.rotations)
	}
}

func TestDisableMidSliceStopsFutureRotations(t *testing.T) {
	q := NewRunQueue(1)
	obs := &countObserver{}
	c := NewCore(1, q, nil, obs)
	c.ConfigureGlobal(100, 0)

	a := NewThread(1, "a", 5)
	b := NewThread(2, "b", 5)
	q.Add(a)
	q.Add(b)

	var last *Thread
	drive(c, q, 0, &last, 50)
	c.ConfigureGlobal(0, 0)
	drive(c, q, 0, &last, 1000)

	if obs.rotations != 0 {
		t.Errorf("rotations = %d after disabling, want 0", obs.rotations)
	}
	if cur := q.PeekCurrent(0); cur != a {
		t.Errorf("current changed after slicing was disabled")
	}
}

func TestEnableMidRunStartsSlicing(t *testing.T) {
	q := NewRunQueue(1)
	obs := &countObserver{}
	c := NewCore(1, q, nil, obs)

	a := NewThread(1, "a", 5)
	b := NewThread(2, "b", 5)
	q.Add(a)
	q.Add(b)

	var last *Thread
	drive(c, q, 0, &last, 50)
	if obs.expirations != 0 {
		t.Fatalf("expirations = %d while disabled, want 0", obs.expirations)
	}

	c.ConfigureGlobal(100, 0)
	drive(c, q, 0, &last, 100)
	if obs.rotations != 1 {
		t.Errorf("rotations = %d after enabling, want 1", obs.rotations)
	}
}

func TestThreadOverrideDisableBypassesGlobal(t *testing.T) {
	q := NewRunQueue(1)
	obs := &countObserver{}
	c := NewCore(1, q, nil, obs)
	c.ConfigureGlobal(10, 0)

	a := NewThread(1, "a", 5)
	b := NewThread(2, "b", 5)
	q.Add(a)
	q.Add(b)
	c.ConfigureThread(a, 0, nil, nil)

	var last *Thread
	drive(c, q, 0, &last, 500)
	if obs.rotations != 0 {
		t.Fatalf("rotations = %d for override-disabled thread, want 0", obs.rotations)
	}

	// Clearing the override reverts to the global 10-tick slice.
	c.ClearThreadSlice(a)
	drive(c, q, 0, &last, 10)
	if obs.rotations != 1 {
		t.Errorf("rotations = %d after clearing the override, want 1", obs.rotations)
	}
}

func TestTickEdgeCases(t *testing.T) {
	q := NewRunQueue(1)
	c := NewCore(1, q, nil, nil)
	c.ConfigureGlobal(10, 0)

	a := NewThread(1, "a", 5)
	q.Add(a)
	c.Reset(0, a)

	// Out-of-range CPUs and non-positive deltas are ignored.
	c.OnTick(-1, 1)
	c.OnTick(5, 1)
	c.OnTick(0, 0)
	c.OnTick(0, -3)
	if got := a.RunTicks(); got != 0 {
		t.Errorf("RunTicks = %d after ignored ticks, want 0", got)
	}
}

func TestLargeDeltaTriggersSinglePass(t *testing.T) {
	q := NewRunQueue(1)
	obs := &countObserver{}
	c := NewCore(1, q, nil, obs)
	c.ConfigureGlobal(10, 0)

	a := NewThread(1, "a", 5)
	b := NewThread(2, "b", 5)
	q.Add(a)
	q.Add(b)
	c.Reset(0, a)

	c.OnTick(0, 1000)
	if obs.expirations != 1 {
		t.Errorf("expirations = %d for one large delta, want 1", obs.expirations)
	}
}

func TestResetNilPinsSentinel(t *testing.T) {
	q := NewRunQueue(1)
	obs := &countObserver{}
	c := NewCore(1, q, nil, obs)
	c.ConfigureGlobal(10, 0)

	c.Reset(0, nil)
	c.OnTick(0, 1000)
	if obs.expirations != 0 {
		t.Errorf("expirations = %d with no current thread, want 0", obs.expirations)
	}
}
