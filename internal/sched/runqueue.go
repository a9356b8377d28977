package sched

import (
	"container/list"
	"sync"
)

// ReadyQueue is the surface the slice core needs from the scheduler's
// ready queue. The core only rotates within a priority level; picking
// across levels is the queue's policy, not ours.
type ReadyQueue interface {
	// PeekCurrent returns the thread considered current on cpu, or nil.
	PeekCurrent(cpu int) *Thread

	// MoveToTail rotates t from the head to the tail of its priority
	// level, preserving the arrival order of its siblings. O(1).
	MoveToTail(priority int32, t *Thread)

	// IsRunnable reports whether t may still run. Checked after expiry
	// callbacks, which are allowed to suspend or abort t.
	IsRunnable(t *Thread) bool
}

// RunQueue is the in-repo ReadyQueue: per-priority FIFO levels with a
// per-CPU current assignment. It exists to serve the simulator and the
// tests; the core itself depends only on the ReadyQueue interface.
//
// All methods take a single short mutex whose hold time is bounded by the
// number of priority levels and CPUs, never by the number of threads.
type RunQueue struct {
	mu      sync.Mutex
	levels  map[int32]*list.List
	order   []int32 // active priorities, most urgent first
	elems   map[*Thread]*list.Element
	current []*Thread
}

// NewRunQueue creates a ready queue serving numCPU CPUs.
func NewRunQueue(numCPU int) *RunQueue {
	return &RunQueue{
		levels:  make(map[int32]*list.List),
		elems:   make(map[*Thread]*list.Element),
		current: make([]*Thread, numCPU),
	}
}

// Add appends t to the tail of its priority level.
func (q *RunQueue) Add(t *Thread) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.elems[t]; ok {
		return
	}
	l := q.levels[t.priority]
	if l == nil {
		l = list.New()
		q.levels[t.priority] = l
		q.insertOrder(t.priority)
	}
	q.elems[t] = l.PushBack(t)
}

// Remove takes t out of the queue and releases any CPU assignment it held.
func (q *RunQueue) Remove(t *Thread) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.elems[t]
	if !ok {
		return
	}
	delete(q.elems, t)
	l := q.levels[t.priority]
	l.Remove(e)
	if l.Len() == 0 {
		delete(q.levels, t.priority)
		q.dropOrder(t.priority)
	}
	q.release(t)
}

// PeekCurrent implements ReadyQueue. A CPU keeps its assignment until the
// thread is rotated, removed, or becomes non-runnable; otherwise the most
// urgent runnable thread not already running elsewhere is assigned.
func (q *RunQueue) PeekCurrent(cpu int) *Thread {
	q.mu.Lock()
	defer q.mu.Unlock()
	if cpu < 0 || cpu >= len(q.current) {
		return nil
	}
	if cur := q.current[cpu]; cur != nil {
		if _, ok := q.elems[cur]; ok && cur.Runnable() {
			return cur
		}
		q.current[cpu] = nil
	}
	for _, prio := range q.order {
		for e := q.levels[prio].Front(); e != nil; e = e.Next() {
			t := e.Value.(*Thread)
			if !t.Runnable() || q.assigned(t) {
				continue
			}
			q.current[cpu] = t
			return t
		}
	}
	return nil
}

// MoveToTail implements ReadyQueue.
func (q *RunQueue) MoveToTail(priority int32, t *Thread) {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.elems[t]
	if !ok {
		return
	}
	l := q.levels[priority]
	if l == nil {
		return
	}
	l.MoveToBack(e)
	// The rotated thread gives up whatever CPU it was current on; the
	// next PeekCurrent re-picks from the head of the level.
	q.release(t)
}

// IsRunnable implements ReadyQueue.
func (q *RunQueue) IsRunnable(t *Thread) bool {
	if t == nil || !t.Runnable() {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.elems[t]
	return ok
}

// Len returns the number of queued threads.
func (q *RunQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.elems)
}

func (q *RunQueue) assigned(t *Thread) bool {
	for _, cur := range q.current {
		if cur == t {
			return true
		}
	}
	return false
}

func (q *RunQueue) release(t *Thread) {
	for i, cur := range q.current {
		if cur == t {
			q.current[i] = nil
		}
	}
}

func (q *RunQueue) insertOrder(prio int32) {
	i := 0
	for i < len(q.order) && q.order[i] < prio {
		i++
	}
	q.order = append(q.order, 0)
	copy(q.order[i+1:], q.order[i:])
	q.order[i] = prio
}

func (q *RunQueue) dropOrder(prio int32) {
	for i, p := range q.order {
		if p == prio {
			q.order = append(q.order[:i], q.order[i+1:]...)
			return
		}
	}
}
