package sched

// Observer receives slice lifecycle events from the tick path. Methods are
// called with the CPU id and the affected thread's id and must be cheap:
// the intended implementation is a set of pre-allocated atomic counters
// (see the schedstats collector).
type Observer interface {
	// RecordExpiration is called once per slice expiration pass.
	RecordExpiration(cpu int, id ThreadID)

	// RecordCallback is called when a user expiry callback runs.
	RecordCallback(cpu int, id ThreadID)

	// RecordRotation is called when the expired thread is moved to the
	// tail of its priority level.
	RecordRotation(cpu int, id ThreadID)

	// RecordReevaluation is called when a CPU consumes a pending
	// cross-CPU re-evaluation request.
	RecordReevaluation(cpu int)
}

type nopObserver struct{}

func (nopObserver) RecordExpiration(int, ThreadID) {}
func (nopObserver) RecordCallback(int, ThreadID)   {}
func (nopObserver) RecordRotation(int, ThreadID)   {}
func (nopObserver) RecordReevaluation(int)         {}
