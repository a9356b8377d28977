package sched

// CPUSignaler delivers a best-effort wakeup to a specific CPU, the
// equivalent of an inter-processor interrupt. Delivery may be coalesced or
// dropped while a previous signal is still pending; correctness relies on
// the per-CPU pending flag, which every tick checks regardless.
type CPUSignaler interface {
	Signal(cpu int)
}

// ChanSignaler is the default CPUSignaler: a one-shot notification channel
// per CPU. Signal never blocks; a signal arriving while one is already
// pending is dropped.
type ChanSignaler struct {
	wake []chan struct{}
}

// NewChanSignaler creates a signaler for numCPU CPUs.
func NewChanSignaler(numCPU int) *ChanSignaler {
	wake := make([]chan struct{}, numCPU)
	for i := range wake {
		wake[i] = make(chan struct{}, 1)
	}
	return &ChanSignaler{wake: wake}
}

// Signal implements CPUSignaler.
func (s *ChanSignaler) Signal(cpu int) {
	if cpu < 0 || cpu >= len(s.wake) {
		return
	}
	select {
	case s.wake[cpu] <- struct{}{}:
	default:
	}
}

// Wake returns the notification channel for a CPU. Simulated CPU loops
// select on it to cut short an idle wait; the pending flag is still the
// source of truth.
func (s *ChanSignaler) Wake(cpu int) <-chan struct{} {
	return s.wake[cpu]
}

// nopSignaler is used when the caller drives every CPU from a single
// loop and signals would have nobody to wake.
type nopSignaler struct{}

func (nopSignaler) Signal(int) {}
