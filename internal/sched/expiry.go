package sched

// ExpiryHandler is invoked when a thread's time slice expires, before any
// ready-queue rotation. It runs synchronously on the expiring CPU's tick
// path, so implementations must not block. The handler may suspend or
// abort the thread; the core re-checks runnability afterwards and skips
// rotation if the thread is gone.
type ExpiryHandler interface {
	OnExpired(t *Thread, data any)
}

// ExpiryFunc adapts a plain function to ExpiryHandler.
type ExpiryFunc func(t *Thread, data any)

// OnExpired implements ExpiryHandler.
func (f ExpiryFunc) OnExpired(t *Thread, data any) { f(t, data) }

// nopExpiry is the "no callback installed" variant. Installing it instead
// of leaving a nil interface keeps the expiration pass branch-free on the
// callback slot.
type nopExpiry struct{}

func (nopExpiry) OnExpired(*Thread, any) {}

var noExpiryHandler ExpiryHandler = nopExpiry{}
