package providers

import "sync/atomic"

// atomicSnapshot publishes *snapshot via atomic pointer swap, so Get
// never takes a lock on the job-execution hot path while an
// administrative SetABTest/Register call is in flight.
type atomicSnapshot struct {
	p atomic.Pointer[snapshot]
}

func (a *atomicSnapshot) load() *snapshot {
	return a.p.Load()
}

func (a *atomicSnapshot) store(s *snapshot) {
	a.p.Store(s)
}
