package uvloop

import (
	"sync/atomic"
)

// Stats is a point-in-time snapshot of a loop's counters. It may be taken
// from any goroutine. Gauges sampled from the reactor are refreshed after
// every continuation and at the end of every run.
type Stats struct {
	// OpenHandles counts handles created and not yet fully closed.
	OpenHandles int64
	// ActiveHandles counts active, referenced reactor handles.
	ActiveHandles int64
	// ActiveRequests counts requests waiting for their completion.
	ActiveRequests int64
	// OutstandingTokens counts continuations not yet redeemed.
	OutstandingTokens int64
	Completions       uint64
	DeferredFailures  uint64
	RecoveredPanics   uint64
	Submitted         uint64
	Iterations        uint64
}

type loopStats struct {
	openHandles       atomic.Int64
	activeHandles     atomic.Int64
	activeRequests    atomic.Int64
	outstandingTokens atomic.Int64
	completions       atomic.Uint64
	deferredFailures  atomic.Uint64
	recoveredPanics   atomic.Uint64
	submitted         atomic.Uint64
	iterations        atomic.Uint64
}

func (s *loopStats) snapshot() Stats {
	return Stats{
		OpenHandles:       s.openHandles.Load(),
		ActiveHandles:     s.activeHandles.Load(),
		ActiveRequests:    s.activeRequests.Load(),
		OutstandingTokens: s.outstandingTokens.Load(),
		Completions:       s.completions.Load(),
		DeferredFailures:  s.deferredFailures.Load(),
		RecoveredPanics:   s.recoveredPanics.Load(),
		Submitted:         s.submitted.Load(),
		Iterations:        s.iterations.Load(),
	}
}

// sample copies the reactor gauges, on the loop goroutine only.
func (l *Loop) sample() {
	l.stats.activeHandles.Store(int64(l.core.ActiveHandles()))
	l.stats.activeRequests.Store(int64(l.core.ActiveRequests()))
	l.stats.outstandingTokens.Store(int64(l.reg.outstanding()))
	l.stats.iterations.Store(l.core.Iterations())
}

// Stats returns a snapshot of the loop's counters.
func (l *Loop) Stats() Stats {
	return l.stats.snapshot()
}
