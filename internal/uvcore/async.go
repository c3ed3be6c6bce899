package uvcore

import (
	"sync/atomic"
)

// AsyncCb is called on the loop after one or more Send calls.
type AsyncCb func(a *Async)

// Async wakes the loop from any goroutine. Sends are coalesced: several
// Send calls before the loop notices result in a single callback.
type Async struct {
	Handle
	cb      AsyncCb
	pending atomic.Uint32
}

// Init initializes and activates the handle.
func (a *Async) Init(l *Loop, cb AsyncCb) int {
	a.Handle.init(l, AsyncHandle)
	a.cb = cb
	a.pending.Store(0)
	a.stopHook = a.detach
	l.asyncs = append(l.asyncs, a)
	a.start()
	return OK
}

// Send schedules the callback. It is safe for concurrent use, but must not
// be called once the handle's close callback has run.
func (a *Async) Send() int {
	if a.pending.Swap(1) == 0 {
		signalWakeFd(a.loop.wakeFd)
	}
	return OK
}

func (a *Async) detach() {
	asyncs := a.loop.asyncs
	for i, v := range asyncs {
		if v == a {
			copy(asyncs[i:], asyncs[i+1:])
			asyncs[len(asyncs)-1] = nil
			a.loop.asyncs = asyncs[:len(asyncs)-1]
			return
		}
	}
}
