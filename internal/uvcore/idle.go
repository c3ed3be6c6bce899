package uvcore

// IdleCb is called once per loop iteration while the idle handle is active.
type IdleCb func(h *Idle)

// Idle runs its callback once per iteration and makes the loop poll without
// blocking while started.
type Idle struct {
	Handle
	cb IdleCb
}

// Init initializes the idle handle on l.
func (h *Idle) Init(l *Loop) int {
	h.Handle.init(l, IdleHandle)
	h.cb = nil
	h.stopHook = func() { h.Stop() }
	return OK
}

// Start begins calling cb every iteration. Starting an active handle only
// replaces the callback.
func (h *Idle) Start(cb IdleCb) int {
	if cb == nil || h.IsClosing() {
		return EINVAL
	}
	h.cb = cb
	if h.IsActive() {
		return OK
	}
	h.loop.idles = append(h.loop.idles, h)
	h.start()
	return OK
}

// Stop stops the handle.
func (h *Idle) Stop() int {
	if !h.IsActive() {
		return OK
	}
	idles := h.loop.idles
	for i, v := range idles {
		if v == h {
			copy(idles[i:], idles[i+1:])
			idles[len(idles)-1] = nil
			h.loop.idles = idles[:len(idles)-1]
			break
		}
	}
	h.stop()
	return OK
}
