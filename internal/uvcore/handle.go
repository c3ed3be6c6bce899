package uvcore

import (
	"fmt"
)

// HandleType identifies the kind of a handle.
type HandleType int

const (
	UnknownHandle HandleType = iota
	AsyncHandle
	IdleHandle
	NamedPipeHandle
	SignalHandle
	TCPHandle
	TimerHandle
	UDPHandle
)

func (t HandleType) String() string {
	switch t {
	case UnknownHandle:
		return "unknown"
	case AsyncHandle:
		return "async"
	case IdleHandle:
		return "idle"
	case NamedPipeHandle:
		return "pipe"
	case SignalHandle:
		return "signal"
	case TCPHandle:
		return "tcp"
	case TimerHandle:
		return "timer"
	case UDPHandle:
		return "udp"
	default:
		return fmt.Sprintf("HandleType(%d)", int(t))
	}
}

// CloseCb is called once a closed handle's resources are gone.
type CloseCb func(h *Handle)

type handleFlags uint8

const (
	flagActive handleFlags = 1 << iota
	flagRef
	flagClosing
	flagClosed
	flagInternal
)

// Handle is the header shared by all handle kinds.
type Handle struct {
	// Data is an opaque slot, never read by the engine.
	Data uintptr

	loop    *Loop
	closeCb CloseCb
	// stopHook runs synchronously in Close, finishHook in the closing phase
	// right before the close callback.
	stopHook   func()
	finishHook func()
	typ        HandleType
	flags      handleFlags
}

func (h *Handle) init(l *Loop, typ HandleType) {
	*h = Handle{loop: l, typ: typ, flags: flagRef}
	l.handleCount++
}

// markInternal hides the handle from Loop.Close's open-handle check.
func (h *Handle) markInternal() {
	if h.flags&flagInternal == 0 {
		h.flags |= flagInternal
		h.loop.handleCount--
	}
}

// Loop returns the loop the handle was initialized on.
func (h *Handle) Loop() *Loop { return h.loop }

// Type returns the handle kind.
func (h *Handle) Type() HandleType { return h.typ }

// IsActive reports whether the handle is doing something, e.g. a started
// timer or a reading stream.
func (h *Handle) IsActive() bool { return h.flags&flagActive != 0 }

// IsClosing reports whether Close has been called, including after the close
// callback ran.
func (h *Handle) IsClosing() bool { return h.flags&(flagClosing|flagClosed) != 0 }

// HasRef reports whether the handle keeps the loop alive while active.
func (h *Handle) HasRef() bool { return h.flags&flagRef != 0 }

// Ref makes an active handle keep the loop alive. Idempotent.
func (h *Handle) Ref() {
	if h.flags&flagRef != 0 {
		return
	}
	h.flags |= flagRef
	if h.flags&flagActive != 0 && h.flags&flagClosing == 0 {
		h.loop.activeHandles++
	}
}

// Unref stops an active handle from keeping the loop alive. Idempotent.
func (h *Handle) Unref() {
	if h.flags&flagRef == 0 {
		return
	}
	h.flags &^= flagRef
	if h.flags&flagActive != 0 && h.flags&flagClosing == 0 {
		h.loop.activeHandles--
	}
}

func (h *Handle) start() {
	if h.flags&flagActive != 0 {
		return
	}
	h.flags |= flagActive
	if h.flags&flagRef != 0 {
		h.loop.activeHandles++
	}
}

func (h *Handle) stop() {
	if h.flags&flagActive == 0 {
		return
	}
	h.flags &^= flagActive
	if h.flags&flagRef != 0 {
		h.loop.activeHandles--
	}
}

// Close stops the handle and schedules cb for the closing phase of the
// current iteration. Closing a handle that is already closing does nothing.
func (h *Handle) Close(cb CloseCb) {
	if h.flags&(flagClosing|flagClosed) != 0 {
		return
	}
	if h.stopHook != nil {
		h.stopHook()
	}
	h.stop()
	h.flags |= flagClosing
	h.closeCb = cb
	h.loop.closing = append(h.loop.closing, h)
}

func (h *Handle) finishClose() {
	h.flags |= flagClosed
	if h.flags&flagInternal == 0 {
		h.loop.handleCount--
	}
	if h.finishHook != nil {
		h.finishHook()
	}
	if cb := h.closeCb; cb != nil {
		h.closeCb = nil
		cb(h)
	}
}
