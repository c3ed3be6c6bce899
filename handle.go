package uvloop

import (
	"fmt"

	"github.com/joeycumines/go-uvloop/internal/uvcore"
)

// HandleState is the lifecycle state of a handle.
type HandleState int

const (
	// StateOpen is a usable handle.
	StateOpen HandleState = iota
	// StateClosing lasts until the reactor runs the close callback.
	StateClosing
	// StateClosed is a handle whose close callback ran.
	StateClosed
)

func (s HandleState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("HandleState(%d)", int(s))
	}
}

// HandleType identifies a handle kind.
type HandleType int

const (
	HandleUnknown HandleType = HandleType(uvcore.UnknownHandle)
	HandleIdle    HandleType = HandleType(uvcore.IdleHandle)
	HandlePipe    HandleType = HandleType(uvcore.NamedPipeHandle)
	HandleSignal  HandleType = HandleType(uvcore.SignalHandle)
	HandleTCP     HandleType = HandleType(uvcore.TCPHandle)
	HandleTimer   HandleType = HandleType(uvcore.TimerHandle)
	HandleUDP     HandleType = HandleType(uvcore.UDPHandle)
)

func (t HandleType) String() string { return uvcore.HandleType(t).String() }

// Handle is the contract shared by every handle kind.
type Handle interface {
	Loop() *Loop
	Type() HandleType
	State() HandleState
	IsClosing() bool
	IsActive() bool
	Ref()
	Unref()
	HasRef() bool
	// Close releases the handle. onClose, which may be nil, runs once the
	// resource is gone. Closing more than once does nothing.
	Close(onClose func())
	base() *handleBase
}

// handleBase implements Handle over one reactor handle. The reactor
// handle's Data carries a token for the owning wrapper, redeemed by the
// close callback.
type handleBase struct {
	loop    *Loop
	core    *uvcore.Handle
	onClose func()
	// closing runs in the close callback before onClose, to settle
	// continuations that are not tied to a request
	closing func()
	state   HandleState
}

func (b *handleBase) init(l *Loop, h *uvcore.Handle, owner Handle, closing func()) {
	b.loop, b.core, b.closing = l, h, closing
	b.state = StateOpen
	h.Data = l.reg.attach(owner)
	l.handles[b] = struct{}{}
	l.stats.openHandles.Add(1)
}

func (b *handleBase) base() *handleBase { return b }

// Loop returns the loop the handle belongs to.
func (b *handleBase) Loop() *Loop { return b.loop }

// Type returns the handle kind.
func (b *handleBase) Type() HandleType { return HandleType(b.core.Type()) }

// State returns the lifecycle state.
func (b *handleBase) State() HandleState { return b.state }

// IsClosing reports whether Close was called.
func (b *handleBase) IsClosing() bool { return b.state != StateOpen }

// IsActive reports whether the handle is doing something, such as a started
// timer or a reading stream.
func (b *handleBase) IsActive() bool {
	return b.state == StateOpen && b.core.IsActive()
}

// HasRef reports whether the handle keeps the loop alive while active.
func (b *handleBase) HasRef() bool { return b.core.HasRef() }

// Ref makes the handle keep the loop alive while active.
func (b *handleBase) Ref() {
	if b.checkThreadOr(b.Ref) && b.state != StateClosed {
		b.core.Ref()
	}
}

// Unref stops the handle from keeping the loop alive.
func (b *handleBase) Unref() {
	if b.checkThreadOr(b.Unref) && b.state != StateClosed {
		b.core.Unref()
	}
}

// Close releases the handle. From another goroutine the close is submitted
// to the loop.
func (b *handleBase) Close(onClose func()) {
	if !b.checkThreadOr(func() { b.Close(onClose) }) || b.state != StateOpen {
		return
	}
	b.state = StateClosing
	b.onClose = onClose
	b.core.Close(onHandleClosed)
}

// checkThreadOr reports whether the caller may proceed. On a foreign
// goroutine retry is submitted to the loop instead.
func (b *handleBase) checkThreadOr(retry func()) bool {
	if b.loop.closed.Load() {
		return false
	}
	if b.loop.onLoopThread() {
		return true
	}
	_ = b.loop.Submit(retry)
	return false
}

// check validates a synchronous operation.
func (b *handleBase) check() error {
	if err := b.loop.checkThread(); err != nil {
		return err
	}
	if b.state != StateOpen {
		return ErrClosedHandle
	}
	return nil
}

// begin validates an operation with a continuation, delivering the failure
// to cont.
func (b *handleBase) begin(cont func(error)) bool {
	if err := b.check(); err != nil {
		b.loop.fail(err, cont)
		return false
	}
	return true
}

func onHandleClosed(h *uvcore.Handle) {
	l := loopOf(h.Loop())
	if l == nil {
		return
	}
	v, ok := l.reg.redeem(h.Data)
	if !ok {
		return
	}
	b := v.(Handle).base()
	b.state = StateClosed
	delete(l.handles, b)
	l.stats.openHandles.Add(-1)
	if b.closing != nil {
		b.closing()
	}
	if fn := b.onClose; fn != nil {
		b.onClose = nil
		l.invoke(fn)
	}
}

// ownerOf resolves the wrapper of a reactor handle.
func ownerOf(h *uvcore.Handle) (*Loop, Handle) {
	l := loopOf(h.Loop())
	if l == nil {
		return nil, nil
	}
	v, ok := l.reg.lookup(h.Data)
	if !ok {
		return l, nil
	}
	return l, v.(Handle)
}
