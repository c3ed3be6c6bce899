package uvloop

import (
	"github.com/joeycumines/go-uvloop/internal/uvcore"
)

// Signal delivers a process signal to a handler on the loop goroutine.
type Signal struct {
	handleBase
	sig     uvcore.Signal
	handler func(signum int)
}

var _ Handle = (*Signal)(nil)

// NewSignal creates a signal handle.
func NewSignal(l *Loop) (*Signal, error) {
	if err := l.checkThread(); err != nil {
		return nil, err
	}
	s := new(Signal)
	if rc := s.sig.Init(l.core); rc != uvcore.OK {
		return nil, codeError(rc)
	}
	s.handleBase.init(l, &s.sig.Handle, s, nil)
	return s, nil
}

// Start calls handler every time signum arrives. Starting again replaces
// the handler and, if it differs, the signal.
func (s *Signal) Start(signum int, handler func(signum int)) error {
	if err := s.check(); err != nil {
		return err
	}
	if handler == nil {
		return ArgumentError("nil signal handler")
	}
	if rc := s.sig.Start(signalTrampoline, signum); rc != uvcore.OK {
		return codeError(rc)
	}
	s.handler = handler
	return nil
}

// Stop stops watching. The handle can be started again.
func (s *Signal) Stop() error {
	if err := s.check(); err != nil {
		return err
	}
	return codeError(s.sig.Stop())
}

// Signum returns the watched signal, zero when stopped.
func (s *Signal) Signum() int { return s.sig.Signum() }

func signalTrampoline(cs *uvcore.Signal, signum int) {
	l, owner := ownerOf(&cs.Handle)
	if l == nil {
		return
	}
	s, ok := owner.(*Signal)
	if !ok || s.handler == nil {
		return
	}
	fn := s.handler
	l.invoke(func() { fn(signum) })
}
