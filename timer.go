package uvloop

import (
	"fmt"
	"time"

	"github.com/joeycumines/go-uvloop/internal/uvcore"
)

// TimerMode selects whether a timer fires once or repeatedly.
type TimerMode int

const (
	// TimerTimeout fires once, tick after Start.
	TimerTimeout TimerMode = iota
	// TimerInterval fires every tick until stopped.
	TimerInterval
)

func (m TimerMode) String() string {
	switch m {
	case TimerTimeout:
		return "timeout"
	case TimerInterval:
		return "interval"
	default:
		return fmt.Sprintf("TimerMode(%d)", int(m))
	}
}

// TimerState is the position of a timer in its state machine. Paused
// becomes Running through Start, Running and Stopped alternate through Stop
// and Resume, and every state ends in Ended.
type TimerState int

const (
	// TimerPaused is a timer that was never started.
	TimerPaused TimerState = iota
	// TimerRunning is an armed timer.
	TimerRunning
	// TimerStopped is a stopped timer, or a timeout that already fired.
	TimerStopped
	// TimerEnded is a timer that was ended or closed.
	TimerEnded
)

func (s TimerState) String() string {
	switch s {
	case TimerPaused:
		return "paused"
	case TimerRunning:
		return "running"
	case TimerStopped:
		return "stopped"
	case TimerEnded:
		return "ended"
	default:
		return fmt.Sprintf("TimerState(%d)", int(s))
	}
}

// Timer runs a callback after a delay, once or repeatedly.
type Timer struct {
	handleBase
	timer  uvcore.Timer
	cb     func()
	tick   time.Duration
	mode   TimerMode
	tstate TimerState
}

var _ Handle = (*Timer)(nil)

// NewTimer creates a paused timer. An interval timer needs a positive tick.
func NewTimer(l *Loop, mode TimerMode, tick time.Duration) (*Timer, error) {
	if err := l.checkThread(); err != nil {
		return nil, err
	}
	switch {
	case mode != TimerTimeout && mode != TimerInterval:
		return nil, ArgumentError("invalid timer mode %d", int(mode))
	case tick < 0:
		return nil, ArgumentError("negative timer tick %v", tick)
	case mode == TimerInterval && tick == 0:
		return nil, ArgumentError("interval timer needs a positive tick")
	}
	t := &Timer{mode: mode, tick: tick}
	if rc := t.timer.Init(l.core); rc != uvcore.OK {
		return nil, codeError(rc)
	}
	t.handleBase.init(l, &t.timer.Handle, t, func() { t.tstate = TimerEnded })
	return t, nil
}

// Mode returns the timer's mode.
func (t *Timer) Mode() TimerMode { return t.mode }

// Tick returns the timer's delay or period.
func (t *Timer) Tick() time.Duration { return t.tick }

// TimerState returns the state machine position.
func (t *Timer) TimerState() TimerState {
	if t.state != StateOpen {
		return TimerEnded
	}
	return t.tstate
}

// Start arms a paused timer with cb. It does nothing if the timer was
// already started.
func (t *Timer) Start(cb func()) error {
	if err := t.check(); err != nil {
		return err
	}
	if cb == nil {
		return ArgumentError("nil timer callback")
	}
	if t.tstate != TimerPaused {
		return nil
	}
	t.cb = cb
	if err := t.arm(); err != nil {
		return err
	}
	t.tstate = TimerRunning
	return nil
}

// Stop disarms a running timer. The callback is kept for Resume.
func (t *Timer) Stop() error {
	if err := t.check(); err != nil {
		return err
	}
	if t.tstate != TimerRunning {
		return nil
	}
	if rc := t.timer.Stop(); rc != uvcore.OK {
		return codeError(rc)
	}
	t.tstate = TimerStopped
	return nil
}

// Resume re-arms a stopped timer for a full tick.
func (t *Timer) Resume() error {
	if err := t.check(); err != nil {
		return err
	}
	if t.tstate != TimerStopped {
		return nil
	}
	t.loop.core.UpdateTime()
	var rc int
	if t.mode == TimerInterval {
		rc = t.timer.Again()
	} else {
		rc = t.timer.Start(timerTrampoline, t.ms(), 0)
	}
	if rc != uvcore.OK {
		return codeError(rc)
	}
	t.tstate = TimerRunning
	return nil
}

// End stops the timer for good and releases it. Ending twice does nothing.
func (t *Timer) End() {
	if !t.checkThreadOr(t.End) || t.state != StateOpen {
		return
	}
	t.timer.Stop()
	t.tstate = TimerEnded
	t.Close(nil)
}

func (t *Timer) arm() error {
	t.loop.core.UpdateTime()
	ms := t.ms()
	repeat := uint64(0)
	if t.mode == TimerInterval {
		repeat = ms
	}
	return codeError(t.timer.Start(timerTrampoline, ms, repeat))
}

// ms rounds the tick up to whole milliseconds.
func (t *Timer) ms() uint64 {
	return uint64((t.tick + time.Millisecond - 1) / time.Millisecond)
}

func timerTrampoline(ct *uvcore.Timer) {
	l, owner := ownerOf(&ct.Handle)
	if l == nil {
		return
	}
	t, ok := owner.(*Timer)
	if !ok || t.cb == nil {
		return
	}
	if t.mode == TimerTimeout {
		// a fired timeout can be resumed like a stopped one
		t.tstate = TimerStopped
	}
	l.invoke(t.cb)
}
