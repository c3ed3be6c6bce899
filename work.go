package uvloop

import (
	"fmt"

	"github.com/joeycumines/go-uvloop/internal/uvcore"
)

// Work runs a blocking function on the loop's thread pool, then an
// after-work continuation on the loop goroutine.
//
// The work function runs on a pool goroutine and must not use the loop or
// any handle. A panic in it is recovered and reported to afterWork.
type Work struct {
	loop      *Loop
	work      func()
	afterWork func(error)
	req       *uvcore.WorkReq
	panicked  any
	finished  bool
	canceled  bool
}

// NewWork prepares work. afterWork may be nil.
func NewWork(l *Loop, work func(), afterWork func(error)) (*Work, error) {
	if work == nil {
		return nil, ArgumentError("nil work function")
	}
	if afterWork == nil {
		afterWork = nopErr
	}
	return &Work{loop: l, work: work, afterWork: afterWork}, nil
}

// Queued reports whether the work is waiting for or running on the pool.
func (w *Work) Queued() bool { return w.req != nil }

// Execute queues the work. afterWork receives nil once the work function
// returned, ErrCanceled after a successful Cancel, or the failure to queue.
// A finished Work may be executed again.
func (w *Work) Execute() {
	if err := w.loop.checkThread(); err != nil {
		w.loop.fail(err, w.afterWork)
		return
	}
	if w.req != nil {
		w.loop.fail(ArgumentError("work already queued"), w.afterWork)
		return
	}
	req := uvcore.NewWorkReq()
	var g reqGuard
	g.init(w.loop, &req.Req, req.Free, w)
	defer g.release()
	if rc := uvcore.QueueWork(w.loop.core, req, w.run, workDoneTrampoline); rc != uvcore.OK {
		w.loop.fail(codeError(rc), w.afterWork)
		return
	}
	g.disarm()
	w.req, w.finished, w.canceled = req, false, false
}

// Cancel prevents queued work from running. It returns ErrWorkStarted once
// a pool goroutine picked the work up, in which case afterWork still
// receives nil when it finishes. Canceling again after a successful Cancel
// returns nil.
func (w *Work) Cancel() error {
	if err := w.loop.checkThread(); err != nil {
		return err
	}
	switch {
	case w.canceled:
		return nil
	case w.req == nil && w.finished:
		return ErrWorkStarted
	case w.req == nil:
		return ArgumentError("work not queued")
	}
	switch rc := w.req.Cancel(); rc {
	case uvcore.OK:
		w.canceled = true
		return nil
	case uvcore.EBUSY:
		return ErrWorkStarted
	default:
		return codeError(rc)
	}
}

// run is the pool phase.
func (w *Work) run(*uvcore.WorkReq) {
	defer func() {
		if r := recover(); r != nil {
			w.panicked = r
		}
	}()
	w.work()
}

func workDoneTrampoline(req *uvcore.WorkReq, status int) {
	l := loopOf(req.Loop())
	if l == nil {
		return
	}
	v, ok := complete(l, req.Data, req.Free)
	if !ok {
		return
	}
	w := v.(*Work)
	w.req, w.finished = nil, true
	err := codeError(status)
	if r := w.panicked; r != nil {
		w.panicked = nil
		l.stats.recoveredPanics.Add(1)
		if b := l.diag.limited(logCategoryPanic); b != nil {
			b.Any("panic", r).Log("uvloop: work function panicked")
		}
		err = fmt.Errorf("uvloop: work function panicked: %v", r)
	}
	cont := w.afterWork
	l.invoke(func() { cont(err) })
}
