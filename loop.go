package uvloop

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/joeycumines/go-uvloop/internal/uvcore"
)

// RunMode selects how a single Run call drives the loop.
type RunMode int

const (
	// RunDefault runs until nothing keeps the loop alive.
	RunDefault RunMode = RunMode(uvcore.RunDefault)
	// RunOnce waits for and processes one round of events.
	RunOnce RunMode = RunMode(uvcore.RunOnce)
	// RunNoWait processes ready events without blocking.
	RunNoWait RunMode = RunMode(uvcore.RunNoWait)
)

func (m RunMode) String() string { return uvcore.RunMode(m).String() }

// loops maps reactors to their owners, for callbacks that only receive
// reactor structures.
var loops sync.Map

func loopOf(c *uvcore.Loop) *Loop {
	if v, ok := loops.Load(c); ok {
		return v.(*Loop)
	}
	return nil
}

// Loop is a single-threaded reactor with every handle and operation
// created against it. It must be driven and used from one goroutine: the
// one that created it, or the one most recently calling a Run method.
// [Loop.Submit] and [Loop.Stats] are the only methods safe for concurrent
// use.
type Loop struct {
	core       *uvcore.Loop
	reg        *registry
	opts       *loopOptions
	diag       *diagnostics
	handles    map[*handleBase]struct{}
	deferredCb uvcore.DeferredCb
	submitQ    []func()
	submitTmp  []func()
	submit     uvcore.Async
	buffers    bufferPool
	stats      loopStats
	owner      atomic.Uint64
	submitMu   sync.Mutex
	closed     atomic.Bool
	noSubmit   bool
}

// New creates a loop owned by the calling goroutine.
func New(opts ...LoopOption) (*Loop, error) {
	o, err := resolveLoopOptions(opts)
	if err != nil {
		return nil, err
	}
	core, err := uvcore.NewLoop(uvcore.Config{ThreadPoolSize: o.threadPoolSize})
	if err != nil {
		return nil, err
	}
	l := &Loop{
		core:    core,
		opts:    o,
		diag:    newDiagnostics(o.logger),
		handles: make(map[*handleBase]struct{}),
	}
	l.reg = newRegistry(l.onMisuse)
	l.deferredCb = l.onDeferred
	l.owner.Store(goroutineID())
	l.submit.Init(core, l.onSubmit)
	l.submit.Unref()
	loops.Store(core, l)
	l.diag.debug().
		Int("thread_pool_size", o.threadPoolSize).
		Bool("thread_check", o.threadCheck).
		Log("uvloop: loop created")
	return l, nil
}

// Run drives the loop until nothing keeps it alive, Stop is called, or ctx
// is done, in which case ctx.Err() is returned.
func (l *Loop) Run(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, func() {
		_ = l.Submit(l.core.Stop)
	})
	defer stop()
	if _, err := l.run(RunDefault); err != nil {
		return err
	}
	return ctx.Err()
}

// RunOnce waits for events once and processes them. It reports whether the
// loop is still alive.
func (l *Loop) RunOnce() (bool, error) { return l.run(RunOnce) }

// RunNoWait processes ready events without blocking. It reports whether the
// loop is still alive.
func (l *Loop) RunNoWait() (bool, error) { return l.run(RunNoWait) }

// RunMode drives the loop once using mode.
func (l *Loop) RunMode(mode RunMode) (bool, error) { return l.run(mode) }

func (l *Loop) run(mode RunMode) (bool, error) {
	if l.closed.Load() {
		return false, ErrLoopClosed
	}
	if l.core.Running() {
		return false, ErrReentrantRun
	}
	l.owner.Store(goroutineID())
	alive := l.core.Run(uvcore.RunMode(mode))
	l.sample()
	return alive, nil
}

// Stop makes a running loop return after its current iteration. From
// another goroutine, use Submit(l.Stop).
func (l *Loop) Stop() {
	if l.onLoopThread() {
		l.core.Stop()
	}
}

// Alive reports whether the loop has live handles or requests.
func (l *Loop) Alive() bool {
	return !l.closed.Load() && l.core.Alive()
}

// Now returns the loop's cached time in milliseconds.
func (l *Loop) Now() uint64 { return l.core.Now() }

// Submit queues fn to run on the loop goroutine during its next iteration.
// It is safe for concurrent use. Submitted functions do not keep the loop
// alive.
func (l *Loop) Submit(fn func()) error {
	if fn == nil {
		return ArgumentError("nil function submitted")
	}
	l.submitMu.Lock()
	defer l.submitMu.Unlock()
	if l.noSubmit {
		return ErrLoopClosed
	}
	l.submitQ = append(l.submitQ, fn)
	l.submit.Send()
	l.stats.submitted.Add(1)
	return nil
}

func (l *Loop) onSubmit(*uvcore.Async) {
	l.submitMu.Lock()
	q := l.submitQ
	l.submitQ = l.submitTmp[:0]
	l.submitMu.Unlock()
	for i, fn := range q {
		q[i] = nil
		l.invoke(fn)
	}
	l.submitTmp = q[:0]
}

// drainSubmitted runs every queued function, including any queued while
// draining, then refuses further submissions.
func (l *Loop) drainSubmitted() {
	for {
		l.submitMu.Lock()
		q := l.submitQ
		l.submitQ = nil
		if len(q) == 0 {
			l.noSubmit = true
			l.submitMu.Unlock()
			return
		}
		l.submitMu.Unlock()
		for i, fn := range q {
			q[i] = nil
			l.invoke(fn)
		}
	}
}

// Close runs the functions still queued by Submit, closes every open handle, waits for outstanding requests and
// releases the reactor. Closing a closed loop does nothing.
func (l *Loop) Close() error {
	if l.closed.Load() {
		return nil
	}
	if err := l.checkThread(); err != nil {
		return err
	}
	if l.core.Running() {
		return ErrReentrantRun
	}
	l.drainSubmitted()
	for h := range l.handles {
		h.Close(nil)
	}
	l.submit.Close(nil)
	for l.core.Alive() {
		l.core.Run(uvcore.RunDefault)
	}
	if rc := l.core.Close(); rc != uvcore.OK {
		return codeError(rc)
	}
	l.closed.Store(true)
	loops.Delete(l.core)
	l.sample()
	if n := l.reg.outstanding(); n != 0 {
		if b := l.diag.limited(logCategoryRegistry); b != nil {
			b.Int("tokens", n).Log("uvloop: loop closed with outstanding continuations")
		}
	}
	l.diag.debug().Uint64("iterations", l.core.Iterations()).Log("uvloop: loop closed")
	return nil
}

// IsClosed reports whether Close completed.
func (l *Loop) IsClosed() bool { return l.closed.Load() }

func (l *Loop) onLoopThread() bool {
	return !l.opts.threadCheck || goroutineID() == l.owner.Load()
}

func (l *Loop) checkThread() error {
	if l.closed.Load() {
		return ErrLoopClosed
	}
	if !l.onLoopThread() {
		return ErrNotLoopThread
	}
	return nil
}

// invoke runs a continuation, containing any panic.
func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.stats.recoveredPanics.Add(1)
			if b := l.diag.limited(logCategoryPanic); b != nil {
				b.Any("panic", r).Log("uvloop: continuation panicked")
			}
		}
		l.sample()
	}()
	l.stats.completions.Add(1)
	fn()
}

// later runs fn in the next pending phase.
func (l *Loop) later(fn func()) {
	l.core.Defer(l.deferredCb, l.reg.attach(fn))
}

func (l *Loop) onDeferred(tok uintptr) {
	if v, ok := l.reg.redeem(tok); ok {
		l.invoke(v.(func()))
	}
}

// post runs fn on the loop after control returns to it. If the loop is
// closed and can no longer run anything, fn runs immediately.
func (l *Loop) post(fn func()) {
	switch {
	case l.closed.Load():
		l.invoke(fn)
	case !l.onLoopThread():
		if l.Submit(fn) != nil {
			l.invoke(fn)
		}
	default:
		l.later(fn)
	}
}

// fail delivers err to cont through post. It is how failures detected while
// issuing an operation reach the operation's continuation.
func (l *Loop) fail(err error, cont func(error)) {
	if cont == nil {
		return
	}
	l.stats.deferredFailures.Add(1)
	l.post(func() { cont(err) })
}

func (l *Loop) freeReq(free func() int) {
	if rc := free(); rc != uvcore.OK {
		if debugChecks {
			panic("uvloop: request released twice or while active")
		}
		if b := l.diag.limited(logCategoryRequest); b != nil {
			b.Str("code", uvcore.ErrName(rc)).Log("uvloop: request release failed")
		}
	}
}

func (l *Loop) onMisuse(op string, tok uintptr) {
	if b := l.diag.limited(logCategoryRegistry); b != nil {
		b.Str("op", op).Uint64("token", uint64(tok)).Log("uvloop: stale context token")
	}
}

// reqGuard owns a request and its continuation token until the start
// function succeeds. Declare it as a variable and defer release.
type reqGuard struct {
	loop  *Loop
	free  func() int
	tok   uintptr
	armed bool
}

func (g *reqGuard) init(l *Loop, req *uvcore.Req, free func() int, cont any) {
	g.loop, g.free, g.armed = l, free, true
	g.tok = l.reg.attach(cont)
	req.Data = g.tok
}

// disarm hands the request over to its completion callback.
func (g *reqGuard) disarm() { g.armed = false }

func (g *reqGuard) release() {
	if !g.armed {
		return
	}
	g.armed = false
	g.loop.reg.drop(g.tok)
	g.loop.freeReq(g.free)
}

// complete redeems a finished request's token and frees the request.
func complete(l *Loop, tok uintptr, free func() int) (any, bool) {
	v, ok := l.reg.redeem(tok)
	l.freeReq(free)
	return v, ok
}

// completeErr completes a request whose continuation is func(error).
func completeErr(c *uvcore.Loop, tok uintptr, free func() int, status int) {
	l := loopOf(c)
	if l == nil {
		return
	}
	v, ok := complete(l, tok, free)
	if !ok {
		return
	}
	cont := v.(func(error))
	err := codeError(status)
	l.invoke(func() { cont(err) })
}

func nopErr(error) {}
