package uvcore

import (
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"golang.org/x/sync/errgroup"
)

const (
	workQueued int32 = iota
	workRunning
	workDone
	workCanceled
)

// work is one thread pool item. run executes on a pool goroutine, done on
// the loop with OK or ECANCELED.
type work struct {
	run   func()
	done  func(status int)
	state atomic.Int32
}

// threadPool is a fixed set of goroutines draining a FIFO of work items.
// Finished items are handed back to the loop through an internal async
// handle; that handoff is the only point where pool goroutines and the loop
// share state.
type threadPool struct {
	loop     *Loop
	async    Async
	group    *errgroup.Group
	items    *queue.Queue
	cond     *sync.Cond
	finished []*work
	mu       sync.Mutex
	doneMu   sync.Mutex
	size     int
	closed   bool
}

func (l *Loop) threadPool() *threadPool {
	if l.pool == nil {
		p := &threadPool{
			loop:  l,
			size:  l.config.ThreadPoolSize,
			items: queue.New(),
			group: new(errgroup.Group),
		}
		p.cond = sync.NewCond(&p.mu)
		p.async.Init(l, p.onDone)
		p.async.markInternal()
		p.async.Unref()
		for i := 0; i < p.size; i++ {
			p.group.Go(p.worker)
		}
		l.pool = p
	}
	return l.pool
}

func (p *threadPool) submit(w *work) {
	w.state.Store(workQueued)
	p.mu.Lock()
	p.items.Add(w)
	p.mu.Unlock()
	p.cond.Signal()
}

// cancel must be called on the loop. It only succeeds while w is queued.
func (p *threadPool) cancel(w *work) int {
	if !w.state.CompareAndSwap(workQueued, workCanceled) {
		return EBUSY
	}
	// the stale queue entry is skipped by whichever worker pops it
	p.post(w)
	return OK
}

func (p *threadPool) worker() error {
	for {
		p.mu.Lock()
		for p.items.Length() == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return nil
		}
		w := p.items.Remove().(*work)
		p.mu.Unlock()

		if !w.state.CompareAndSwap(workQueued, workRunning) {
			continue
		}
		w.run()
		w.state.Store(workDone)
		p.post(w)
	}
}

func (p *threadPool) post(w *work) {
	p.doneMu.Lock()
	p.finished = append(p.finished, w)
	p.doneMu.Unlock()
	p.async.Send()
}

func (p *threadPool) onDone(*Async) {
	p.doneMu.Lock()
	q := p.finished
	p.finished = nil
	p.doneMu.Unlock()
	for _, w := range q {
		st := OK
		if w.state.Load() == workCanceled {
			st = ECANCELED
		}
		w.done(st)
	}
}

func (p *threadPool) shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cond.Broadcast()
	_ = p.group.Wait()
	p.async.detach()
}

// WorkCb runs on a pool goroutine. It must not touch any handle.
type WorkCb func(req *WorkReq)

// AfterWorkCb runs on the loop once the work callback returned, or with
// ECANCELED if the request was canceled first.
type AfterWorkCb func(req *WorkReq, status int)

// WorkReq is a thread pool request.
type WorkReq struct {
	Req
	loop    *Loop
	workCb  WorkCb
	afterCb AfterWorkCb
	work    work
}

// Loop returns the loop the request was queued on.
func (r *WorkReq) Loop() *Loop { return r.loop }

// QueueWork runs workCb on the thread pool, then afterCb on the loop.
func QueueWork(l *Loop, req *WorkReq, workCb WorkCb, afterCb AfterWorkCb) int {
	if req == nil || workCb == nil || l.closed {
		return EINVAL
	}
	if req.active {
		return EBUSY
	}
	req.loop, req.workCb, req.afterCb = l, workCb, afterCb
	req.work.run = func() { req.workCb(req) }
	req.work.done = func(st int) {
		req.end(l)
		if req.afterCb != nil {
			req.afterCb(req, st)
		}
	}
	req.begin(l)
	l.threadPool().submit(&req.work)
	return OK
}

// Cancel cancels a queued request. It returns EBUSY once a pool goroutine
// has picked the request up, and EINVAL if the request is not in flight.
func (r *WorkReq) Cancel() int {
	if !r.active {
		return EINVAL
	}
	return r.loop.pool.cancel(&r.work)
}
