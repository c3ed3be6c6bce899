package uvcore

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// SignalCb is called on the loop when the watched signal arrives.
type SignalCb func(h *Signal, signum int)

// Signal watches one signal number. Delivery is backed by os/signal, so a
// signal is only reported while at least one Signal handle watches it.
type Signal struct {
	Handle
	cb     SignalCb
	signum int
}

// Init initializes the signal handle on l.
func (h *Signal) Init(l *Loop) int {
	h.Handle.init(l, SignalHandle)
	h.cb, h.signum = nil, 0
	h.stopHook = func() { h.Stop() }
	return OK
}

// Signum returns the watched signal number, zero if stopped.
func (h *Signal) Signum() int { return h.signum }

// Start watches signum. Starting an active handle on the same signal only
// replaces the callback.
func (h *Signal) Start(cb SignalCb, signum int) int {
	if cb == nil || signum <= 0 || signum >= 65 || h.IsClosing() {
		return EINVAL
	}
	if h.IsActive() && h.signum == signum {
		h.cb = cb
		return OK
	}
	h.Stop()
	hub := h.loop.signalHub()
	hub.watch(signum)
	h.cb, h.signum = cb, signum
	hub.handles = append(hub.handles, h)
	h.start()
	return OK
}

// Stop stops watching.
func (h *Signal) Stop() int {
	if !h.IsActive() {
		return OK
	}
	hub := h.loop.signals
	for i, v := range hub.handles {
		if v == h {
			copy(hub.handles[i:], hub.handles[i+1:])
			hub.handles[len(hub.handles)-1] = nil
			hub.handles = hub.handles[:len(hub.handles)-1]
			break
		}
	}
	hub.unwatch(h.signum)
	h.signum = 0
	h.stop()
	return OK
}

type signalWatch struct {
	ch   chan os.Signal
	done chan struct{}
	refs int
}

// signalHub forwards os/signal notifications into the loop through an
// internal async handle. Watches are reference counted per signal number.
type signalHub struct {
	loop    *Loop
	async   Async
	handles []*Signal
	watches map[int]*signalWatch
	wg      sync.WaitGroup
	mu      sync.Mutex
	queue   []int
}

func (l *Loop) signalHub() *signalHub {
	if l.signals == nil {
		hub := &signalHub{loop: l, watches: make(map[int]*signalWatch)}
		hub.async.Init(l, hub.dispatch)
		hub.async.markInternal()
		hub.async.Unref()
		l.signals = hub
	}
	return l.signals
}

func (s *signalHub) watch(signum int) {
	if w, ok := s.watches[signum]; ok {
		w.refs++
		return
	}
	w := &signalWatch{
		ch:   make(chan os.Signal, 8),
		done: make(chan struct{}),
		refs: 1,
	}
	s.watches[signum] = w
	signal.Notify(w.ch, syscall.Signal(signum))
	s.wg.Add(1)
	go s.forward(w, signum)
}

func (s *signalHub) unwatch(signum int) {
	w, ok := s.watches[signum]
	if !ok {
		return
	}
	if w.refs--; w.refs > 0 {
		return
	}
	delete(s.watches, signum)
	signal.Stop(w.ch)
	close(w.done)
}

func (s *signalHub) forward(w *signalWatch, signum int) {
	defer s.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case <-w.ch:
			s.mu.Lock()
			s.queue = append(s.queue, signum)
			s.mu.Unlock()
			s.async.Send()
		}
	}
}

func (s *signalHub) dispatch(*Async) {
	s.mu.Lock()
	q := s.queue
	s.queue = nil
	s.mu.Unlock()
	for _, signum := range q {
		snapshot := append([]*Signal(nil), s.handles...)
		for _, h := range snapshot {
			if h.IsActive() && h.signum == signum {
				h.cb(h, signum)
			}
		}
	}
}

func (s *signalHub) shutdown() {
	for signum, w := range s.watches {
		delete(s.watches, signum)
		signal.Stop(w.ch)
		close(w.done)
	}
	s.wg.Wait()
	s.async.detach()
}
