package uvcore

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/sys/unix"
)

// RunMode selects how [Loop.Run] drives the loop.
type RunMode int

const (
	// RunDefault runs until there are no active, referenced handles or
	// requests left, or until [Loop.Stop] is called.
	RunDefault RunMode = iota
	// RunOnce polls for I/O once, blocking if nothing is pending.
	RunOnce
	// RunNoWait polls for I/O once without blocking.
	RunNoWait
)

func (m RunMode) String() string {
	switch m {
	case RunDefault:
		return "default"
	case RunOnce:
		return "once"
	case RunNoWait:
		return "nowait"
	default:
		return fmt.Sprintf("RunMode(%d)", int(m))
	}
}

// DefaultThreadPoolSize is used when Config.ThreadPoolSize is zero.
const DefaultThreadPoolSize = 4

// MaxThreadPoolSize is the largest accepted Config.ThreadPoolSize.
const MaxThreadPoolSize = 1024

// Config holds construction parameters for a Loop.
type Config struct {
	// ThreadPoolSize is the number of goroutines serving QueueWork, file
	// system and resolver requests.
	ThreadPoolSize int
}

// DeferredCb is invoked by the loop in its pending phase.
type DeferredCb func(data uintptr)

// Loop is the reactor. The zero value is not usable, see [NewLoop].
type Loop struct {
	// Data is an opaque slot for the owner of the loop.
	Data uintptr

	anchor  time.Time
	poller  poller
	timers  timerHeap
	pending []func()
	spare   []func()
	idles   []*Idle
	closing []*Handle
	asyncs  []*Async
	pool    *threadPool
	signals *signalHub

	config        Config
	nowNs         int64
	timerSeq      uint64
	wakeFd        int
	handleCount   int
	activeHandles int
	activeReqs    int
	iterations    uint64
	stopFlag      bool
	running       bool
	closed        bool
}

// NewLoop creates a loop, its epoll set and its wakeup eventfd.
func NewLoop(config Config) (*Loop, error) {
	if config.ThreadPoolSize == 0 {
		config.ThreadPoolSize = DefaultThreadPoolSize
	}
	if config.ThreadPoolSize < 0 || config.ThreadPoolSize > MaxThreadPoolSize {
		return nil, fmt.Errorf("uvcore: thread pool size %d out of range", config.ThreadPoolSize)
	}

	l := &Loop{
		anchor: time.Now(),
		config: config,
		wakeFd: -1,
	}
	if err := l.poller.init(); err != nil {
		return nil, fmt.Errorf("uvcore: epoll: %w", err)
	}
	fd, err := createWakeFd()
	if err != nil {
		_ = l.poller.close()
		return nil, fmt.Errorf("uvcore: eventfd: %w", err)
	}
	l.wakeFd = fd
	if err := l.poller.watch(fd, EventRead, l.onWake); err != nil {
		_ = unix.Close(fd)
		_ = l.poller.close()
		return nil, fmt.Errorf("uvcore: register eventfd: %w", err)
	}
	return l, nil
}

// Run drives the loop according to mode. It reports whether the loop is
// still alive, i.e. whether another call would have work to do. Calling Run
// from within a callback returns false immediately.
func (l *Loop) Run(mode RunMode) bool {
	if l.running || l.closed {
		return false
	}
	l.running = true
	defer func() { l.running = false }()

	alive := l.Alive()
	if !alive {
		l.UpdateTime()
	}
	for alive && !l.stopFlag {
		l.iterations++
		l.UpdateTime()
		l.runTimers()
		ranPending := l.runPending()
		l.runIdle()

		timeout := 0
		if (mode == RunOnce && !ranPending) || mode == RunDefault {
			timeout = l.backendTimeout()
		}
		l.pollIO(timeout)
		l.runClosing()

		if mode == RunOnce {
			l.UpdateTime()
			l.runTimers()
		}
		alive = l.Alive()
		if mode == RunOnce || mode == RunNoWait {
			break
		}
	}
	l.stopFlag = false
	return alive
}

// Stop makes Run return after the current iteration.
func (l *Loop) Stop() { l.stopFlag = true }

// Running reports whether Run is on the stack.
func (l *Loop) Running() bool { return l.running }

// Alive reports whether there are active referenced handles, active
// requests, or handles waiting for their close callback.
func (l *Loop) Alive() bool {
	return l.activeHandles > 0 || l.activeReqs > 0 || len(l.closing) > 0
}

// Now returns the cached loop time in milliseconds. The cache is refreshed
// at the start of every iteration and by UpdateTime.
func (l *Loop) Now() uint64 { return uint64(l.nowNs / int64(time.Millisecond)) }

// UpdateTime refreshes the cached loop time.
func (l *Loop) UpdateTime() { l.nowNs = int64(time.Since(l.anchor)) }

// Iterations returns the number of loop iterations run so far.
func (l *Loop) Iterations() uint64 { return l.iterations }

// ActiveHandles returns the number of active, referenced handles.
func (l *Loop) ActiveHandles() int { return l.activeHandles }

// ActiveRequests returns the number of requests still waiting for their
// callback.
func (l *Loop) ActiveRequests() int { return l.activeReqs }

// Defer queues cb to be called with data during the next pending phase. The
// loop stays alive until it runs.
func (l *Loop) Defer(cb DeferredCb, data uintptr) {
	l.activeReqs++
	l.queuePending(func() {
		l.activeReqs--
		cb(data)
	})
}

// Close releases the loop's resources. It fails with EBUSY while any
// handle is open or any request is active.
func (l *Loop) Close() int {
	if l.closed {
		return OK
	}
	if l.running || l.handleCount > 0 || l.activeReqs > 0 || len(l.closing) > 0 {
		return EBUSY
	}
	l.closed = true
	if l.signals != nil {
		l.signals.shutdown()
	}
	if l.pool != nil {
		l.pool.shutdown()
	}
	l.poller.forget(l.wakeFd)
	_ = unix.Close(l.wakeFd)
	_ = l.poller.close()
	return OK
}

func (l *Loop) queuePending(fn func()) {
	l.pending = append(l.pending, fn)
}

func (l *Loop) runPending() bool {
	if len(l.pending) == 0 {
		return false
	}
	// callbacks queued from here on run next iteration
	q := l.pending
	l.pending = l.spare[:0]
	for i, fn := range q {
		q[i] = nil
		fn()
	}
	l.spare = q[:0]
	return true
}

func (l *Loop) runIdle() {
	if len(l.idles) == 0 {
		return
	}
	snapshot := append([]*Idle(nil), l.idles...)
	for _, h := range snapshot {
		if h.IsActive() && h.cb != nil {
			h.cb(h)
		}
	}
}

func (l *Loop) runClosing() {
	if len(l.closing) == 0 {
		return
	}
	q := l.closing
	l.closing = nil
	for _, h := range q {
		h.finishClose()
	}
}

func (l *Loop) pollIO(timeout int) {
	_, _ = l.poller.poll(timeout)
	if timeout != 0 {
		l.UpdateTime()
	}
}

// backendTimeout returns the poll timeout in milliseconds, -1 meaning block.
func (l *Loop) backendTimeout() int {
	if l.stopFlag ||
		(l.activeHandles == 0 && l.activeReqs == 0) ||
		len(l.pending) > 0 ||
		len(l.idles) > 0 ||
		len(l.closing) > 0 {
		return 0
	}
	if len(l.timers) == 0 {
		return -1
	}
	diff := l.timers[0].due - l.nowNs
	if diff <= 0 {
		return 0
	}
	ms := (diff + int64(time.Millisecond) - 1) / int64(time.Millisecond)
	if ms > math.MaxInt32 {
		ms = math.MaxInt32
	}
	return int(ms)
}

func (l *Loop) onWake(IOEvents) {
	drainWakeFd(l.wakeFd)
	if len(l.asyncs) == 0 {
		return
	}
	snapshot := append([]*Async(nil), l.asyncs...)
	for _, a := range snapshot {
		if a.pending.Swap(0) == 1 && !a.IsClosing() && a.cb != nil {
			a.cb(a)
		}
	}
}
