package uvcore

import (
	"container/heap"
	"math"
	"time"
)

// TimerCb is called when a timer expires.
type TimerCb func(t *Timer)

// Timer fires its callback after a timeout, then optionally every repeat
// milliseconds.
type Timer struct {
	Handle
	cb      TimerCb
	due     int64
	repeat  uint64
	startID uint64
	index   int
	ready   bool
}

// Init initializes the timer on l.
func (t *Timer) Init(l *Loop) int {
	t.Handle.init(l, TimerHandle)
	t.cb, t.index, t.ready = nil, -1, false
	t.stopHook = func() { t.Stop() }
	return OK
}

// Start arms the timer. Timeout and repeat are in milliseconds; a zero
// repeat makes it one-shot. Starting an active timer restarts it.
func (t *Timer) Start(cb TimerCb, timeout, repeat uint64) int {
	if cb == nil || t.IsClosing() {
		return EINVAL
	}
	if t.IsActive() {
		t.Stop()
	}
	l := t.loop
	t.cb = cb
	t.due = addClamped(l.nowNs, timeout)
	t.repeat = repeat
	t.startID = l.timerSeq
	l.timerSeq++
	heap.Push(&l.timers, t)
	t.start()
	return OK
}

// Stop disarms the timer. The callback is kept for Again.
func (t *Timer) Stop() int {
	t.ready = false
	if !t.IsActive() {
		return OK
	}
	if t.index >= 0 {
		heap.Remove(&t.loop.timers, t.index)
	}
	t.stop()
	return OK
}

// Again restarts a repeating timer using its repeat value as the timeout.
// It returns EINVAL if the timer was never started.
func (t *Timer) Again() int {
	if t.cb == nil {
		return EINVAL
	}
	if t.repeat != 0 {
		t.Stop()
		t.Start(t.cb, t.repeat, t.repeat)
	}
	return OK
}

// SetRepeat changes the repeat interval, taking effect on the next expiry.
func (t *Timer) SetRepeat(repeat uint64) { t.repeat = repeat }

// Repeat returns the repeat interval in milliseconds.
func (t *Timer) Repeat() uint64 { return t.repeat }

// DueIn returns the time until the timer fires, zero if inactive or due.
func (t *Timer) DueIn() time.Duration {
	if !t.IsActive() || t.due <= t.loop.nowNs {
		return 0
	}
	return time.Duration(t.due - t.loop.nowNs)
}

func addClamped(now int64, ms uint64) int64 {
	if ms > uint64(math.MaxInt64-now)/uint64(time.Millisecond) {
		return math.MaxInt64
	}
	return now + int64(ms)*int64(time.Millisecond)
}

func (l *Loop) runTimers() {
	var ready []*Timer
	for len(l.timers) > 0 {
		t := l.timers[0]
		if t.due > l.nowNs {
			break
		}
		t.Stop()
		t.ready = true
		ready = append(ready, t)
	}
	// a callback may stop or restart a timer that is still in ready
	for _, t := range ready {
		if !t.ready {
			continue
		}
		t.ready = false
		t.Again()
		t.cb(t)
	}
}

// timerHeap orders timers by due time, then by start order.
type timerHeap []*Timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].startID < h[j].startID
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	t := x.(*Timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	t.index = -1
	*h = old[:n-1]
	return t
}
