package uvcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer_OneShot(t *testing.T) {
	l := newTestLoop(t)
	var timer Timer
	require.Equal(t, OK, timer.Init(l))
	start := time.Now()
	var elapsed time.Duration
	fired := 0
	l.UpdateTime()
	require.Equal(t, OK, timer.Start(func(tm *Timer) {
		fired++
		elapsed = time.Since(start)
		assert.Same(t, &timer, tm)
	}, 20, 0))
	assert.True(t, timer.IsActive())
	assert.Greater(t, timer.DueIn(), time.Duration(0))

	runFor(t, l, 5*time.Second)
	assert.Equal(t, 1, fired)
	assert.GreaterOrEqual(t, elapsed, 20*time.Millisecond)
	assert.False(t, timer.IsActive())
	closeAll(l, &timer.Handle)
}

func TestTimer_RepeatAndStop(t *testing.T) {
	l := newTestLoop(t)
	var timer Timer
	timer.Init(l)
	fired := 0
	timer.Start(func(tm *Timer) {
		fired++
		if fired == 5 {
			tm.Stop()
		}
	}, 1, 1)
	assert.Equal(t, uint64(1), timer.Repeat())
	runFor(t, l, 5*time.Second)
	assert.Equal(t, 5, fired)

	// Again resumes a stopped repeating timer
	require.Equal(t, OK, timer.Again())
	timer.SetRepeat(0)
	runFor(t, l, 5*time.Second)
	assert.Equal(t, 6, fired)
	closeAll(l, &timer.Handle)
}

func TestTimer_AgainRequiresStart(t *testing.T) {
	l := newTestLoop(t)
	var timer Timer
	timer.Init(l)
	assert.Equal(t, EINVAL, timer.Again())
	assert.Equal(t, EINVAL, timer.Start(nil, 1, 0))
	closeAll(l, &timer.Handle)
}

func TestTimer_OrderByDueThenStart(t *testing.T) {
	l := newTestLoop(t)
	var a, b, c Timer
	var order []string
	for _, v := range []struct {
		tm   *Timer
		name string
		ms   uint64
	}{{&a, "a", 10}, {&b, "b", 0}, {&c, "c", 0}} {
		v.tm.Init(l)
		name := v.name
		v.tm.Start(func(*Timer) { order = append(order, name) }, v.ms, 0)
	}
	runFor(t, l, 5*time.Second)
	assert.Equal(t, []string{"b", "c", "a"}, order)
	closeAll(l, &a.Handle, &b.Handle, &c.Handle)
}

func TestTimer_StopOtherReadyTimer(t *testing.T) {
	l := newTestLoop(t)
	var a, b Timer
	a.Init(l)
	b.Init(l)
	bFired := false
	a.Start(func(*Timer) { b.Stop() }, 0, 0)
	b.Start(func(*Timer) { bFired = true }, 0, 0)
	runFor(t, l, 5*time.Second)
	assert.False(t, bFired)
	closeAll(l, &a.Handle, &b.Handle)
}

func TestTimer_ZeroTimeoutRestartDoesNotSpin(t *testing.T) {
	l := newTestLoop(t)
	var timer Timer
	timer.Init(l)
	fired := 0
	var cb TimerCb
	cb = func(tm *Timer) {
		fired++
		if fired < 3 {
			tm.Start(cb, 0, 0)
		}
	}
	timer.Start(cb, 0, 0)
	l.Run(RunNoWait)
	assert.Equal(t, 1, fired)
	runFor(t, l, 5*time.Second)
	assert.Equal(t, 3, fired)
	closeAll(l, &timer.Handle)
}
