package uvloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer_TimeoutFiresOnce(t *testing.T) {
	l := newTestLoop(t)
	tm, err := NewTimer(l, TimerTimeout, 20*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, TimerPaused, tm.TimerState())
	assert.Equal(t, HandleTimer, tm.Type())

	start := time.Now()
	var fired []time.Duration
	require.NoError(t, tm.Start(func() { fired = append(fired, time.Since(start)) }))
	assert.Equal(t, TimerRunning, tm.TimerState())
	runLoop(t, l)

	require.Len(t, fired, 1)
	assert.GreaterOrEqual(t, fired[0], 20*time.Millisecond)
	assert.Equal(t, TimerStopped, tm.TimerState())
	tm.End()
}

func TestTimer_IntervalFiresUntilStopped(t *testing.T) {
	l := newTestLoop(t)
	tm, err := NewTimer(l, TimerInterval, 5*time.Millisecond)
	require.NoError(t, err)

	start := time.Now()
	n := 0
	require.NoError(t, tm.Start(func() {
		n++
		if n == 4 {
			assert.NoError(t, tm.Stop())
		}
	}))
	runLoop(t, l)
	assert.Equal(t, 4, n)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, TimerStopped, tm.TimerState())

	require.NoError(t, tm.Resume())
	assert.Equal(t, TimerRunning, tm.TimerState())
	require.NoError(t, tm.Stop())
	tm.End()
	runLoop(t, l)
	assert.Equal(t, 4, n)
}

func TestTimer_StateMachine(t *testing.T) {
	l := newTestLoop(t)
	tm, err := NewTimer(l, TimerTimeout, time.Hour)
	require.NoError(t, err)

	// Stop and Resume before Start are no-ops
	require.NoError(t, tm.Stop())
	require.NoError(t, tm.Resume())
	assert.Equal(t, TimerPaused, tm.TimerState())

	calls := 0
	require.NoError(t, tm.Start(func() { calls++ }))
	require.NoError(t, tm.Start(func() { t.Error("second Start replaced the callback") }))
	assert.Equal(t, TimerRunning, tm.TimerState())
	assert.True(t, tm.IsActive())

	require.NoError(t, tm.Stop())
	assert.Equal(t, TimerStopped, tm.TimerState())
	assert.False(t, tm.IsActive())
	require.NoError(t, tm.Resume())
	assert.Equal(t, TimerRunning, tm.TimerState())

	tm.End()
	assert.Equal(t, TimerEnded, tm.TimerState())
	tm.End()
	assert.ErrorIs(t, tm.Start(func() {}), ErrClosedHandle)
	assert.ErrorIs(t, tm.Stop(), ErrClosedHandle)
	assert.ErrorIs(t, tm.Resume(), ErrClosedHandle)
	runLoop(t, l)
	assert.Equal(t, TimerEnded, tm.TimerState())
	assert.Equal(t, StateClosed, tm.State())
	assert.Zero(t, calls)
}

func TestTimer_ResumeTimeoutRearms(t *testing.T) {
	l := newTestLoop(t)
	tm, err := NewTimer(l, TimerTimeout, time.Millisecond)
	require.NoError(t, err)
	n := 0
	require.NoError(t, tm.Start(func() {
		n++
		if n < 3 {
			assert.NoError(t, tm.Resume())
		}
	}))
	runLoop(t, l)
	assert.Equal(t, 3, n)
	tm.End()
}

func TestTimer_ResumeTimeoutCountsFromResume(t *testing.T) {
	l := newTestLoop(t)
	tm, err := NewTimer(l, TimerTimeout, 20*time.Millisecond)
	require.NoError(t, err)
	var resumed time.Time
	var waited time.Duration
	n := 0
	require.NoError(t, tm.Start(func() {
		n++
		if n == 1 {
			// the callback outlasts the tick
			time.Sleep(30 * time.Millisecond)
			resumed = time.Now()
			assert.NoError(t, tm.Resume())
			return
		}
		waited = time.Since(resumed)
		tm.End()
	}))
	runLoop(t, l)
	assert.Equal(t, 2, n)
	assert.GreaterOrEqual(t, waited, 19*time.Millisecond)
}

func TestTimer_UnrefDoesNotKeepLoopAlive(t *testing.T) {
	l := newTestLoop(t)
	tm, err := NewTimer(l, TimerInterval, time.Hour)
	require.NoError(t, err)
	require.NoError(t, tm.Start(func() {}))
	tm.Unref()
	assert.False(t, tm.HasRef())
	runLoop(t, l)
	tm.Ref()
	assert.True(t, tm.HasRef())
	tm.End()
}

func TestNewTimer_InvalidArguments(t *testing.T) {
	l := newTestLoop(t)
	_, err := NewTimer(l, TimerInterval, 0)
	assert.ErrorIs(t, err, ArgumentError(""))
	_, err = NewTimer(l, TimerTimeout, -time.Second)
	assert.ErrorIs(t, err, ArgumentError(""))
	_, err = NewTimer(l, TimerMode(7), time.Second)
	assert.ErrorIs(t, err, ArgumentError(""))

	tm, err := NewTimer(l, TimerTimeout, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, tm.Start(nil), ArgumentError(""))
	tm.End()
}

func TestTimerEnums_String(t *testing.T) {
	assert.Equal(t, "interval", TimerInterval.String())
	assert.Equal(t, "ended", TimerEnded.String())
	assert.Equal(t, "TimerState(9)", TimerState(9).String())
}
