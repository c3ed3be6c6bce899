package uvloop

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWork_RunsOffLoopThenAfterWork(t *testing.T) {
	l := newTestLoop(t)
	owner := goroutineID()
	var worker uint64
	var after []error
	w, err := NewWork(l, func() { worker = goroutineID() }, func(err error) {
		assert.Equal(t, owner, goroutineID())
		after = append(after, err)
	})
	require.NoError(t, err)
	w.Execute()
	assert.True(t, w.Queued())
	runLoop(t, l)

	assert.Equal(t, []error{nil}, after)
	assert.NotEqual(t, owner, worker)
	assert.False(t, w.Queued())
	assert.ErrorIs(t, w.Cancel(), ErrWorkStarted)

	// a finished work item may run again
	w.Execute()
	runLoop(t, l)
	assert.Len(t, after, 2)
}

func TestWork_CancelBeforeStart(t *testing.T) {
	l := newTestLoop(t, WithThreadPoolSize(1))
	release := make(chan struct{})
	var blockerErr error
	blocker, err := NewWork(l, func() { <-release }, func(err error) { blockerErr = err })
	require.NoError(t, err)
	blocker.Execute()

	var ran atomic.Bool
	var got error
	calls := 0
	w, err := NewWork(l, func() { ran.Store(true) }, func(err error) {
		got = err
		calls++
	})
	require.NoError(t, err)
	w.Execute()

	// the single worker is busy, so w is still queued
	require.NoError(t, w.Cancel())
	assert.NoError(t, w.Cancel(), "canceling twice is not a late cancel")
	close(release)
	runLoop(t, l)

	assert.False(t, ran.Load())
	assert.ErrorIs(t, got, ErrCanceled)
	assert.Equal(t, 1, calls)
	assert.NoError(t, blockerErr)
	assert.NoError(t, w.Cancel())

	// executing again clears the canceled state
	got = ErrEOF
	w.Execute()
	runLoop(t, l)
	assert.True(t, ran.Load())
	assert.NoError(t, got)
	assert.ErrorIs(t, w.Cancel(), ErrWorkStarted)
}

func TestWork_CancelAfterStart(t *testing.T) {
	l := newTestLoop(t, WithThreadPoolSize(1))
	started := make(chan struct{})
	release := make(chan struct{})
	var got []error
	w, err := NewWork(l, func() {
		close(started)
		<-release
	}, func(err error) { got = append(got, err) })
	require.NoError(t, err)
	w.Execute()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("work never started")
	}
	assert.ErrorIs(t, w.Cancel(), ErrWorkStarted)
	close(release)
	runLoop(t, l)
	assert.Equal(t, []error{nil}, got)
}

func TestWork_PanicIsReported(t *testing.T) {
	l := newTestLoop(t)
	var got error
	w, err := NewWork(l, func() { panic("worker") }, func(err error) { got = err })
	require.NoError(t, err)
	w.Execute()
	runLoop(t, l)
	require.Error(t, got)
	assert.Contains(t, got.Error(), "worker")
	assert.Equal(t, uint64(1), l.Stats().RecoveredPanics)
}

func TestWork_Misuse(t *testing.T) {
	l := newTestLoop(t)
	_, err := NewWork(l, nil, nil)
	assert.ErrorIs(t, err, ArgumentError(""))

	w, err := NewWork(l, func() {}, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, w.Cancel(), ArgumentError(""))

	var errs []error
	w2, err := NewWork(l, func() { time.Sleep(20 * time.Millisecond) }, func(err error) { errs = append(errs, err) })
	require.NoError(t, err)
	w2.Execute()
	w2.Execute()
	runLoop(t, l)
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[0], ArgumentError(""), "the rejected second Execute reports first")
	assert.NoError(t, errs[1])
}
