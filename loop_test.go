package uvloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoop_RunWithNothingToDo(t *testing.T) {
	l := newTestLoop(t)
	runLoop(t, l)
	alive, err := l.RunNoWait()
	require.NoError(t, err)
	assert.False(t, alive)
	assert.False(t, l.Alive())
}

func TestLoop_RunHonorsContext(t *testing.T) {
	l := newTestLoop(t)
	tm, err := NewTimer(l, TimerTimeout, time.Hour)
	require.NoError(t, err)
	require.NoError(t, tm.Start(func() { t.Error("timer fired") }))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	assert.ErrorIs(t, l.Run(ctx), context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.True(t, l.Alive())
	tm.End()
}

func TestLoop_SubmitFromGoroutine(t *testing.T) {
	l := newTestLoop(t)
	tm, err := NewTimer(l, TimerTimeout, 10*time.Second)
	require.NoError(t, err)
	require.NoError(t, tm.Start(func() { t.Error("timer fired") }))

	var got []int
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.Submit(func() { got = append(got, i) }))
		}()
	}
	go func() {
		wg.Wait()
		assert.NoError(t, l.Submit(tm.End))
	}()
	runLoop(t, l)
	assert.ElementsMatch(t, []int{0, 1, 2}, got)
	assert.Equal(t, uint64(4), l.Stats().Submitted)
}

func TestLoop_FailureIsNeverSynchronous(t *testing.T) {
	l := newTestLoop(t)
	u, err := NewUDP(l)
	require.NoError(t, err)

	returned := false
	var got error
	u.Recv(func(_ Buffer, _ Address, err error) {
		assert.True(t, returned, "continuation ran before the call returned")
		got = err
		u.Close(nil)
	})
	returned = true
	assert.Nil(t, got)
	runLoop(t, l)
	assert.ErrorIs(t, got, ErrBindRequired)
	assert.Equal(t, uint64(1), l.Stats().DeferredFailures)
}

func TestLoop_RecoversContinuationPanic(t *testing.T) {
	l := newTestLoop(t)
	tm, err := NewTimer(l, TimerTimeout, time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, tm.Start(func() {
		tm.End()
		panic("boom")
	}))
	runLoop(t, l)
	assert.Equal(t, uint64(1), l.Stats().RecoveredPanics)
	assert.Equal(t, StateClosed, tm.State())
}

func TestLoop_RunNotReentrant(t *testing.T) {
	l := newTestLoop(t)
	var inner error
	tm, err := NewTimer(l, TimerTimeout, 0)
	require.NoError(t, err)
	require.NoError(t, tm.Start(func() {
		_, inner = l.RunNoWait()
		assert.ErrorIs(t, l.Close(), ErrReentrantRun)
		tm.End()
	}))
	runLoop(t, l)
	assert.ErrorIs(t, inner, ErrReentrantRun)
}

func TestLoop_WrongGoroutine(t *testing.T) {
	l := newTestLoop(t)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := NewTimer(l, TimerTimeout, 0)
		assert.ErrorIs(t, err, ErrNotLoopThread)
		assert.ErrorIs(t, l.Close(), ErrNotLoopThread)
	}()
	<-done

	off := newTestLoop(t, WithThreadCheck(false))
	done = make(chan struct{})
	go func() {
		defer close(done)
		tm, err := NewTimer(off, TimerTimeout, 0)
		if assert.NoError(t, err) {
			tm.End()
		}
	}()
	<-done
	runLoop(t, off)
}

func TestLoop_WrongGoroutineOperationFailsOnLoop(t *testing.T) {
	l := newTestLoop(t)
	u, err := NewUDP(l)
	require.NoError(t, err)
	require.NoError(t, u.Bind(loopback(0)))

	var got error
	go u.Send([]byte("x"), loopback(9), func(err error) {
		got = err
		u.Close(nil)
	})
	keep, err := NewTimer(l, TimerInterval, time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, keep.Start(func() {
		if u.State() != StateOpen {
			keep.End()
		}
	}))
	runLoop(t, l)
	assert.ErrorIs(t, got, ErrNotLoopThread)
}

func TestLoop_Close(t *testing.T) {
	l, err := New()
	require.NoError(t, err)

	u, err := NewUDP(l)
	require.NoError(t, err)
	require.NoError(t, u.Bind(loopback(0)))
	var recvErr error
	u.Recv(func(_ Buffer, _ Address, err error) { recvErr = err })

	closed := false
	tcp, err := NewTCP(l)
	require.NoError(t, err)
	tcp.Close(func() { closed = true })

	require.NoError(t, l.Close())
	assert.True(t, l.IsClosed())
	assert.True(t, closed)
	assert.ErrorIs(t, recvErr, ErrClosedHandle)
	assert.Equal(t, StateClosed, u.State())
	assert.Zero(t, l.Stats().OpenHandles)
	assert.Zero(t, l.Stats().OutstandingTokens)
	require.NoError(t, l.Close())

	assert.ErrorIs(t, l.Run(context.Background()), ErrLoopClosed)
	assert.ErrorIs(t, l.Submit(func() {}), ErrLoopClosed)
	_, err = NewTCP(l)
	assert.ErrorIs(t, err, ErrLoopClosed)

	// operations on a closed loop complete synchronously, nothing is left
	// to run them later
	var openErr error
	Open(l, "/nonexistent", ModeRead, func(_ File, err error) { openErr = err })
	assert.ErrorIs(t, openErr, ErrLoopClosed)
}

func TestLoop_CloseRunsSubmitted(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	u, err := NewUDP(l)
	require.NoError(t, err)
	require.NoError(t, u.Bind(loopback(0)))
	other, err := NewUDP(l)
	require.NoError(t, err)

	var sendErrs []error
	closed := 0
	ran := false
	done := make(chan struct{})
	go func() {
		defer close(done)
		u.Send([]byte("x"), loopback(9), func(err error) { sendErrs = append(sendErrs, err) })
		other.Close(func() { closed++ })
		assert.NoError(t, l.Submit(func() { ran = true }))
	}()
	<-done

	require.NoError(t, l.Close())
	require.Len(t, sendErrs, 1)
	assert.ErrorIs(t, sendErrs[0], ErrNotLoopThread)
	assert.Equal(t, 1, closed)
	assert.True(t, ran)
	assert.ErrorIs(t, l.Submit(func() {}), ErrLoopClosed)
}

func TestLoop_CloseDrainsRequests(t *testing.T) {
	l, err := New()
	require.NoError(t, err)
	var got error
	finished := false
	w, err := NewWork(l, func() { time.Sleep(20 * time.Millisecond) }, func(err error) {
		finished, got = true, err
	})
	require.NoError(t, err)
	w.Execute()
	require.NoError(t, l.Close())
	assert.True(t, finished)
	assert.NoError(t, got)
}

func TestRunMode_String(t *testing.T) {
	assert.Equal(t, RunDefault.String(), "default")
	assert.Equal(t, RunOnce.String(), "once")
	assert.Equal(t, RunNoWait.String(), "nowait")
}
