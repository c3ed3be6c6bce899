package uvcore

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSignal_Delivery(t *testing.T) {
	l := newTestLoop(t)
	var a, b Signal
	a.Init(l)
	b.Init(l)
	var got []string
	require.Equal(t, OK, a.Start(func(h *Signal, signum int) {
		got = append(got, "a")
		assert.Equal(t, int(unix.SIGUSR1), signum)
	}, int(unix.SIGUSR1)))
	require.Equal(t, OK, b.Start(func(h *Signal, signum int) {
		got = append(got, "b")
		a.Close(nil)
		b.Close(nil)
	}, int(unix.SIGUSR1)))
	assert.Equal(t, int(unix.SIGUSR1), a.Signum())

	require.NoError(t, unix.Kill(os.Getpid(), unix.SIGUSR1))
	runFor(t, l, 5*time.Second)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestSignal_InvalidArguments(t *testing.T) {
	l := newTestLoop(t)
	var s Signal
	s.Init(l)
	assert.Equal(t, EINVAL, s.Start(nil, int(unix.SIGUSR2)))
	assert.Equal(t, EINVAL, s.Start(func(*Signal, int) {}, 0))
	assert.Equal(t, OK, s.Stop())
	closeAll(l, &s.Handle)
}
