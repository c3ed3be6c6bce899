package uvcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	l, err := NewLoop(Config{})
	require.NoError(t, err)
	t.Cleanup(func() {
		// best effort, a failing test may leave handles open
		_ = l.Close()
	})
	return l
}

// runFor runs l in default mode, failing the test if it is still running
// after d.
func runFor(t *testing.T, l *Loop, d time.Duration) {
	t.Helper()
	var watchdog Timer
	watchdog.Init(l)
	watchdog.Unref()
	watchdog.Start(func(*Timer) {
		t.Errorf("loop still running after %s", d)
		l.Stop()
	}, uint64(d/time.Millisecond), 0)
	l.Run(RunDefault)
	watchdog.Close(nil)
	l.Run(RunNoWait)
}

func closeAll(l *Loop, handles ...*Handle) {
	for _, h := range handles {
		h.Close(nil)
	}
	l.Run(RunNoWait)
}

func loopback4(port int) *unix.SockaddrInet4 {
	return &unix.SockaddrInet4{Port: port, Addr: [4]byte{127, 0, 0, 1}}
}

func portOf(t *testing.T, sa unix.Sockaddr) int {
	t.Helper()
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return v.Port
	case *unix.SockaddrInet6:
		return v.Port
	}
	t.Fatalf("unexpected sockaddr %T", sa)
	return 0
}

func allocFixed(size int) AllocCb {
	return func(_ *Handle, suggested int) []byte {
		if size > 0 {
			return make([]byte, size)
		}
		return make([]byte, suggested)
	}
}
