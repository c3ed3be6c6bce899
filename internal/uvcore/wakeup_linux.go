//go:build linux

package uvcore

import (
	"golang.org/x/sys/unix"
)

// createWakeFd creates the eventfd used to interrupt a blocked poll.
func createWakeFd() (int, error) {
	return unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
}

func signalWakeFd(fd int) {
	var one = [8]byte{1}
	// EAGAIN means the counter is already non-zero, which is enough
	_, _ = unix.Write(fd, one[:])
}

func drainWakeFd(fd int) {
	var buf [8]byte
	for {
		if _, err := unix.Read(fd, buf[:]); err != nil {
			return
		}
	}
}
