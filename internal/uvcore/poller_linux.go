//go:build linux

package uvcore

import (
	"errors"

	"golang.org/x/sys/unix"
)

// MaxFDLimit bounds the fd-indexed callback table.
const MaxFDLimit = 100000000

const initialFDs = 1024

// IOEvents represents the type of I/O events to monitor.
type IOEvents uint32

const (
	// EventRead indicates the file descriptor is ready for reading.
	EventRead IOEvents = 1 << iota
	// EventWrite indicates the file descriptor is ready for writing.
	EventWrite
	// EventError indicates an error condition on the file descriptor.
	EventError
	// EventHangup indicates the peer closed its end of the connection.
	EventHangup
)

var (
	errFDOutOfRange    = errors.New("uvcore: fd out of range")
	errFDNotRegistered = errors.New("uvcore: fd not registered")
	errPollerClosed    = errors.New("uvcore: poller closed")
)

type ioCallback func(IOEvents)

type fdInfo struct {
	callback ioCallback
	events   IOEvents
	active   bool
}

// poller is an epoll set with an fd-indexed callback table. It is only ever
// touched by the loop goroutine, so it carries no locks.
type poller struct {
	eventBuf [256]unix.EpollEvent
	fds      []fdInfo
	epfd     int
	closed   bool
}

func (p *poller) init() error {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return err
	}
	p.epfd = epfd
	p.fds = make([]fdInfo, initialFDs)
	return nil
}

func (p *poller) close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.epfd)
}

// watch sets the interest set for fd, registering, modifying or removing it
// as required. An empty event set removes the fd.
func (p *poller) watch(fd int, events IOEvents, cb ioCallback) error {
	if p.closed {
		return errPollerClosed
	}
	if fd < 0 || fd >= MaxFDLimit {
		return errFDOutOfRange
	}
	if fd >= len(p.fds) {
		size := fd*2 + 1
		if size > MaxFDLimit {
			size = MaxFDLimit
		}
		fds := make([]fdInfo, size)
		copy(fds, p.fds)
		p.fds = fds
	}

	info := &p.fds[fd]
	switch {
	case events == 0 && !info.active:
		return nil
	case events == 0:
		*info = fdInfo{}
		return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	case info.active:
		info.callback = cb
		if info.events == events {
			return nil
		}
		info.events = events
		ev := unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
		return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	default:
		ev := unix.EpollEvent{Events: eventsToEpoll(events), Fd: int32(fd)}
		if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
			return err
		}
		*info = fdInfo{callback: cb, events: events, active: true}
		return nil
	}
}

// forget drops fd from the table and the epoll set, ignoring errors. It must
// be called before the fd is closed.
func (p *poller) forget(fd int) {
	if fd < 0 || fd >= len(p.fds) || !p.fds[fd].active {
		return
	}
	p.fds[fd] = fdInfo{}
	if !p.closed {
		_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	}
}

func (p *poller) interest(fd int) IOEvents {
	if fd < 0 || fd >= len(p.fds) || !p.fds[fd].active {
		return 0
	}
	return p.fds[fd].events
}

// poll waits up to timeoutMs (-1 blocks) and dispatches ready callbacks.
func (p *poller) poll(timeoutMs int) (int, error) {
	if p.closed {
		return 0, errPollerClosed
	}
	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		if fd < 0 || fd >= len(p.fds) {
			continue
		}
		// re-read each time, an earlier callback may have dropped this fd
		info := p.fds[fd]
		if info.active && info.callback != nil {
			info.callback(epollToEvents(p.eventBuf[i].Events))
		}
	}
	return n, nil
}

func eventsToEpoll(events IOEvents) uint32 {
	var epollEvents uint32
	if events&EventRead != 0 {
		epollEvents |= unix.EPOLLIN
	}
	if events&EventWrite != 0 {
		epollEvents |= unix.EPOLLOUT
	}
	return epollEvents
}

func epollToEvents(epollEvents uint32) IOEvents {
	var events IOEvents
	if epollEvents&unix.EPOLLIN != 0 {
		events |= EventRead
	}
	if epollEvents&unix.EPOLLOUT != 0 {
		events |= EventWrite
	}
	if epollEvents&unix.EPOLLERR != 0 {
		events |= EventError
	}
	if epollEvents&unix.EPOLLHUP != 0 {
		events |= EventHangup
	}
	return events
}
