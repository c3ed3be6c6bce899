package uvcore

import (
	"golang.org/x/sys/unix"
)

// Pipe is a stream over a Unix domain socket or an adopted descriptor. An
// IPC pipe can additionally pass descriptors with Write2.
type Pipe struct {
	Stream
	name string
}

// Init initializes the handle on l.
func (p *Pipe) Init(l *Loop, ipc bool) int {
	p.Stream.init(l, NamedPipeHandle)
	p.ipc = ipc
	p.name = ""
	return OK
}

// IPC reports whether the pipe passes descriptors.
func (p *Pipe) IPC() bool { return p.ipc }

// Name returns the path the pipe was bound or connected to.
func (p *Pipe) Name() string { return p.name }

// Open adopts fd, deriving readability and writability from its access
// mode.
func (p *Pipe) Open(fd int) int {
	if p.IsClosing() {
		return EINVAL
	}
	mode, err := unix.FcntlInt(uintptr(fd), unix.F_GETFL, 0)
	if err != nil {
		return status(err)
	}
	var flags streamFlags
	switch mode & unix.O_ACCMODE {
	case unix.O_RDONLY:
		flags = sfReadable
	case unix.O_WRONLY:
		flags = sfWritable
	default:
		flags = sfReadable | sfWritable
	}
	return p.open(fd, flags)
}

// Bind creates the socket and binds it to name.
func (p *Pipe) Bind(name string) int {
	if p.IsClosing() || name == "" {
		return EINVAL
	}
	if p.fd >= 0 {
		return EINVAL
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return status(err)
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: name}); err != nil {
		_ = unix.Close(fd)
		return status(err)
	}
	if rc := p.open(fd, 0); rc != OK {
		_ = unix.Close(fd)
		return rc
	}
	p.name = name
	return OK
}

// Listen starts accepting connections on a bound pipe.
func (p *Pipe) Listen(backlog int, cb ConnectionCb) int {
	return p.listen(backlog, cb)
}

// Connect connects to name. Every failure after argument checking is
// reported through cb.
func (p *Pipe) Connect(req *ConnectReq, name string, cb ConnectCb) int {
	if req == nil || name == "" || p.IsClosing() {
		return EINVAL
	}
	if req.active {
		return EBUSY
	}
	if p.fd >= 0 {
		return EISCONN
	}
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return status(err)
	}
	if rc := p.open(fd, 0); rc != OK {
		_ = unix.Close(fd)
		return rc
	}
	p.name = name
	return p.connect(req, &unix.SockaddrUnix{Name: name}, cb, true)
}

// PendingCount returns the number of received descriptors waiting for
// Accept.
func (p *Pipe) PendingCount() int { return len(p.pendingFds) }

// PendingType classifies the next received descriptor.
func (p *Pipe) PendingType() HandleType {
	if len(p.pendingFds) == 0 {
		return UnknownHandle
	}
	return guessHandle(p.pendingFds[0])
}

// Getsockname returns the local address.
func (p *Pipe) Getsockname() (unix.Sockaddr, int) {
	if p.fd < 0 {
		return nil, EBADF
	}
	sa, err := unix.Getsockname(p.fd)
	return sa, status(err)
}
