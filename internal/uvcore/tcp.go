package uvcore

import (
	"golang.org/x/sys/unix"
)

// TCPIPv6Only disables dual-stack support on an IPv6 bind.
const TCPIPv6Only uint = 1

// TCP is a TCP stream. The socket is created lazily by Bind, Connect or
// Listen, so options set before that are applied on creation.
type TCP struct {
	Stream
	keepaliveDelay int
	nodelay        bool
	keepalive      bool
}

// Init initializes the handle on l.
func (t *TCP) Init(l *Loop) int {
	t.Stream.init(l, TCPHandle)
	t.nodelay, t.keepalive, t.keepaliveDelay = false, false, 0
	t.applyOptions = t.apply
	return OK
}

// Open adopts an existing connected socket.
func (t *TCP) Open(fd int) int {
	if t.IsClosing() {
		return EINVAL
	}
	return t.open(fd, sfReadable|sfWritable)
}

func (t *TCP) socket(family int) int {
	if t.fd >= 0 {
		return OK
	}
	fd, err := unix.Socket(family, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return status(err)
	}
	if rc := t.open(fd, 0); rc != OK {
		_ = unix.Close(fd)
		return rc
	}
	return OK
}

func (t *TCP) apply(fd int) int {
	if t.nodelay {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil {
			return status(err)
		}
	}
	if t.keepalive {
		return setKeepalive(fd, true, t.keepaliveDelay)
	}
	return OK
}

// Bind binds the socket to sa, creating it if needed. SO_REUSEADDR is
// always set.
func (t *TCP) Bind(sa unix.Sockaddr, flags uint) int {
	if t.IsClosing() {
		return EINVAL
	}
	family, ok := sockaddrFamily(sa)
	if !ok {
		return EINVAL
	}
	if flags&TCPIPv6Only != 0 && family != unix.AF_INET6 {
		return EINVAL
	}
	if rc := t.socket(family); rc != OK {
		return rc
	}
	if err := unix.SetsockoptInt(t.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return status(err)
	}
	if family == unix.AF_INET6 {
		on := 0
		if flags&TCPIPv6Only != 0 {
			on = 1
		}
		if err := unix.SetsockoptInt(t.fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, on); err != nil {
			return status(err)
		}
	}
	return status(unix.Bind(t.fd, sa))
}

// Listen starts accepting connections, binding to an ephemeral IPv4 port if
// the socket is not bound yet.
func (t *TCP) Listen(backlog int, cb ConnectionCb) int {
	if t.fd < 0 {
		if rc := t.socket(unix.AF_INET); rc != OK {
			return rc
		}
	}
	return t.listen(backlog, cb)
}

// Connect starts connecting to sa. ECONNREFUSED is reported through cb.
func (t *TCP) Connect(req *ConnectReq, sa unix.Sockaddr, cb ConnectCb) int {
	if req == nil || t.IsClosing() {
		return EINVAL
	}
	if req.active {
		return EBUSY
	}
	family, ok := sockaddrFamily(sa)
	if !ok {
		return EINVAL
	}
	if t.sflags&(sfReadable|sfWritable) != 0 {
		return EISCONN
	}
	if rc := t.socket(family); rc != OK {
		return rc
	}
	return t.connect(req, sa, cb, false)
}

// NoDelay toggles Nagle's algorithm.
func (t *TCP) NoDelay(enable bool) int {
	if t.fd >= 0 {
		v := 0
		if enable {
			v = 1
		}
		if err := unix.SetsockoptInt(t.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v); err != nil {
			return status(err)
		}
	}
	t.nodelay = enable
	return OK
}

// KeepAlive toggles TCP keep-alive, delay being the idle time in seconds
// before the first probe. delay is ignored when disabling.
func (t *TCP) KeepAlive(enable bool, delay int) int {
	if enable && delay < 1 {
		return EINVAL
	}
	if t.fd >= 0 {
		if rc := setKeepalive(t.fd, enable, delay); rc != OK {
			return rc
		}
	}
	t.keepalive, t.keepaliveDelay = enable, delay
	return OK
}

func setKeepalive(fd int, enable bool, delay int) int {
	v := 0
	if enable {
		v = 1
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, v); err != nil {
		return status(err)
	}
	if !enable {
		return OK
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_KEEPIDLE, delay); err != nil {
		return status(err)
	}
	return OK
}

// Getsockname returns the local address.
func (t *TCP) Getsockname() (unix.Sockaddr, int) {
	if t.fd < 0 {
		return nil, EBADF
	}
	sa, err := unix.Getsockname(t.fd)
	return sa, status(err)
}

// Getpeername returns the remote address.
func (t *TCP) Getpeername() (unix.Sockaddr, int) {
	if t.fd < 0 {
		return nil, EBADF
	}
	sa, err := unix.Getpeername(t.fd)
	return sa, status(err)
}

func sockaddrFamily(sa unix.Sockaddr) (int, bool) {
	switch sa.(type) {
	case *unix.SockaddrInet4:
		return unix.AF_INET, true
	case *unix.SockaddrInet6:
		return unix.AF_INET6, true
	case *unix.SockaddrUnix:
		return unix.AF_UNIX, true
	}
	return 0, false
}
