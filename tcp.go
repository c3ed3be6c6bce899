package uvloop

import (
	"time"

	"github.com/joeycumines/go-uvloop/internal/uvcore"
	"golang.org/x/sys/unix"
)

// TCPFlags modify TCP.Bind.
type TCPFlags uint

// TCPIPv6Only disables dual-stack support on an IPv6 bind.
const TCPIPv6Only TCPFlags = TCPFlags(uvcore.TCPIPv6Only)

// TCP is a TCP stream or listener.
type TCP struct {
	Stream
	tcp       uvcore.TCP
	noDelay   bool
	keepAlive bool
}

var _ Streamer = (*TCP)(nil)

// NewTCP creates a TCP handle. The socket is created by Bind, Listen or
// Connect, or adopted by Accept.
func NewTCP(l *Loop) (*TCP, error) {
	if err := l.checkThread(); err != nil {
		return nil, err
	}
	t := new(TCP)
	if rc := t.tcp.Init(l.core); rc != uvcore.OK {
		return nil, codeError(rc)
	}
	t.Stream.init(l, &t.tcp.Stream, t)
	return t, nil
}

// Open adopts an existing socket descriptor.
func (t *TCP) Open(fd int) error {
	if err := t.check(); err != nil {
		return err
	}
	return codeError(t.tcp.Open(fd))
}

// Bind binds the socket to addr.
func (t *TCP) Bind(addr Address, flags ...TCPFlags) error {
	if err := t.check(); err != nil {
		return err
	}
	sa, err := addr.sockaddr()
	if err != nil {
		return err
	}
	var f TCPFlags
	for _, v := range flags {
		f |= v
	}
	return codeError(t.tcp.Bind(sa, uint(f)))
}

// Listen starts accepting connections. onConnection is called once per
// incoming connection, which should be taken with Accept. A backlog of zero
// selects the loop's default (128).
func (t *TCP) Listen(backlog int, onConnection func(error)) {
	t.listen(backlog, onConnection, t.tcp.Listen)
}

// Connect connects to addr.
func (t *TCP) Connect(addr Address, onConnect func(error)) {
	if onConnect == nil {
		onConnect = nopErr
	}
	if !t.begin(onConnect) {
		return
	}
	sa, err := addr.sockaddr()
	if err != nil {
		t.loop.fail(err, onConnect)
		return
	}
	t.connect(onConnect, func(req *uvcore.ConnectReq) int {
		return t.tcp.Connect(req, sa, connectTrampoline)
	})
}

// SetNoDelay toggles Nagle's algorithm off (true) or on.
func (t *TCP) SetNoDelay(enable bool) error {
	if err := t.check(); err != nil {
		return err
	}
	if err := codeError(t.tcp.NoDelay(enable)); err != nil {
		return err
	}
	t.noDelay = enable
	return nil
}

// SetKeepAlive toggles TCP keep-alive. delay is the idle time before the
// first probe, in whole seconds of at least one when enabling.
func (t *TCP) SetKeepAlive(enable bool, delay time.Duration) error {
	if err := t.check(); err != nil {
		return err
	}
	secs := int(delay / time.Second)
	if enable && secs < 1 {
		return ArgumentError("keep-alive delay %v is below one second", delay)
	}
	if err := codeError(t.tcp.KeepAlive(enable, secs)); err != nil {
		return err
	}
	t.keepAlive = enable
	return nil
}

// NoDelayed reports whether the last SetNoDelay enabled TCP_NODELAY.
func (t *TCP) NoDelayed() bool { return t.noDelay }

// KeepAlived reports whether the last SetKeepAlive enabled keep-alive.
func (t *TCP) KeepAlived() bool { return t.keepAlive }

// LocalAddress returns the address the socket is bound to.
func (t *TCP) LocalAddress() (Address, error) {
	if err := t.check(); err != nil {
		return Address{}, err
	}
	return sockAddress(t.tcp.Getsockname())
}

// RemoteAddress returns the address of the peer.
func (t *TCP) RemoteAddress() (Address, error) {
	if err := t.check(); err != nil {
		return Address{}, err
	}
	return sockAddress(t.tcp.Getpeername())
}

func sockAddress(sa unix.Sockaddr, rc int) (Address, error) {
	if err := codeError(rc); err != nil {
		return Address{}, err
	}
	a, ok := addressOf(sa)
	if !ok {
		return Address{}, codeError(uvcore.EAFNOSUPPORT)
	}
	return a, nil
}
