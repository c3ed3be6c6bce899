package uvloop

import (
	"github.com/joeycumines/go-uvloop/internal/uvcore"
	"golang.org/x/sys/unix"
)

// UDPFlags modify UDP.Bind.
type UDPFlags uint

const (
	// UDPIPv6Only disables dual-stack support on an IPv6 bind.
	UDPIPv6Only UDPFlags = UDPFlags(uvcore.UDPIPv6Only)
	// UDPReuseAddr lets several sockets bind the same address.
	UDPReuseAddr UDPFlags = UDPFlags(uvcore.UDPReuseAddr)
)

// Membership selects UDP.SetMembership's operation.
type Membership int

const (
	LeaveGroup Membership = Membership(uvcore.LeaveGroup)
	JoinGroup  Membership = Membership(uvcore.JoinGroup)
)

// UDP is a datagram socket.
type UDP struct {
	handleBase
	udp       uvcore.UDP
	allocSize func(suggested int) int
	recvTok   uintptr
}

var _ Handle = (*UDP)(nil)

// NewUDP creates a UDP handle. The socket is created by Bind or the first
// Send.
func NewUDP(l *Loop) (*UDP, error) {
	if err := l.checkThread(); err != nil {
		return nil, err
	}
	u := new(UDP)
	if rc := u.udp.Init(l.core); rc != uvcore.OK {
		return nil, codeError(rc)
	}
	u.handleBase.init(l, &u.udp.Handle, u, u.onClosing)
	return u, nil
}

// Bind binds the socket to addr.
func (u *UDP) Bind(addr Address, flags ...UDPFlags) error {
	if err := u.check(); err != nil {
		return err
	}
	sa, err := addr.sockaddr()
	if err != nil {
		return err
	}
	var f UDPFlags
	for _, v := range flags {
		f |= v
	}
	return codeError(u.udp.Bind(sa, uint(f)))
}

// Bound reports whether the socket has a local address.
func (u *UDP) Bound() bool { return u.udp.Bound() }

// Fd returns the underlying descriptor, or -1.
func (u *UDP) Fd() int { return u.udp.Fileno() }

// SendQueueSize returns the number of bytes waiting to be sent.
func (u *UDP) SendQueueSize() int { return u.udp.SendQueueSize() }

// SetAllocSize sets the function sizing receive buffers, see
// Stream.SetAllocSize.
func (u *UDP) SetAllocSize(fn func(suggested int) int) { u.allocSize = fn }

func (u *UDP) allocLen(suggested int) int {
	if u.allocSize == nil {
		return suggested
	}
	return u.allocSize(suggested)
}

// Send sends data as one datagram to addr. An unbound socket is bound to the
// wildcard address first. data must not be modified until onSend runs.
func (u *UDP) Send(data []byte, addr Address, onSend func(error)) {
	if onSend == nil {
		onSend = nopErr
	}
	if !u.begin(onSend) {
		return
	}
	sa, err := addr.sockaddr()
	if err != nil {
		u.loop.fail(err, onSend)
		return
	}
	req := uvcore.NewUDPSendReq()
	var g reqGuard
	g.init(u.loop, &req.Req, req.Free, onSend)
	defer g.release()
	if rc := u.udp.Send(req, data, sa, udpSendTrampoline); rc != uvcore.OK {
		u.loop.fail(codeError(rc), onSend)
		return
	}
	g.disarm()
}

// Recv starts receiving. onRecv is called per datagram with the payload,
// valid only during the call, and the sender's address. The socket must be
// bound.
func (u *UDP) Recv(onRecv func(Buffer, Address, error)) {
	if onRecv == nil {
		return
	}
	fail := func(err error) { onRecv(Buffer{}, Address{}, err) }
	if !u.begin(fail) {
		return
	}
	if !u.udp.Bound() {
		u.loop.fail(ErrBindRequired, fail)
		return
	}
	tok := u.loop.reg.attach(onRecv)
	rc := u.udp.RecvStart(allocTrampoline, udpRecvTrampoline)
	if rc == uvcore.EALREADY {
		// replacing the continuation of a running receive
		rc = uvcore.OK
	}
	if rc != uvcore.OK {
		u.loop.reg.drop(tok)
		u.loop.fail(codeError(rc), fail)
		return
	}
	u.loop.reg.drop(u.recvTok)
	u.recvTok = tok
}

// RecvStop stops receiving. The receive continuation is discarded.
func (u *UDP) RecvStop() error {
	if err := u.check(); err != nil {
		return err
	}
	u.loop.reg.drop(u.recvTok)
	u.recvTok = 0
	return codeError(u.udp.RecvStop())
}

// LocalAddress returns the address the socket is bound to.
func (u *UDP) LocalAddress() (Address, error) {
	if err := u.checkBound(); err != nil {
		return Address{}, err
	}
	return sockAddress(u.udp.Getsockname())
}

// SetMembership joins or leaves the multicast group on the interface with
// address iface, or the default interface if iface is empty.
func (u *UDP) SetMembership(group, iface string, m Membership) error {
	if err := u.checkBound(); err != nil {
		return err
	}
	return codeError(u.udp.SetMembership(group, iface, uvcore.Membership(m)))
}

// SetMulticastInterface selects the interface multicast datagrams leave by.
func (u *UDP) SetMulticastInterface(iface string) error {
	if err := u.checkBound(); err != nil {
		return err
	}
	return codeError(u.udp.SetMulticastInterface(iface))
}

// SetMulticastLoop toggles local delivery of sent multicast datagrams.
func (u *UDP) SetMulticastLoop(on bool) error {
	if err := u.checkBound(); err != nil {
		return err
	}
	return codeError(u.udp.SetMulticastLoop(on))
}

// SetMulticastTTL sets the multicast time to live, 1 through 255.
func (u *UDP) SetMulticastTTL(ttl int) error {
	if err := u.checkBound(); err != nil {
		return err
	}
	if ttl < 1 || ttl > 255 {
		return ArgumentError("multicast TTL %d out of range [1, 255]", ttl)
	}
	return codeError(u.udp.SetMulticastTTL(ttl))
}

// SetBroadcast toggles sending to broadcast addresses.
func (u *UDP) SetBroadcast(on bool) error {
	if err := u.checkBound(); err != nil {
		return err
	}
	return codeError(u.udp.SetBroadcast(on))
}

// SetTTL sets the unicast time to live, 1 through 255.
func (u *UDP) SetTTL(ttl int) error {
	if err := u.checkBound(); err != nil {
		return err
	}
	if ttl < 1 || ttl > 255 {
		return ArgumentError("TTL %d out of range [1, 255]", ttl)
	}
	return codeError(u.udp.SetTTL(ttl))
}

func (u *UDP) checkBound() error {
	if err := u.check(); err != nil {
		return err
	}
	if !u.udp.Bound() {
		return ErrBindRequired
	}
	return nil
}

func (u *UDP) onClosing() {
	if u.recvTok == 0 {
		return
	}
	v, ok := u.loop.reg.redeem(u.recvTok)
	u.recvTok = 0
	if ok {
		cont := v.(func(Buffer, Address, error))
		u.loop.invoke(func() { cont(Buffer{}, Address{}, ErrClosedHandle) })
	}
}

func udpRecvTrampoline(cu *uvcore.UDP, nread int, buf []byte, from unix.Sockaddr, flags uint) {
	l, owner := ownerOf(&cu.Handle)
	if l == nil {
		return
	}
	defer l.buffers.put(buf)
	u, ok := owner.(*UDP)
	if !ok || u.recvTok == 0 || (nread == 0 && from == nil) {
		return
	}
	if nread == uvcore.ENOBUFS {
		// the reactor stopped receiving, this is the last call
		tok := u.recvTok
		u.recvTok = 0
		v, ok := l.reg.redeem(tok)
		if !ok {
			return
		}
		cont := v.(func(Buffer, Address, error))
		l.invoke(func() { cont(Buffer{}, Address{}, codeError(uvcore.ENOBUFS)) })
		return
	}
	// other receive errors do not stop the socket, the continuation stays
	// registered
	tok, v, ok := l.reg.reattach(u.recvTok)
	u.recvTok = tok
	if !ok {
		return
	}
	cont := v.(func(Buffer, Address, error))
	if nread < 0 {
		err := codeError(nread)
		l.invoke(func() { cont(Buffer{}, Address{}, err) })
		return
	}
	if flags&uvcore.UDPPartial != 0 {
		l.diag.debug().Int("bytes", nread).Log("uvloop: datagram truncated")
	}
	addr, _ := addressOf(from)
	data := Buffer{b: buf[:nread]}
	l.invoke(func() { cont(data, addr, nil) })
}

func udpSendTrampoline(req *uvcore.UDPSendReq, status int) {
	completeErr(req.Handle().Loop(), req.Data, req.Free, status)
}
