package uvcore

import (
	"net"
	"strconv"

	"github.com/eapache/queue"
	"golang.org/x/sys/unix"
)

// UDP bind and receive flags.
const (
	// UDPIPv6Only disables dual-stack support on an IPv6 bind.
	UDPIPv6Only uint = 1
	// UDPPartial is set on receive when the datagram was truncated.
	UDPPartial uint = 2
	// UDPReuseAddr sets SO_REUSEADDR before binding.
	UDPReuseAddr uint = 4
)

// Membership selects SetMembership's operation.
type Membership int

const (
	LeaveGroup Membership = iota
	JoinGroup
)

type (
	// UDPSendCb reports the outcome of a send.
	UDPSendCb func(req *UDPSendReq, status int)
	// UDPRecvCb receives a datagram of nread bytes in buf from addr. As
	// with ReadCb, nread == 0 with a nil addr means nothing was read.
	UDPRecvCb func(u *UDP, nread int, buf []byte, addr unix.Sockaddr, flags uint)
)

// UDPSendReq is a datagram send request.
type UDPSendReq struct {
	Req
	handle *UDP
	cb     UDPSendCb
	buf    []byte
	addr   unix.Sockaddr
	status int
}

// Handle returns the sending socket.
func (r *UDPSendReq) Handle() *UDP { return r.handle }

// UDP is a datagram socket, created lazily by Bind, Send or RecvStart.
type UDP struct {
	Handle
	allocCb     AllocCb
	recvCb      UDPRecvCb
	sendQueue   *queue.Queue
	completed   []*UDPSendReq
	queuedBytes int
	fd          int
	family      int
	bound       bool
	reading     bool
	feedQueued  bool
}

// Init initializes the handle on l.
func (u *UDP) Init(l *Loop) int {
	u.Handle.init(l, UDPHandle)
	u.allocCb, u.recvCb = nil, nil
	u.sendQueue = queue.New()
	u.completed = nil
	u.queuedBytes = 0
	u.fd, u.family = -1, 0
	u.bound, u.reading, u.feedQueued = false, false, false
	u.stopHook = u.teardown
	u.finishHook = u.destroy
	return OK
}

// Fileno returns the underlying descriptor, -1 if there is none.
func (u *UDP) Fileno() int { return u.fd }

// Bound reports whether Bind succeeded.
func (u *UDP) Bound() bool { return u.bound }

// SendQueueSize returns the number of bytes waiting to be sent.
func (u *UDP) SendQueueSize() int { return u.queuedBytes }

// SendQueueCount returns the number of queued send requests.
func (u *UDP) SendQueueCount() int { return u.sendQueue.Length() }

func (u *UDP) socket(family int) int {
	if u.fd >= 0 {
		if family != u.family {
			return EINVAL
		}
		return OK
	}
	fd, err := unix.Socket(family, unix.SOCK_DGRAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return status(err)
	}
	u.fd, u.family = fd, family
	return OK
}

// Bind binds the socket to sa.
func (u *UDP) Bind(sa unix.Sockaddr, flags uint) int {
	if u.IsClosing() || u.bound {
		return EINVAL
	}
	family, ok := sockaddrFamily(sa)
	if !ok || family == unix.AF_UNIX {
		return EINVAL
	}
	if flags&UDPIPv6Only != 0 && family != unix.AF_INET6 {
		return EINVAL
	}
	if rc := u.socket(family); rc != OK {
		return rc
	}
	if flags&UDPReuseAddr != 0 {
		if err := unix.SetsockoptInt(u.fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			return status(err)
		}
	}
	if flags&UDPIPv6Only != 0 {
		if err := unix.SetsockoptInt(u.fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
			return status(err)
		}
	}
	if err := unix.Bind(u.fd, sa); err != nil {
		return status(err)
	}
	u.bound = true
	return OK
}

// autobind binds an unbound socket to the wildcard address of family.
func (u *UDP) autobind(family int) int {
	if u.bound {
		return OK
	}
	var sa unix.Sockaddr = &unix.SockaddrInet4{}
	if family == unix.AF_INET6 {
		sa = &unix.SockaddrInet6{}
	}
	return u.Bind(sa, 0)
}

// Send queues buf for sending to addr.
func (u *UDP) Send(req *UDPSendReq, buf []byte, addr unix.Sockaddr, cb UDPSendCb) int {
	if req == nil || u.IsClosing() {
		return EINVAL
	}
	if req.active {
		return EBUSY
	}
	if addr == nil {
		return EDESTADDRREQ
	}
	family, ok := sockaddrFamily(addr)
	if !ok || family == unix.AF_UNIX {
		return EINVAL
	}
	if rc := u.autobind(family); rc != OK {
		return rc
	}
	req.handle, req.cb, req.buf, req.addr, req.status = u, cb, buf, addr, OK
	req.begin(u.loop)
	u.queuedBytes += len(buf)
	u.sendQueue.Add(req)
	if u.sendQueue.Length() == 1 {
		u.sendLoop()
	}
	return u.updatePoll()
}

// RecvStart starts receiving datagrams, binding to the IPv4 wildcard
// address first if needed.
func (u *UDP) RecvStart(alloc AllocCb, cb UDPRecvCb) int {
	if alloc == nil || cb == nil || u.IsClosing() {
		return EINVAL
	}
	if u.reading {
		return EALREADY
	}
	family := u.family
	if family == 0 {
		family = unix.AF_INET
	}
	if rc := u.autobind(family); rc != OK {
		return rc
	}
	u.allocCb, u.recvCb = alloc, cb
	u.reading = true
	u.start()
	return u.updatePoll()
}

// RecvStop stops receiving. Idempotent.
func (u *UDP) RecvStop() int {
	if !u.reading {
		return OK
	}
	u.reading = false
	u.stop()
	return u.updatePoll()
}

func (u *UDP) updatePoll() int {
	if u.fd < 0 {
		return OK
	}
	var events IOEvents
	if u.reading {
		events |= EventRead
	}
	if u.sendQueue.Length() > 0 {
		events |= EventWrite
	}
	return status(u.loop.poller.watch(u.fd, events, u.onIO))
}

func (u *UDP) onIO(events IOEvents) {
	if events&(EventRead|EventError) != 0 && u.reading {
		u.recvLoop()
	}
	if u.fd >= 0 && events&(EventWrite|EventError) != 0 && u.sendQueue.Length() > 0 {
		u.sendLoop()
		_ = u.updatePoll()
	}
}

func (u *UDP) recvLoop() {
	for count := readBurst; count > 0 && u.fd >= 0 && u.reading; count-- {
		buf := u.allocCb(&u.Handle, SuggestedReadSize)
		if len(buf) == 0 {
			_ = u.RecvStop()
			u.recvCb(u, ENOBUFS, buf, nil, 0)
			return
		}
		n, _, rflags, from, err := unix.Recvmsg(u.fd, buf, nil, 0)
		if err == unix.EINTR {
			count++
			continue
		}
		if err != nil {
			if retryable(err) {
				u.recvCb(u, 0, buf, nil, 0)
			} else {
				u.recvCb(u, status(err), buf, nil, 0)
			}
			return
		}
		var flags uint
		if rflags&unix.MSG_TRUNC != 0 {
			flags |= UDPPartial
		}
		u.recvCb(u, n, buf, from, flags)
	}
}

func (u *UDP) sendLoop() {
	for u.fd >= 0 && u.sendQueue.Length() > 0 {
		req := u.sendQueue.Peek().(*UDPSendReq)
		err := unix.Sendto(u.fd, req.buf, 0, req.addr)
		if err == unix.EINTR {
			continue
		}
		if err != nil && retryable(err) {
			return
		}
		req.status = status(err)
		u.sendQueue.Remove()
		u.queuedBytes -= len(req.buf)
		u.completed = append(u.completed, req)
		u.feed()
	}
}

func (u *UDP) feed() {
	if u.feedQueued {
		return
	}
	u.feedQueued = true
	u.loop.queuePending(func() {
		u.feedQueued = false
		u.runSendCallbacks()
	})
}

func (u *UDP) runSendCallbacks() {
	for len(u.completed) > 0 {
		req := u.completed[0]
		u.completed[0] = nil
		u.completed = u.completed[1:]
		req.end(u.loop)
		if req.cb != nil {
			req.cb(req, req.status)
		}
	}
	u.completed = nil
}

func (u *UDP) teardown() {
	u.reading = false
	if u.fd >= 0 {
		u.loop.poller.forget(u.fd)
		_ = unix.Close(u.fd)
		u.fd = -1
	}
}

func (u *UDP) destroy() {
	for u.sendQueue.Length() > 0 {
		req := u.sendQueue.Remove().(*UDPSendReq)
		req.status = ECANCELED
		u.queuedBytes -= len(req.buf)
		u.completed = append(u.completed, req)
	}
	u.runSendCallbacks()
}

// Getsockname returns the local address.
func (u *UDP) Getsockname() (unix.Sockaddr, int) {
	if u.fd < 0 {
		return nil, EBADF
	}
	sa, err := unix.Getsockname(u.fd)
	return sa, status(err)
}

// SetMembership joins or leaves the multicast group mcastAddr on the
// interface whose address is ifaceAddr, or the default interface if empty.
func (u *UDP) SetMembership(mcastAddr, ifaceAddr string, m Membership) int {
	if u.fd < 0 {
		return EBADF
	}
	group := net.ParseIP(mcastAddr)
	if group == nil || !group.IsMulticast() {
		return EINVAL
	}
	if v4 := group.To4(); v4 != nil {
		mreq := &unix.IPMreq{}
		copy(mreq.Multiaddr[:], v4)
		if ifaceAddr != "" {
			iface := net.ParseIP(ifaceAddr).To4()
			if iface == nil {
				return EINVAL
			}
			copy(mreq.Interface[:], iface)
		}
		opt := unix.IP_DROP_MEMBERSHIP
		if m == JoinGroup {
			opt = unix.IP_ADD_MEMBERSHIP
		}
		return status(unix.SetsockoptIPMreq(u.fd, unix.IPPROTO_IP, opt, mreq))
	}
	mreq := &unix.IPv6Mreq{}
	copy(mreq.Multiaddr[:], group.To16())
	if ifaceAddr != "" {
		idx, err := strconv.Atoi(ifaceAddr)
		if err != nil {
			return EINVAL
		}
		mreq.Interface = uint32(idx)
	}
	opt := unix.IPV6_DROP_MEMBERSHIP
	if m == JoinGroup {
		opt = unix.IPV6_ADD_MEMBERSHIP
	}
	return status(unix.SetsockoptIPv6Mreq(u.fd, unix.IPPROTO_IPV6, opt, mreq))
}

// SetMulticastLoop toggles local delivery of sent multicast datagrams.
func (u *UDP) SetMulticastLoop(on bool) int {
	if u.fd < 0 {
		return EBADF
	}
	v := boolInt(on)
	if u.family == unix.AF_INET6 {
		return status(unix.SetsockoptInt(u.fd, unix.IPPROTO_IPV6, unix.IPV6_MULTICAST_LOOP, v))
	}
	return status(unix.SetsockoptInt(u.fd, unix.IPPROTO_IP, unix.IP_MULTICAST_LOOP, v))
}

// SetMulticastTTL sets the multicast hop limit, 1 through 255.
func (u *UDP) SetMulticastTTL(ttl int) int {
	if u.fd < 0 {
		return EBADF
	}
	if ttl < 1 || ttl > 255 {
		return EINVAL
	}
	if u.family == unix.AF_INET6 {
		return status(unix.SetsockoptInt(u.fd, unix.IPPROTO_IPV6, unix.IPV6_MULTICAST_HOPS, ttl))
	}
	return status(unix.SetsockoptInt(u.fd, unix.IPPROTO_IP, unix.IP_MULTICAST_TTL, ttl))
}

// SetMulticastInterface selects the outgoing interface by address, or by
// index for IPv6.
func (u *UDP) SetMulticastInterface(ifaceAddr string) int {
	if u.fd < 0 {
		return EBADF
	}
	if u.family == unix.AF_INET6 {
		idx := 0
		if ifaceAddr != "" {
			var err error
			if idx, err = strconv.Atoi(ifaceAddr); err != nil {
				return EINVAL
			}
		}
		return status(unix.SetsockoptInt(u.fd, unix.IPPROTO_IPV6, unix.IPV6_MULTICAST_IF, idx))
	}
	var addr [4]byte
	if ifaceAddr != "" {
		ip := net.ParseIP(ifaceAddr).To4()
		if ip == nil {
			return EINVAL
		}
		copy(addr[:], ip)
	}
	return status(unix.SetsockoptInet4Addr(u.fd, unix.IPPROTO_IP, unix.IP_MULTICAST_IF, addr))
}

// SetBroadcast toggles SO_BROADCAST.
func (u *UDP) SetBroadcast(on bool) int {
	if u.fd < 0 {
		return EBADF
	}
	return status(unix.SetsockoptInt(u.fd, unix.SOL_SOCKET, unix.SO_BROADCAST, boolInt(on)))
}

// SetTTL sets the unicast hop limit, 1 through 255.
func (u *UDP) SetTTL(ttl int) int {
	if u.fd < 0 {
		return EBADF
	}
	if ttl < 1 || ttl > 255 {
		return EINVAL
	}
	if u.family == unix.AF_INET6 {
		return status(unix.SetsockoptInt(u.fd, unix.IPPROTO_IPV6, unix.IPV6_UNICAST_HOPS, ttl))
	}
	return status(unix.SetsockoptInt(u.fd, unix.IPPROTO_IP, unix.IP_TTL, ttl))
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
