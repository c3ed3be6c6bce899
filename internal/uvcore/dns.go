package uvcore

import (
	"context"
	"errors"
	"net"
	"time"

	"golang.org/x/sys/unix"
)

// ResolveTimeout bounds a single Getaddrinfo lookup.
var ResolveTimeout = 30 * time.Second

// AddrInfo is one resolved address.
type AddrInfo struct {
	Addr     unix.Sockaddr
	Family   int
	Socktype int
	Protocol int
}

// AddrInfoHints narrows Getaddrinfo's results. Zero fields mean any.
type AddrInfoHints struct {
	Family   int
	Socktype int
}

// GetaddrinfoCb receives the lookup outcome.
type GetaddrinfoCb func(req *GetaddrinfoReq, status int, res []AddrInfo)

// GetaddrinfoReq is a resolver request.
type GetaddrinfoReq struct {
	Req
	loop     *Loop
	cb       GetaddrinfoCb
	Node     string
	Service  string
	Addrinfo []AddrInfo
	hints    AddrInfoHints
	work     work
	status   int
}

// Loop returns the loop the request was issued on.
func (r *GetaddrinfoReq) Loop() *Loop { return r.loop }

// Cancel cancels a queued request, see WorkReq.Cancel.
func (r *GetaddrinfoReq) Cancel() int {
	if !r.active {
		return EINVAL
	}
	return r.loop.pool.cancel(&r.work)
}

// Getaddrinfo resolves node and service on the thread pool. An empty node
// resolves to the loopback addresses. With a nil cb the lookup runs
// synchronously and the results are left in req.Addrinfo.
func Getaddrinfo(l *Loop, req *GetaddrinfoReq, cb GetaddrinfoCb, node, service string, hints *AddrInfoHints) int {
	if req == nil || l == nil || l.closed || (node == "" && service == "") {
		return EINVAL
	}
	if req.active {
		return EBUSY
	}
	req.loop, req.cb = l, cb
	req.Node, req.Service = node, service
	req.Addrinfo, req.status = nil, OK
	req.hints = AddrInfoHints{}
	if hints != nil {
		req.hints = *hints
	}
	if cb == nil {
		req.Addrinfo, req.status = resolve(req.Node, req.Service, req.hints)
		return req.status
	}
	req.work.run = func() {
		req.Addrinfo, req.status = resolve(req.Node, req.Service, req.hints)
	}
	req.work.done = func(st int) {
		req.end(l)
		if st != OK {
			req.status, req.Addrinfo = st, nil
		}
		req.cb(req, req.status, req.Addrinfo)
	}
	req.begin(l)
	l.threadPool().submit(&req.work)
	return OK
}

func resolve(node, service string, hints AddrInfoHints) ([]AddrInfo, int) {
	ctx, cancel := context.WithTimeout(context.Background(), ResolveTimeout)
	defer cancel()

	socktype := hints.Socktype
	if socktype == 0 {
		socktype = unix.SOCK_STREAM
	}
	network, proto := "tcp", unix.IPPROTO_TCP
	if socktype == unix.SOCK_DGRAM {
		network, proto = "udp", unix.IPPROTO_UDP
	}

	port := 0
	if service != "" {
		p, err := net.DefaultResolver.LookupPort(ctx, network, service)
		if err != nil {
			return nil, EAI_SERVICE
		}
		port = p
	}

	var ips []net.IPAddr
	if node == "" {
		ips = []net.IPAddr{{IP: net.IPv4(127, 0, 0, 1)}, {IP: net.IPv6loopback}}
	} else {
		var err error
		if ips, err = net.DefaultResolver.LookupIPAddr(ctx, node); err != nil {
			return nil, resolverStatus(err)
		}
	}

	var res []AddrInfo
	for _, ip := range ips {
		var info AddrInfo
		if v4 := ip.IP.To4(); v4 != nil {
			sa := &unix.SockaddrInet4{Port: port}
			copy(sa.Addr[:], v4)
			info = AddrInfo{Addr: sa, Family: unix.AF_INET}
		} else {
			sa := &unix.SockaddrInet6{Port: port}
			copy(sa.Addr[:], ip.IP.To16())
			if ip.Zone != "" {
				if iface, err := net.InterfaceByName(ip.Zone); err == nil {
					sa.ZoneId = uint32(iface.Index)
				}
			}
			info = AddrInfo{Addr: sa, Family: unix.AF_INET6}
		}
		if hints.Family != 0 && hints.Family != unix.AF_UNSPEC && hints.Family != info.Family {
			continue
		}
		info.Socktype, info.Protocol = socktype, proto
		res = append(res, info)
	}
	if len(res) == 0 {
		return nil, EAI_NONAME
	}
	return res, OK
}

func resolverStatus(err error) int {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return EAI_NONAME
		case dnsErr.IsTemporary, dnsErr.IsTimeout:
			return EAI_AGAIN
		}
	}
	return EAI_FAIL
}
