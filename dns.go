package uvloop

import (
	"strconv"

	"github.com/joeycumines/go-uvloop/internal/uvcore"
	"golang.org/x/sys/unix"
)

// AddrInfo is one resolved address in numeric form.
type AddrInfo struct {
	Address Address
	// Host is the numeric host, e.g. "127.0.0.1".
	Host string
	// Service is the numeric port, e.g. "80".
	Service string
	// Network is "tcp" or "udp".
	Network string
}

// GetAddrInfo resolves host and service on the thread pool. An empty host
// resolves to the loopback addresses. service may be a port number or a
// service name.
func GetAddrInfo(l *Loop, host, service string, onResolve func([]AddrInfo, error)) {
	if onResolve == nil {
		return
	}
	fail := func(err error) { onResolve(nil, err) }
	if err := l.checkThread(); err != nil {
		l.fail(err, fail)
		return
	}
	if host == "" && service == "" {
		l.fail(ArgumentError("host and service are both empty"), fail)
		return
	}
	req := uvcore.NewGetaddrinfoReq()
	var g reqGuard
	g.init(l, &req.Req, req.Free, onResolve)
	defer g.release()
	if rc := uvcore.Getaddrinfo(l.core, req, getaddrinfoTrampoline, host, service, nil); rc != uvcore.OK {
		l.fail(codeError(rc), fail)
		return
	}
	g.disarm()
}

func getaddrinfoTrampoline(req *uvcore.GetaddrinfoReq, status int, res []uvcore.AddrInfo) {
	l := loopOf(req.Loop())
	if l == nil {
		return
	}
	var out []AddrInfo
	for _, ai := range res {
		addr, ok := addressOf(ai.Addr)
		if !ok {
			continue
		}
		network := "tcp"
		if ai.Socktype == unix.SOCK_DGRAM {
			network = "udp"
		}
		out = append(out, AddrInfo{
			Address: addr,
			Host:    addr.Host,
			Service: strconv.Itoa(addr.Port),
			Network: network,
		})
	}
	v, ok := complete(l, req.Data, req.Free)
	if !ok {
		return
	}
	cont := v.(func([]AddrInfo, error))
	err := codeError(status)
	if err != nil {
		out = nil
	}
	l.invoke(func() { cont(out, err) })
}
