package uvloop

import (
	"net"
	"net/netip"
	"strconv"

	"golang.org/x/sys/unix"
)

// Address is a host and port pair. Host is an IP literal.
type Address struct {
	Host string
	Port int
}

// ParseAddress parses "host:port", e.g. "127.0.0.1:80" or "[::1]:80".
func ParseAddress(s string) (Address, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, ArgumentError("invalid address %q: %v", s, err)
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return Address{}, ArgumentError("invalid port in %q", s)
	}
	a := Address{Host: host, Port: p}
	if _, err := a.sockaddr(); err != nil {
		return Address{}, err
	}
	return a, nil
}

func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// IsIPv6 reports whether Host is an IPv6 literal.
func (a Address) IsIPv6() bool {
	ip, err := netip.ParseAddr(a.Host)
	return err == nil && ip.Is6() && !ip.Is4In6()
}

func (a Address) sockaddr() (unix.Sockaddr, error) {
	if a.Port < 0 || a.Port > 0xffff {
		return nil, ArgumentError("port %d out of range", a.Port)
	}
	ip, err := netip.ParseAddr(a.Host)
	if err != nil {
		return nil, ArgumentError("invalid IP address %q", a.Host)
	}
	if ip.Is4() || ip.Is4In6() {
		return &unix.SockaddrInet4{Port: a.Port, Addr: ip.Unmap().As4()}, nil
	}
	sa := &unix.SockaddrInet6{Port: a.Port, Addr: ip.As16()}
	if zone := ip.Zone(); zone != "" {
		ifi, err := net.InterfaceByName(zone)
		if err != nil {
			return nil, ArgumentError("unknown zone %q", zone)
		}
		sa.ZoneId = uint32(ifi.Index)
	}
	return sa, nil
}

// addressOf decodes an IPv4 or IPv6 socket address.
func addressOf(sa unix.Sockaddr) (Address, bool) {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return Address{Host: netip.AddrFrom4(sa.Addr).String(), Port: sa.Port}, true
	case *unix.SockaddrInet6:
		ip := netip.AddrFrom16(sa.Addr)
		if sa.ZoneId != 0 {
			if ifi, err := net.InterfaceByIndex(int(sa.ZoneId)); err == nil {
				ip = ip.WithZone(ifi.Name)
			}
		}
		return Address{Host: ip.String(), Port: sa.Port}, true
	}
	return Address{}, false
}
