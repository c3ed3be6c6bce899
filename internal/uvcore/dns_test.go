package uvcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestGetaddrinfo_Literal(t *testing.T) {
	l := newTestLoop(t)
	req := NewGetaddrinfoReq()
	var got []AddrInfo
	st := 1
	require.Equal(t, OK, Getaddrinfo(l, req, func(r *GetaddrinfoReq, s int, res []AddrInfo) {
		st, got = s, res
	}, "127.0.0.1", "8080", &AddrInfoHints{Socktype: unix.SOCK_DGRAM}))
	runFor(t, l, 5*time.Second)
	require.Equal(t, OK, st)
	require.Len(t, got, 1)
	assert.Equal(t, unix.AF_INET, got[0].Family)
	assert.Equal(t, unix.SOCK_DGRAM, got[0].Socktype)
	assert.Equal(t, &unix.SockaddrInet4{Port: 8080, Addr: [4]byte{127, 0, 0, 1}}, got[0].Addr)
	assert.Equal(t, OK, req.Free())
}

func TestGetaddrinfo_EmptyNodeIsLoopback(t *testing.T) {
	l := newTestLoop(t)
	req := NewGetaddrinfoReq()
	defer req.Free()
	require.Equal(t, OK, Getaddrinfo(l, req, nil, "", "80", &AddrInfoHints{Family: unix.AF_INET6}))
	require.Len(t, req.Addrinfo, 1)
	assert.Equal(t, unix.AF_INET6, req.Addrinfo[0].Family)
	assert.Equal(t, EINVAL, Getaddrinfo(l, req, nil, "", "", nil))
	assert.Equal(t, EAI_SERVICE, Getaddrinfo(l, req, nil, "127.0.0.1", "no-such-service-xyz", nil))
}
