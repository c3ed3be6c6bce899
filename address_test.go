package uvloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("127.0.0.1:9999")
	require.NoError(t, err)
	assert.Equal(t, Address{Host: "127.0.0.1", Port: 9999}, a)
	assert.False(t, a.IsIPv6())
	assert.Equal(t, "127.0.0.1:9999", a.String())

	a, err = ParseAddress("[::1]:80")
	require.NoError(t, err)
	assert.True(t, a.IsIPv6())
	assert.Equal(t, "[::1]:80", a.String())

	for _, bad := range []string{"localhost:80", "127.0.0.1", "127.0.0.1:x", "127.0.0.1:70000"} {
		_, err := ParseAddress(bad)
		assert.ErrorIs(t, err, ArgumentError(""), bad)
	}
}

func TestAddress_SockaddrConversion(t *testing.T) {
	sa, err := Address{Host: "::ffff:10.0.0.1", Port: 1}.sockaddr()
	require.NoError(t, err)
	require.IsType(t, &unix.SockaddrInet4{}, sa)
	assert.Equal(t, [4]byte{10, 0, 0, 1}, sa.(*unix.SockaddrInet4).Addr)

	sa, err = Address{Host: "fe80::1", Port: 2}.sockaddr()
	require.NoError(t, err)
	back, ok := addressOf(sa)
	require.True(t, ok)
	assert.Equal(t, Address{Host: "fe80::1", Port: 2}, back)

	_, ok = addressOf(&unix.SockaddrUnix{Name: "x"})
	assert.False(t, ok)
	_, err = Address{Host: "fe80::1%no-such-iface0", Port: 2}.sockaddr()
	assert.ErrorIs(t, err, ArgumentError(""))
}
