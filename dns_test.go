package uvloop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAddrInfo_Literal(t *testing.T) {
	l := newTestLoop(t)
	var got []AddrInfo
	var gotErr error
	GetAddrInfo(l, "127.0.0.1", "8080", func(res []AddrInfo, err error) {
		got, gotErr = res, err
	})
	runLoop(t, l)
	require.NoError(t, gotErr)
	require.Len(t, got, 1)
	assert.Equal(t, AddrInfo{
		Address: loopback(8080),
		Host:    "127.0.0.1",
		Service: "8080",
		Network: "tcp",
	}, got[0])
}

func TestGetAddrInfo_EmptyHostIsLoopback(t *testing.T) {
	l := newTestLoop(t)
	var got []AddrInfo
	GetAddrInfo(l, "", "53", func(res []AddrInfo, err error) {
		assert.NoError(t, err)
		got = res
	})
	runLoop(t, l)
	require.NotEmpty(t, got)
	for _, ai := range got {
		assert.Equal(t, 53, ai.Address.Port)
	}
}

func TestGetAddrInfo_Errors(t *testing.T) {
	l := newTestLoop(t)
	var argErr, svcErr error
	GetAddrInfo(l, "", "", func(_ []AddrInfo, err error) { argErr = err })
	GetAddrInfo(l, "127.0.0.1", "no-such-service-name", func(res []AddrInfo, err error) {
		assert.Nil(t, res)
		svcErr = err
	})
	runLoop(t, l)
	assert.ErrorIs(t, argErr, ArgumentError(""))
	var e *Error
	require.ErrorAs(t, svcErr, &e)
	assert.Equal(t, "EAI_SERVICE", e.Type())
}
