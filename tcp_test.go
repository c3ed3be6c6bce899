package uvloop

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCP_EchoPreservesWriteOrder(t *testing.T) {
	l := newTestLoop(t)
	server, err := NewTCP(l)
	require.NoError(t, err)
	require.NoError(t, server.Bind(loopback(0)))
	server.Listen(0, func(err error) {
		require.NoError(t, err)
		conn, err := NewTCP(l)
		require.NoError(t, err)
		require.NoError(t, server.Accept(conn))
		conn.Read(func(b Buffer, err error) {
			if err != nil {
				assert.ErrorIs(t, err, ErrEOF)
				conn.Close(nil)
				server.Close(nil)
				return
			}
			conn.Write(b.Copy(), nil)
		})
	})
	addr, err := server.LocalAddress()
	require.NoError(t, err)
	assert.NotZero(t, addr.Port)

	client, err := NewTCP(l)
	require.NoError(t, err)
	parts := []string{"alpha,", "beta,", "gamma"}
	want := strings.Join(parts, "")
	var completed []int
	var echoed strings.Builder
	client.Connect(addr, func(err error) {
		require.NoError(t, err)
		require.NoError(t, client.SetNoDelay(true))
		assert.True(t, client.NoDelayed())
		remote, err := client.RemoteAddress()
		require.NoError(t, err)
		assert.Equal(t, addr, remote)

		for i, p := range parts {
			client.Write([]byte(p), func(err error) {
				assert.NoError(t, err)
				completed = append(completed, i)
			})
		}
		client.Read(func(b Buffer, err error) {
			if err != nil {
				assert.ErrorIs(t, err, ErrEOF)
				client.Close(nil)
				return
			}
			echoed.Write(b.Bytes())
			if echoed.Len() == len(want) {
				client.Shutdown(func(err error) { assert.NoError(t, err) })
			}
		})
	})
	runLoop(t, l)

	assert.Equal(t, []int{0, 1, 2}, completed)
	assert.Equal(t, want, echoed.String())
	assert.Equal(t, StateClosed, client.State())
	assert.Zero(t, l.Stats().OutstandingTokens)
}

func TestTCP_ConnectRefused(t *testing.T) {
	l := newTestLoop(t)
	// grab a free port, then release it
	spare, err := NewTCP(l)
	require.NoError(t, err)
	require.NoError(t, spare.Bind(loopback(0)))
	addr, err := spare.LocalAddress()
	require.NoError(t, err)
	spare.Close(nil)
	runLoop(t, l)

	client, err := NewTCP(l)
	require.NoError(t, err)
	var got error
	client.Connect(addr, func(err error) {
		got = err
		client.Close(nil)
	})
	runLoop(t, l)
	var e *Error
	require.ErrorAs(t, got, &e)
	assert.Equal(t, "ECONNREFUSED", e.Type())
}

func TestTCP_ClosedHandleGuards(t *testing.T) {
	l := newTestLoop(t)
	c, err := NewTCP(l)
	require.NoError(t, err)
	closed := 0
	c.Close(func() { closed++ })
	c.Close(func() { closed++ })
	assert.True(t, c.IsClosing())
	assert.Equal(t, StateClosing, c.State())

	var errs []error
	collect := func(err error) { errs = append(errs, err) }
	c.Write([]byte("x"), collect)
	c.Shutdown(collect)
	c.Connect(loopback(1), collect)
	c.Read(func(_ Buffer, err error) { collect(err) })
	assert.Empty(t, errs, "failures are delivered later")
	assert.ErrorIs(t, c.Bind(loopback(0)), ErrClosedHandle)
	assert.ErrorIs(t, c.SetKeepAlive(true, time.Minute), ErrClosedHandle)

	runLoop(t, l)
	assert.Equal(t, 1, closed)
	assert.Equal(t, StateClosed, c.State())
	require.Len(t, errs, 4)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrClosedHandle)
	}
}

func TestTCP_KeepAliveAndInvalidAddress(t *testing.T) {
	l := newTestLoop(t)
	c, err := NewTCP(l)
	require.NoError(t, err)
	require.NoError(t, c.Bind(loopback(0)))
	assert.ErrorIs(t, c.SetKeepAlive(true, 0), ArgumentError(""))
	require.NoError(t, c.SetKeepAlive(true, 30*time.Second))
	assert.True(t, c.KeepAlived())

	var got error
	c.Connect(Address{Host: "not-an-ip", Port: 1}, func(err error) { got = err })
	runLoop(t, l)
	assert.ErrorIs(t, got, ArgumentError(""))
	c.Close(nil)
	runLoop(t, l)
}
