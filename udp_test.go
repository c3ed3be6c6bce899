package uvloop

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestUDP_SendRecv(t *testing.T) {
	l := newTestLoop(t)
	receiver, err := NewUDP(l)
	require.NoError(t, err)
	sender, err := NewUDP(l)
	require.NoError(t, err)
	require.NoError(t, receiver.Bind(loopback(0), UDPReuseAddr))
	assert.True(t, receiver.Bound())
	to, err := receiver.LocalAddress()
	require.NoError(t, err)

	var payload []byte
	var from Address
	receiver.Recv(func(b Buffer, addr Address, err error) {
		if errors.Is(err, ErrClosedHandle) {
			return
		}
		require.NoError(t, err)
		payload, from = b.Copy(), addr
		receiver.Close(nil)
		sender.Close(nil)
	})

	var sent error = ErrEOF
	sender.Send([]byte{1, 2, 3}, to, func(err error) { sent = err })
	// Send binds the sender implicitly
	assert.True(t, sender.Bound())
	local, err := sender.LocalAddress()
	require.NoError(t, err)

	runLoop(t, l)
	assert.NoError(t, sent)
	assert.Equal(t, []byte{1, 2, 3}, payload)
	assert.Equal(t, "127.0.0.1", from.Host)
	assert.Equal(t, local.Port, from.Port)
	assert.NotZero(t, from.Port)
}

func TestUDP_RecvReplacesContinuation(t *testing.T) {
	l := newTestLoop(t)
	u, err := NewUDP(l)
	require.NoError(t, err)
	require.NoError(t, u.Bind(loopback(0)))
	to, err := u.LocalAddress()
	require.NoError(t, err)

	u.Recv(func(_ Buffer, _ Address, err error) {
		t.Errorf("replaced continuation called with %v", err)
	})
	var got string
	u.Recv(func(b Buffer, _ Address, err error) {
		if err != nil {
			return
		}
		got = b.String()
		assert.NoError(t, u.RecvStop())
		u.Close(nil)
	})
	u.Send([]byte("hi"), to, nil)
	runLoop(t, l)
	assert.Equal(t, "hi", got)
	assert.Zero(t, l.Stats().OutstandingTokens)
}

func TestUDP_BindRequired(t *testing.T) {
	l := newTestLoop(t)
	u, err := NewUDP(l)
	require.NoError(t, err)
	assert.False(t, u.Bound())

	_, err = u.LocalAddress()
	assert.ErrorIs(t, err, ErrBindRequired)
	assert.ErrorIs(t, u.SetMembership("239.0.0.1", "", JoinGroup), ErrBindRequired)
	assert.ErrorIs(t, u.SetMulticastLoop(true), ErrBindRequired)
	assert.ErrorIs(t, u.SetMulticastTTL(2), ErrBindRequired)
	assert.ErrorIs(t, u.SetMulticastInterface("127.0.0.1"), ErrBindRequired)
	assert.ErrorIs(t, u.SetBroadcast(true), ErrBindRequired)
	assert.ErrorIs(t, u.SetTTL(2), ErrBindRequired)

	var recvErr error
	u.Recv(func(_ Buffer, _ Address, err error) { recvErr = err })
	runLoop(t, l)
	assert.ErrorIs(t, recvErr, ErrBindRequired)

	require.NoError(t, u.Bind(loopback(0)))
	assert.NoError(t, u.SetBroadcast(true))
	assert.NoError(t, u.SetTTL(64))
	assert.NoError(t, u.SetMulticastTTL(1))
	assert.NoError(t, u.SetMulticastLoop(false))
	assert.ErrorIs(t, u.SetTTL(0), ArgumentError(""))
	assert.ErrorIs(t, u.SetMulticastTTL(256), ArgumentError(""))
	u.Close(nil)
	runLoop(t, l)
	assert.ErrorIs(t, u.SetTTL(64), ErrClosedHandle)
}

func TestUDP_ZeroAllocSizeEndsRecv(t *testing.T) {
	l := newTestLoop(t)
	recv, err := NewUDP(l)
	require.NoError(t, err)
	require.NoError(t, recv.Bind(loopback(0)))
	recv.SetAllocSize(func(int) int { return 0 })
	addr, err := recv.LocalAddress()
	require.NoError(t, err)

	var errs []error
	recv.Recv(func(_ Buffer, _ Address, err error) { errs = append(errs, err) })
	send, err := NewUDP(l)
	require.NoError(t, err)
	send.Send([]byte("x"), addr, func(err error) {
		assert.NoError(t, err)
		send.Close(nil)
	})
	runLoop(t, l)
	require.Len(t, errs, 1)
	assert.Equal(t, -int(unix.ENOBUFS), Code(errs[0]))
	assert.False(t, recv.IsActive())
	assert.Zero(t, l.Stats().OutstandingTokens)
	recv.Close(nil)
	runLoop(t, l)
	assert.Len(t, errs, 1, "closing after the final call delivers nothing more")
}
