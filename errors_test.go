package uvloop

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/joeycumines/go-uvloop/internal/uvcore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_TypeAndMessage(t *testing.T) {
	err := codeError(uvcore.ECONNREFUSED)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, KindNative, e.Kind)
	assert.Equal(t, "ECONNREFUSED", e.Type())
	assert.Equal(t, "ECONNREFUSED: "+uvcore.StrError(uvcore.ECONNREFUSED), e.Error())

	assert.Equal(t, "ClosedHandle", ErrClosedHandle.Type())
	assert.Equal(t, "ArgumentError: bad 42", ArgumentError("bad %d", 42).Error())
}

func TestError_Is(t *testing.T) {
	for _, tc := range []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"eof code", codeError(uvcore.EOF), ErrEOF, true},
		{"eof io", ErrEOF, io.EOF, true},
		{"canceled", codeError(uvcore.ECANCELED), ErrCanceled, true},
		{"same native code", codeError(uvcore.EPIPE), codeError(uvcore.EPIPE), true},
		{"other native code", codeError(uvcore.EPIPE), codeError(uvcore.EBADF), false},
		{"kind not code", codeError(uvcore.EBADF), ErrClosedHandle, false},
		{"argument kind", ArgumentError("x"), ArgumentError("y"), true},
		{"wrapped", fmt.Errorf("write: %w", ErrBindRequired), ErrBindRequired, true},
		{"work started", ErrWorkStarted, ErrCanceled, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, errors.Is(tc.err, tc.target))
		})
	}
}

func TestCode(t *testing.T) {
	assert.Nil(t, codeError(0))
	assert.Nil(t, codeError(3))
	assert.Equal(t, uvcore.ENOENT, Code(codeError(uvcore.ENOENT)))
	assert.Equal(t, uvcore.EDESTADDRREQ, Code(ErrBindRequired))
	assert.Equal(t, 0, Code(nil))
}

func TestErrorKind_String(t *testing.T) {
	assert.Equal(t, "PendingTypeMismatch", KindPendingTypeMismatch.String())
	assert.Equal(t, "ErrorKind(99)", ErrorKind(99).String())
}
