package uvcore

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Status codes, negated errno values. Only the codes the engine itself
// produces are named; any -errno may appear in results.
const (
	OK           = 0
	EOF          = -4095
	EAGAIN       = -int(unix.EAGAIN)
	EBADF        = -int(unix.EBADF)
	EBUSY        = -int(unix.EBUSY)
	ECANCELED    = -int(unix.ECANCELED)
	ECONNREFUSED = -int(unix.ECONNREFUSED)
	EINVAL       = -int(unix.EINVAL)
	EISCONN      = -int(unix.EISCONN)
	EALREADY     = -int(unix.EALREADY)
	ENOENT       = -int(unix.ENOENT)
	ENOTCONN     = -int(unix.ENOTCONN)
	ENOTSOCK     = -int(unix.ENOTSOCK)
	ENOBUFS      = -int(unix.ENOBUFS)
	ENOSYS       = -int(unix.ENOSYS)
	EPIPE        = -int(unix.EPIPE)
	EPROTOTYPE   = -int(unix.EPROTOTYPE)
	EDESTADDRREQ = -int(unix.EDESTADDRREQ)
	EAFNOSUPPORT = -int(unix.EAFNOSUPPORT)
	EEXIST       = -int(unix.EEXIST)
)

// Resolver status codes.
const (
	EAI_AGAIN   = -3001
	EAI_FAIL    = -3002
	EAI_NONAME  = -3008
	EAI_SERVICE = -3010
)

var eaiNames = map[int][2]string{
	EAI_AGAIN:   {"EAI_AGAIN", "temporary failure"},
	EAI_FAIL:    {"EAI_FAIL", "permanent failure"},
	EAI_NONAME:  {"EAI_NONAME", "unknown node or service"},
	EAI_SERVICE: {"EAI_SERVICE", "service not available for socket type"},
}

// ErrName returns the short symbolic name of a status code, e.g. "ENOENT".
func ErrName(code int) string {
	if code == EOF {
		return "EOF"
	}
	if v, ok := eaiNames[code]; ok {
		return v[0]
	}
	if code < 0 {
		if name := unix.ErrnoName(unix.Errno(-code)); name != "" {
			return name
		}
	}
	return fmt.Sprintf("Unknown system error %d", code)
}

// StrError returns the human-readable message for a status code.
func StrError(code int) string {
	if code == EOF {
		return "end of file"
	}
	if v, ok := eaiNames[code]; ok {
		return v[1]
	}
	if code < 0 {
		return unix.Errno(-code).Error()
	}
	return fmt.Sprintf("Unknown system error %d", code)
}

// status converts a syscall error into a status code.
func status(err error) int {
	if err == nil {
		return OK
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return -int(errno)
	}
	return EINVAL
}

// retryable reports whether err means the operation would block.
func retryable(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR
}
