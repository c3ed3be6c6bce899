package uvloop

import (
	"errors"
	"fmt"
	"io"

	"github.com/joeycumines/go-uvloop/internal/uvcore"
)

// ErrorKind classifies an [Error].
type ErrorKind int

const (
	// KindNative is a status code reported by the reactor.
	KindNative ErrorKind = iota
	// KindEOF is the end of a stream.
	KindEOF
	// KindNoPendingCount means an IPC pipe had no handle queued.
	KindNoPendingCount
	// KindPendingTypeMismatch means the queued handle was of another type.
	KindPendingTypeMismatch
	// KindClosedHandle means the handle was already closed.
	KindClosedHandle
	// KindBindRequired means the socket must be bound first.
	KindBindRequired
	// KindArgument is an invalid argument.
	KindArgument
	// KindLoopClosed means the loop was closed.
	KindLoopClosed
	// KindReentrantRun means Run was called from a continuation.
	KindReentrantRun
	// KindNotLoopThread means a goroutine other than the owner used the loop.
	KindNotLoopThread
	// KindWorkStarted means a work item could not be canceled because it
	// already started.
	KindWorkStarted
)

var kindNames = [...]string{
	KindNative:              "Native",
	KindEOF:                 "EOF",
	KindNoPendingCount:      "NoPendingCount",
	KindPendingTypeMismatch: "PendingTypeMismatch",
	KindClosedHandle:        "ClosedHandle",
	KindBindRequired:        "BindRequired",
	KindArgument:            "ArgumentError",
	KindLoopClosed:          "LoopClosed",
	KindReentrantRun:        "ReentrantRun",
	KindNotLoopThread:       "NotLoopThread",
	KindWorkStarted:         "WorkStarted",
}

func (k ErrorKind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is the error type returned and delivered by this package. Every
// Error carries a negative status code, also for domain kinds.
type Error struct {
	Message string
	Code    int
	Kind    ErrorKind
}

// Type returns the short name of the error: the errno name (e.g. "ECONNREFUSED")
// for native errors, the kind name otherwise.
func (e *Error) Type() string {
	if e.Kind == KindNative {
		return uvcore.ErrName(e.Code)
	}
	return e.Kind.String()
}

func (e *Error) Error() string {
	return e.Type() + ": " + e.Message
}

// Is matches errors of the same kind. Native errors additionally need equal
// codes. ErrEOF also matches io.EOF.
func (e *Error) Is(target error) bool {
	if target == io.EOF {
		return e.Kind == KindEOF
	}
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if e.Kind != t.Kind {
		return false
	}
	return e.Kind != KindNative || e.Code == t.Code
}

var (
	// ErrEOF ends a stream or file read.
	ErrEOF                 = &Error{Kind: KindEOF, Code: uvcore.EOF, Message: "end of file"}
	// ErrNoPendingCount is returned when a pipe has no pending handle to accept.
	ErrNoPendingCount      = &Error{Kind: KindNoPendingCount, Code: uvcore.ENOENT, Message: "no pending handle"}
	// ErrPendingTypeMismatch is returned when the pending handle is of another type.
	ErrPendingTypeMismatch = &Error{Kind: KindPendingTypeMismatch, Code: uvcore.EPROTOTYPE, Message: "pending handle type mismatch"}
	// ErrClosedHandle is delivered for operations on a closing or closed handle.
	ErrClosedHandle        = &Error{Kind: KindClosedHandle, Code: uvcore.EBADF, Message: "handle is already closed"}
	// ErrBindRequired is delivered when a UDP socket receives before Bind.
	ErrBindRequired        = &Error{Kind: KindBindRequired, Code: uvcore.EDESTADDRREQ, Message: "bind is required first"}
	// ErrLoopClosed is returned by a loop after Close.
	ErrLoopClosed          = &Error{Kind: KindLoopClosed, Code: uvcore.EINVAL, Message: "loop is closed"}
	// ErrReentrantRun is returned when Run or Close is called from inside Run.
	ErrReentrantRun        = &Error{Kind: KindReentrantRun, Code: uvcore.EBUSY, Message: "loop is already running"}
	// ErrNotLoopThread is returned for calls from a goroutine other than the loop's.
	ErrNotLoopThread       = &Error{Kind: KindNotLoopThread, Code: uvcore.EINVAL, Message: "not called from the loop goroutine"}
	// ErrWorkStarted is returned by Cancel once a pool goroutine picked up the work.
	ErrWorkStarted         = &Error{Kind: KindWorkStarted, Code: uvcore.EBUSY, Message: "work already started"}

	// ErrCanceled is delivered to continuations of canceled or aborted
	// operations.
	ErrCanceled = &Error{Kind: KindNative, Code: uvcore.ECANCELED, Message: uvcore.StrError(uvcore.ECANCELED)}
)

// ArgumentError returns an argument error with the given message.
func ArgumentError(format string, args ...any) *Error {
	return &Error{Kind: KindArgument, Code: uvcore.EINVAL, Message: fmt.Sprintf(format, args...)}
}

// codeError converts a status code, returning nil for non-negative codes.
func codeError(code int) error {
	switch {
	case code >= 0:
		return nil
	case code == uvcore.EOF:
		return ErrEOF
	case code == uvcore.ECANCELED:
		return ErrCanceled
	}
	return &Error{Kind: KindNative, Code: code, Message: uvcore.StrError(code)}
}

// Code extracts the status code of err: 0 for nil, the code of an [Error], or
// EINVAL for foreign errors.
func Code(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return uvcore.EINVAL
}
