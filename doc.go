// Package uvloop provides event-driven file, socket, timer, signal, idle and
// thread pool I/O on a single-threaded reactor, with results delivered to
// ordinary Go continuations.
//
// # Architecture
//
// A [Loop] owns one reactor. Handles ([TCP], [UDP], [Pipe], [Timer],
// [Signal], [Idle]) are created against a loop and stay on it until closed.
// One-shot operations ([Open], [Stat], [Read], [Write], [GetAddrInfo],
// [Work]) issue a request and report its result once.
//
// Every continuation is registered under a generation-checked token that is
// redeemed exactly once, by the completion that owns it. The request behind
// it is freed exactly once, either on the failure path of the issuing call
// or by its completion, never both. Streaming continuations ([Stream.Read],
// [UDP.Recv], [FileReader.Start]) stay registered until they finish or their
// handle closes.
//
// # Thread Safety
//
// A loop and its handles belong to one goroutine: the one that called [New],
// or the one currently inside a Run method. Operations from any other
// goroutine fail with [ErrNotLoopThread], delivered on the loop.
// [Loop.Submit], [Loop.Stats] and [Loop.IsClosed] are safe from anywhere.
// Work functions run on pool goroutines and must not touch the loop.
//
// # Errors
//
// Continuations never run before the issuing call returns. A failure found
// while issuing is delivered in the next loop iteration. Errors are
// [*Error] values and match the sentinels with [errors.Is], for example
// [ErrEOF] at end of stream and [ErrClosedHandle] after Close.
//
// # Platform Support
//
// The reactor uses epoll and eventfd, so the package builds on Linux only.
package uvloop
