// Package uvcore is a single-threaded, callback-based asynchronous I/O
// engine built directly on epoll.
//
// The API is deliberately low level. Handles and requests are plain structs
// owned by the caller, completion is reported through plain function-typed
// callbacks, and each handle and request carries an opaque Data slot that the
// engine never interprets. Operations return 0 on success or a negative
// errno-style status code; the same codes are passed to callbacks.
//
// Every method must be called from the goroutine running [Loop.Run], with the
// exception of [Async.Send], which may be called from anywhere. Work queued
// with [QueueWork] runs its work callback on a pool goroutine, and its
// after-work callback back on the loop.
//
// One iteration of the loop runs, in order: due timers, pending callbacks,
// idle handles, I/O polling, and close callbacks.
package uvcore
