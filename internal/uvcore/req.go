package uvcore

import (
	"sync"
)

// ReqType identifies the kind of a request.
type ReqType int

const (
	UnknownReq ReqType = iota
	ConnectReqType
	WriteReqType
	ShutdownReqType
	UDPSendReqType
	FsReqType
	WorkReqType
	GetaddrinfoReqType
)

// Req is the header shared by all request kinds.
type Req struct {
	// Data is an opaque slot, never read by the engine.
	Data uintptr

	typ       ReqType
	allocated bool
	active    bool
}

// Type returns the request kind.
func (r *Req) Type() ReqType { return r.typ }

// Active reports whether the request is waiting for its callback.
func (r *Req) Active() bool { return r.active }

func (r *Req) begin(l *Loop) {
	r.active = true
	l.activeReqs++
}

func (r *Req) end(l *Loop) {
	if r.active {
		r.active = false
		l.activeReqs--
	}
}

// release validates a Free call.
func (r *Req) release() int {
	switch {
	case !r.allocated:
		return EINVAL
	case r.active:
		return EBUSY
	}
	r.allocated = false
	r.Data = 0
	return OK
}

type reqPool[T any] struct {
	pool sync.Pool
}

func (p *reqPool[T]) get() *T {
	if v, ok := p.pool.Get().(*T); ok {
		return v
	}
	return new(T)
}

func (p *reqPool[T]) put(v *T) { p.pool.Put(v) }

var (
	connectReqs     reqPool[ConnectReq]
	writeReqs       reqPool[WriteReq]
	shutdownReqs    reqPool[ShutdownReq]
	udpSendReqs     reqPool[UDPSendReq]
	fsReqs          reqPool[FsReq]
	workReqs        reqPool[WorkReq]
	getaddrinfoReqs reqPool[GetaddrinfoReq]
)

// NewConnectReq allocates a connect request.
func NewConnectReq() *ConnectReq {
	r := connectReqs.get()
	*r = ConnectReq{Req: Req{typ: ConnectReqType, allocated: true}}
	return r
}

// Free releases the request. EINVAL reports a second release, EBUSY a
// request still in flight.
func (r *ConnectReq) Free() int {
	if rc := r.release(); rc != OK {
		return rc
	}
	r.cb, r.handle = nil, nil
	connectReqs.put(r)
	return OK
}

// NewWriteReq allocates a write request.
func NewWriteReq() *WriteReq {
	r := writeReqs.get()
	*r = WriteReq{Req: Req{typ: WriteReqType, allocated: true}, sendFd: -1}
	return r
}

// Free releases the request, see ConnectReq.Free.
func (r *WriteReq) Free() int {
	if rc := r.release(); rc != OK {
		return rc
	}
	r.cb, r.handle, r.bufs = nil, nil, nil
	writeReqs.put(r)
	return OK
}

// NewShutdownReq allocates a shutdown request.
func NewShutdownReq() *ShutdownReq {
	r := shutdownReqs.get()
	*r = ShutdownReq{Req: Req{typ: ShutdownReqType, allocated: true}}
	return r
}

// Free releases the request, see ConnectReq.Free.
func (r *ShutdownReq) Free() int {
	if rc := r.release(); rc != OK {
		return rc
	}
	r.cb, r.handle = nil, nil
	shutdownReqs.put(r)
	return OK
}

// NewUDPSendReq allocates a datagram send request.
func NewUDPSendReq() *UDPSendReq {
	r := udpSendReqs.get()
	*r = UDPSendReq{Req: Req{typ: UDPSendReqType, allocated: true}}
	return r
}

// Free releases the request, see ConnectReq.Free.
func (r *UDPSendReq) Free() int {
	if rc := r.release(); rc != OK {
		return rc
	}
	r.cb, r.handle, r.buf, r.addr = nil, nil, nil, nil
	udpSendReqs.put(r)
	return OK
}

// NewFsReq allocates a file system request.
func NewFsReq() *FsReq {
	r := fsReqs.get()
	*r = FsReq{Req: Req{typ: FsReqType, allocated: true}, File: -1}
	return r
}

// Free releases the request, see ConnectReq.Free.
func (r *FsReq) Free() int {
	if rc := r.release(); rc != OK {
		return rc
	}
	FsReqCleanup(r)
	r.cb, r.loop = nil, nil
	fsReqs.put(r)
	return OK
}

// NewWorkReq allocates a work request.
func NewWorkReq() *WorkReq {
	r := workReqs.get()
	*r = WorkReq{Req: Req{typ: WorkReqType, allocated: true}}
	return r
}

// Free releases the request, see ConnectReq.Free.
func (r *WorkReq) Free() int {
	if rc := r.release(); rc != OK {
		return rc
	}
	r.workCb, r.afterCb, r.loop = nil, nil, nil
	workReqs.put(r)
	return OK
}

// NewGetaddrinfoReq allocates a resolver request.
func NewGetaddrinfoReq() *GetaddrinfoReq {
	r := getaddrinfoReqs.get()
	*r = GetaddrinfoReq{Req: Req{typ: GetaddrinfoReqType, allocated: true}}
	return r
}

// Free releases the request, see ConnectReq.Free.
func (r *GetaddrinfoReq) Free() int {
	if rc := r.release(); rc != OK {
		return rc
	}
	r.cb, r.loop, r.Addrinfo = nil, nil, nil
	getaddrinfoReqs.put(r)
	return OK
}
