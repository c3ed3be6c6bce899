package uvcore

import (
	"github.com/eapache/queue"
	"golang.org/x/sys/unix"
)

// Callback types shared by TCP and Pipe streams.
type (
	// AllocCb returns the buffer for the next read. An empty buffer makes
	// the read fail with ENOBUFS and stops reading.
	AllocCb func(h *Handle, suggested int) []byte
	// ReadCb receives nread > 0 bytes of data in buf[:nread], nread == 0
	// when nothing could be read right now, or a negative status (EOF at
	// end of stream). buf is always the buffer returned by the AllocCb.
	ReadCb func(s *Stream, nread int, buf []byte)
	// WriteCb reports the outcome of a write.
	WriteCb func(req *WriteReq, status int)
	// ConnectCb reports the outcome of a connect.
	ConnectCb func(req *ConnectReq, status int)
	// ShutdownCb reports the outcome of a shutdown.
	ShutdownCb func(req *ShutdownReq, status int)
	// ConnectionCb is called by a listening stream when a connection is
	// waiting to be accepted.
	ConnectionCb func(server *Stream, status int)
)

// SuggestedReadSize is passed to AllocCb.
const SuggestedReadSize = 64 * 1024

const (
	readBurst    = 32
	maxIPCFds    = 64
	ipcOOBBufLen = 256 + 4*maxIPCFds
)

type streamFlags uint16

const (
	sfReadable streamFlags = 1 << iota
	sfWritable
	sfReading
	sfListening
	sfConnecting
	sfShutting
	sfShut
	sfEOF
	sfFeedQueued
)

// ConnectReq is a connect request.
type ConnectReq struct {
	Req
	handle *Stream
	cb     ConnectCb
}

// Handle returns the connecting stream.
func (r *ConnectReq) Handle() *Stream { return r.handle }

// ShutdownReq is a shutdown request.
type ShutdownReq struct {
	Req
	handle *Stream
	cb     ShutdownCb
}

// Handle returns the stream being shut down.
func (r *ShutdownReq) Handle() *Stream { return r.handle }

// WriteReq is a write request.
type WriteReq struct {
	Req
	handle  *Stream
	cb      WriteCb
	bufs    [][]byte
	sendFd  int
	fdSent  bool
	pending int
	status  int
}

// Handle returns the stream written to.
func (r *WriteReq) Handle() *Stream { return r.handle }

// Stream is the connection-oriented capability shared by TCP and Pipe.
type Stream struct {
	Handle
	allocCb      AllocCb
	readCb       ReadCb
	connectionCb ConnectionCb
	connectReq   *ConnectReq
	shutdownReq  *ShutdownReq
	writeQueue   *queue.Queue
	completed    []*WriteReq
	pendingFds   []int
	// applyOptions configures a freshly created or opened descriptor
	applyOptions func(fd int) int
	queuedBytes  int
	fd           int
	acceptedFd   int
	delayedError int
	sflags       streamFlags
	ipc          bool
}

func (s *Stream) init(l *Loop, typ HandleType) {
	s.Handle.init(l, typ)
	s.allocCb, s.readCb, s.connectionCb = nil, nil, nil
	s.connectReq, s.shutdownReq = nil, nil
	s.writeQueue = queue.New()
	s.completed, s.pendingFds = nil, nil
	s.queuedBytes = 0
	s.fd, s.acceptedFd = -1, -1
	s.delayedError = 0
	s.sflags = 0
	s.ipc = false
	s.stopHook = s.teardown
	s.finishHook = s.destroy
}

// Fileno returns the underlying descriptor, -1 if there is none.
func (s *Stream) Fileno() int { return s.fd }

// IsReadable reports whether the stream can be read from.
func (s *Stream) IsReadable() bool { return s.sflags&sfReadable != 0 }

// IsWritable reports whether the stream can be written to.
func (s *Stream) IsWritable() bool { return s.sflags&sfWritable != 0 }

// WriteQueueSize returns the number of bytes queued but not yet written.
func (s *Stream) WriteQueueSize() int { return s.queuedBytes }

// open adopts fd as the stream's descriptor.
func (s *Stream) open(fd int, flags streamFlags) int {
	if s.fd >= 0 {
		return EBUSY
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return status(err)
	}
	if s.applyOptions != nil {
		if rc := s.applyOptions(fd); rc != OK {
			return rc
		}
	}
	s.fd = fd
	s.sflags |= flags
	return OK
}

// ReadStart starts reading. Read callbacks continue until ReadStop, EOF,
// an error, or Close.
func (s *Stream) ReadStart(alloc AllocCb, cb ReadCb) int {
	if alloc == nil || cb == nil || s.IsClosing() {
		return EINVAL
	}
	if s.fd < 0 {
		return EBADF
	}
	if s.sflags&sfReadable == 0 {
		return ENOTCONN
	}
	s.allocCb, s.readCb = alloc, cb
	s.sflags |= sfReading
	s.start()
	return s.updatePoll()
}

// ReadStop stops reading. Idempotent.
func (s *Stream) ReadStop() int {
	if s.sflags&sfReading == 0 {
		return OK
	}
	s.sflags &^= sfReading
	s.syncActive()
	return s.updatePoll()
}

// Write queues bufs for writing. Writes complete in the order issued.
func (s *Stream) Write(req *WriteReq, bufs [][]byte, cb WriteCb) int {
	return s.Write2(req, bufs, nil, cb)
}

// Write2 is Write on an IPC pipe, additionally sending the descriptor of
// sendHandle along with the first byte of bufs.
func (s *Stream) Write2(req *WriteReq, bufs [][]byte, sendHandle *Stream, cb WriteCb) int {
	if req == nil || s.IsClosing() {
		return EINVAL
	}
	if req.active {
		return EBUSY
	}
	if s.fd < 0 {
		return EBADF
	}
	if s.sflags&sfWritable == 0 && s.sflags&sfConnecting == 0 {
		return EPIPE
	}
	if s.sflags&(sfShutting|sfShut) != 0 {
		return EPIPE
	}
	req.sendFd = -1
	if sendHandle != nil {
		if !s.ipc {
			return EINVAL
		}
		if sendHandle.fd < 0 {
			return EBADF
		}
		if totalLen(bufs) == 0 {
			return EINVAL
		}
		req.sendFd = sendHandle.fd
	}

	req.handle, req.cb, req.status, req.fdSent = s, cb, OK, false
	req.bufs = append(req.bufs[:0], bufs...)
	req.pending = totalLen(bufs)
	req.begin(s.loop)
	s.queuedBytes += req.pending
	s.writeQueue.Add(req)

	if s.sflags&sfConnecting != 0 {
		return OK
	}
	if s.writeQueue.Length() == 1 {
		s.writeLoop()
	}
	return s.updatePoll()
}

// Shutdown half-closes the write side once all queued writes are done.
func (s *Stream) Shutdown(req *ShutdownReq, cb ShutdownCb) int {
	if req == nil || s.IsClosing() {
		return EINVAL
	}
	if req.active {
		return EBUSY
	}
	if s.fd < 0 || s.sflags&sfWritable == 0 || s.sflags&(sfShutting|sfShut) != 0 {
		return ENOTCONN
	}
	req.handle, req.cb = s, cb
	req.begin(s.loop)
	s.shutdownReq = req
	s.sflags |= sfShutting
	s.feed()
	return OK
}

// Accept moves a pending connection into client, which must be an
// initialized, unopened stream of the right kind on the same loop.
func (s *Stream) Accept(client *Stream) int {
	if client == nil || client.loop != s.loop || client.IsClosing() {
		return EINVAL
	}
	if client.fd >= 0 {
		return EBUSY
	}
	if s.ipc {
		if len(s.pendingFds) == 0 {
			return EAGAIN
		}
		fd := s.pendingFds[0]
		if guessHandle(fd) != client.typ {
			return EINVAL
		}
		if rc := client.open(fd, sfReadable|sfWritable); rc != OK {
			return rc
		}
		s.pendingFds = s.pendingFds[1:]
		return OK
	}
	if s.acceptedFd < 0 {
		return EAGAIN
	}
	fd := s.acceptedFd
	s.acceptedFd = -1
	rc := client.open(fd, sfReadable|sfWritable)
	if rc != OK {
		_ = unix.Close(fd)
	}
	if s.sflags&sfListening != 0 {
		if prc := s.updatePoll(); rc == OK {
			rc = prc
		}
	}
	return rc
}

// listen must be called with a bound descriptor.
func (s *Stream) listen(backlog int, cb ConnectionCb) int {
	if cb == nil || s.IsClosing() {
		return EINVAL
	}
	if s.fd < 0 {
		return EBADF
	}
	if err := unix.Listen(s.fd, backlog); err != nil {
		return status(err)
	}
	s.connectionCb = cb
	s.sflags |= sfListening
	s.start()
	return s.updatePoll()
}

// connect issues a nonblocking connect on the stream's descriptor.
func (s *Stream) connect(req *ConnectReq, sa unix.Sockaddr, cb ConnectCb, deferErrors bool) int {
	if s.connectReq != nil || s.sflags&sfConnecting != 0 {
		return EALREADY
	}
	var err error
	for {
		if err = unix.Connect(s.fd, sa); err != unix.EINTR {
			break
		}
	}
	delayed := 0
	switch {
	case err == nil, err == unix.EINPROGRESS, err == unix.EAGAIN:
	case err == unix.ECONNREFUSED || deferErrors:
		delayed = status(err)
	default:
		return status(err)
	}

	req.handle, req.cb = s, cb
	req.begin(s.loop)
	s.connectReq = req
	s.sflags |= sfConnecting
	if delayed != 0 {
		s.delayedError = delayed
		s.feed()
		return OK
	}
	return s.updatePoll()
}

func (s *Stream) finishConnect() {
	req := s.connectReq
	if req == nil {
		return
	}
	st := s.delayedError
	if st == 0 {
		e, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
		switch {
		case err != nil:
			st = status(err)
		case e == int(unix.EINPROGRESS):
			return
		default:
			st = -e
		}
	}
	s.delayedError = 0
	s.connectReq = nil
	s.sflags &^= sfConnecting
	if st == OK {
		s.sflags |= sfReadable | sfWritable
	}
	req.end(s.loop)
	if req.cb != nil {
		req.cb(req, st)
	}
	if s.fd < 0 {
		return
	}
	if st != OK {
		s.flushWriteQueue(ECANCELED)
		s.runWriteCallbacks()
	} else if s.writeQueue.Length() > 0 {
		s.writeLoop()
	}
	_ = s.updatePoll()
}

// updatePoll derives the epoll interest set from the stream's flags.
func (s *Stream) updatePoll() int {
	if s.fd < 0 {
		return OK
	}
	var events IOEvents
	switch {
	case s.sflags&sfListening != 0:
		if s.acceptedFd < 0 {
			events |= EventRead
		}
	case s.sflags&sfReading != 0:
		events |= EventRead
	}
	switch {
	case s.sflags&sfConnecting != 0:
		if s.delayedError == 0 {
			events |= EventWrite
		}
	case s.writeQueue.Length() > 0:
		events |= EventWrite
	}
	return status(s.loop.poller.watch(s.fd, events, s.onIO))
}

func (s *Stream) syncActive() {
	if s.sflags&(sfReading|sfListening) != 0 {
		s.start()
	} else {
		s.stop()
	}
}

func (s *Stream) onIO(events IOEvents) {
	if s.connectReq != nil {
		s.finishConnect()
		return
	}
	if events&(EventRead|EventError|EventHangup) != 0 {
		if s.sflags&sfListening != 0 {
			s.acceptLoop()
		} else if s.sflags&sfReading != 0 {
			s.readLoop()
		}
	}
	if s.fd < 0 {
		return
	}
	if events&(EventWrite|EventError|EventHangup) != 0 && s.writeQueue.Length() > 0 {
		s.writeLoop()
		_ = s.updatePoll()
	}
}

func (s *Stream) acceptLoop() {
	for s.acceptedFd < 0 && s.sflags&sfListening != 0 {
		fd, _, err := unix.Accept4(s.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
		if err != nil {
			if retryable(err) || err == unix.ECONNABORTED {
				return
			}
			s.connectionCb(s, status(err))
			return
		}
		s.acceptedFd = fd
		s.connectionCb(s, OK)
		if s.fd < 0 {
			return
		}
	}
	_ = s.updatePoll()
}

func (s *Stream) readLoop() {
	for count := readBurst; count > 0; count-- {
		if s.fd < 0 || s.sflags&sfReading == 0 {
			return
		}
		buf := s.allocCb(&s.Handle, SuggestedReadSize)
		if len(buf) == 0 {
			s.sflags &^= sfReading
			s.syncActive()
			_ = s.updatePoll()
			s.readCb(s, ENOBUFS, buf)
			return
		}
		n, err := s.readOnce(buf)
		switch {
		case err != nil && retryable(err):
			s.readCb(s, 0, buf)
			return
		case err != nil:
			s.sflags &^= sfReading
			s.syncActive()
			_ = s.updatePoll()
			s.readCb(s, status(err), buf)
			return
		case n == 0:
			s.sflags |= sfEOF
			s.sflags &^= sfReading | sfReadable
			s.syncActive()
			_ = s.updatePoll()
			s.readCb(s, EOF, buf)
			return
		}
		s.readCb(s, n, buf)
		if n < len(buf) {
			return
		}
	}
}

func (s *Stream) readOnce(buf []byte) (int, error) {
	for {
		var n int
		var err error
		if s.ipc {
			n, err = s.recvIPC(buf)
		} else {
			n, err = unix.Read(s.fd, buf)
		}
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

func (s *Stream) recvIPC(buf []byte) (int, error) {
	var oob [ipcOOBBufLen]byte
	n, oobn, _, _, err := unix.Recvmsg(s.fd, buf, oob[:], unix.MSG_CMSG_CLOEXEC)
	if err != nil {
		return 0, err
	}
	if oobn > 0 {
		msgs, perr := unix.ParseSocketControlMessage(oob[:oobn])
		if perr != nil {
			return n, nil
		}
		for i := range msgs {
			fds, ferr := unix.ParseUnixRights(&msgs[i])
			if ferr != nil {
				continue
			}
			for _, fd := range fds {
				_ = unix.SetNonblock(fd, true)
				s.pendingFds = append(s.pendingFds, fd)
			}
		}
	}
	return n, nil
}

// writeLoop writes queued requests until the socket would block.
func (s *Stream) writeLoop() {
	for s.fd >= 0 && s.writeQueue.Length() > 0 {
		req := s.writeQueue.Peek().(*WriteReq)
		if req.pending > 0 || (req.sendFd >= 0 && !req.fdSent) {
			n, err := s.writeOnce(req)
			if err != nil {
				if retryable(err) {
					return
				}
				req.status = status(err)
				s.finishWrite()
				continue
			}
			req.advance(n)
			s.queuedBytes -= n
			if req.pending > 0 {
				return
			}
		}
		s.finishWrite()
	}
}

func (s *Stream) writeOnce(req *WriteReq) (int, error) {
	for {
		var n int
		var err error
		switch {
		case req.sendFd >= 0 && !req.fdSent:
			n, err = unix.SendmsgN(s.fd, req.bufs[0], unix.UnixRights(req.sendFd), nil, 0)
			if err == nil {
				req.fdSent = true
			}
		case len(req.bufs) == 1:
			n, err = unix.Write(s.fd, req.bufs[0])
		default:
			n, err = unix.Writev(s.fd, req.bufs)
		}
		if err == unix.EINTR {
			continue
		}
		return n, err
	}
}

func (r *WriteReq) advance(n int) {
	r.pending -= n
	for n > 0 && len(r.bufs) > 0 {
		if n < len(r.bufs[0]) {
			r.bufs[0] = r.bufs[0][n:]
			return
		}
		n -= len(r.bufs[0])
		r.bufs = r.bufs[1:]
	}
	for len(r.bufs) > 0 && len(r.bufs[0]) == 0 {
		r.bufs = r.bufs[1:]
	}
}

// finishWrite moves the head of the write queue to the completed list.
func (s *Stream) finishWrite() {
	req := s.writeQueue.Remove().(*WriteReq)
	s.queuedBytes -= req.pending
	req.pending = 0
	s.completed = append(s.completed, req)
	s.feed()
}

// feed schedules runWriteCallbacks for the next pending phase.
func (s *Stream) feed() {
	if s.sflags&sfFeedQueued != 0 {
		return
	}
	s.sflags |= sfFeedQueued
	s.loop.queuePending(func() {
		s.sflags &^= sfFeedQueued
		if s.delayedError != 0 && s.connectReq != nil {
			s.finishConnect()
		}
		s.runWriteCallbacks()
	})
}

func (s *Stream) runWriteCallbacks() {
	for len(s.completed) > 0 {
		req := s.completed[0]
		s.completed[0] = nil
		s.completed = s.completed[1:]
		req.end(s.loop)
		if req.cb != nil {
			req.cb(req, req.status)
		}
	}
	s.completed = nil
	s.drain()
}

// drain performs a requested shutdown once nothing is left to write.
func (s *Stream) drain() {
	req := s.shutdownReq
	if req == nil || s.writeQueue.Length() > 0 || len(s.completed) > 0 {
		return
	}
	s.shutdownReq = nil
	st := ECANCELED
	if s.fd >= 0 {
		st = status(unix.Shutdown(s.fd, unix.SHUT_WR))
	}
	s.sflags &^= sfShutting | sfWritable
	s.sflags |= sfShut
	req.end(s.loop)
	if req.cb != nil {
		req.cb(req, st)
	}
}

func (s *Stream) flushWriteQueue(st int) {
	for s.writeQueue.Length() > 0 {
		req := s.writeQueue.Remove().(*WriteReq)
		req.status = st
		s.queuedBytes -= req.pending
		req.pending = 0
		s.completed = append(s.completed, req)
	}
}

// teardown runs inside Close: the descriptor goes away immediately.
func (s *Stream) teardown() {
	s.sflags &^= sfReading | sfListening | sfReadable | sfWritable
	if s.fd >= 0 {
		s.loop.poller.forget(s.fd)
		_ = unix.Close(s.fd)
		s.fd = -1
	}
	if s.acceptedFd >= 0 {
		_ = unix.Close(s.acceptedFd)
		s.acceptedFd = -1
	}
	for _, fd := range s.pendingFds {
		_ = unix.Close(fd)
	}
	s.pendingFds = nil
}

// destroy runs in the closing phase, completing every outstanding request
// before the close callback.
func (s *Stream) destroy() {
	if req := s.connectReq; req != nil {
		s.connectReq = nil
		s.delayedError = 0
		s.sflags &^= sfConnecting
		req.end(s.loop)
		if req.cb != nil {
			req.cb(req, ECANCELED)
		}
	}
	s.flushWriteQueue(ECANCELED)
	for _, req := range s.completed {
		req.end(s.loop)
		if req.cb != nil {
			req.cb(req, req.status)
		}
	}
	s.completed = nil
	if req := s.shutdownReq; req != nil {
		s.shutdownReq = nil
		req.end(s.loop)
		if req.cb != nil {
			req.cb(req, ECANCELED)
		}
	}
}

func totalLen(bufs [][]byte) int {
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	return n
}

// guessHandle classifies a descriptor by its socket domain and type.
func guessHandle(fd int) HandleType {
	typ, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_TYPE)
	if err != nil {
		return UnknownHandle
	}
	domain, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_DOMAIN)
	if err != nil {
		return UnknownHandle
	}
	switch {
	case domain == unix.AF_UNIX && typ == unix.SOCK_STREAM:
		return NamedPipeHandle
	case (domain == unix.AF_INET || domain == unix.AF_INET6) && typ == unix.SOCK_STREAM:
		return TCPHandle
	case (domain == unix.AF_INET || domain == unix.AF_INET6) && typ == unix.SOCK_DGRAM:
		return UDPHandle
	}
	return UnknownHandle
}
