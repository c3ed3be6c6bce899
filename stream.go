package uvloop

import (
	"github.com/joeycumines/go-uvloop/internal/uvcore"
)

// Streamer is implemented by the connection-oriented handles, TCP and Pipe.
type Streamer interface {
	Handle
	stream() *Stream
}

// Stream is the read, write, shutdown and accept capability shared by TCP
// and Pipe. It is embedded, never constructed on its own.
type Stream struct {
	handleBase
	sc        *uvcore.Stream
	allocSize func(suggested int) int
	// live tokens of the multi-shot continuations
	readTok   uintptr
	listenTok uintptr
}

func (s *Stream) init(l *Loop, cs *uvcore.Stream, owner Streamer) {
	s.sc = cs
	s.handleBase.init(l, &cs.Handle, owner, s.onClosing)
}

func (s *Stream) stream() *Stream { return s }

// IsReadable reports whether the stream can be read from.
func (s *Stream) IsReadable() bool { return s.state == StateOpen && s.sc.IsReadable() }

// IsWritable reports whether the stream can be written to.
func (s *Stream) IsWritable() bool { return s.state == StateOpen && s.sc.IsWritable() }

// WriteQueueSize returns the number of bytes waiting to be written.
func (s *Stream) WriteQueueSize() int { return s.sc.WriteQueueSize() }

// Fd returns the underlying descriptor, or -1.
func (s *Stream) Fd() int { return s.sc.Fileno() }

// SetAllocSize sets the function sizing read buffers from the suggested size
// (64 KiB). A nil fn restores the default.
func (s *Stream) SetAllocSize(fn func(suggested int) int) { s.allocSize = fn }

func (s *Stream) allocLen(suggested int) int {
	if s.allocSize == nil {
		return suggested
	}
	return s.allocSize(suggested)
}

// Read starts reading. onRead is called once per chunk with a buffer that is
// only valid during the call, and finally with ErrEOF or another error.
// Calling Read while reading replaces the continuation.
func (s *Stream) Read(onRead func(Buffer, error)) {
	if onRead == nil {
		return
	}
	s.read(onRead)
}

func (s *Stream) read(onRead func(Buffer, error)) {
	fail := func(err error) { onRead(Buffer{}, err) }
	if !s.begin(fail) {
		return
	}
	tok := s.loop.reg.attach(onRead)
	if rc := s.sc.ReadStart(allocTrampoline, readTrampoline); rc != uvcore.OK {
		s.loop.reg.drop(tok)
		s.loop.fail(codeError(rc), fail)
		return
	}
	s.loop.reg.drop(s.readTok)
	s.readTok = tok
}

// ReadStop stops reading. The read continuation is discarded.
func (s *Stream) ReadStop() error {
	if err := s.check(); err != nil {
		return err
	}
	s.loop.reg.drop(s.readTok)
	s.readTok = 0
	return codeError(s.sc.ReadStop())
}

// Write queues data. Writes on a stream complete, and reach the wire, in
// the order they were issued. data must not be modified until onWrite runs.
// onWrite may be nil.
func (s *Stream) Write(data []byte, onWrite func(error)) {
	s.write(data, nil, onWrite)
}

func (s *Stream) write(data []byte, send *uvcore.Stream, onWrite func(error)) {
	if onWrite == nil {
		onWrite = nopErr
	}
	if !s.begin(onWrite) {
		return
	}
	req := uvcore.NewWriteReq()
	var g reqGuard
	g.init(s.loop, &req.Req, req.Free, onWrite)
	defer g.release()
	if rc := s.sc.Write2(req, [][]byte{data}, send, writeTrampoline); rc != uvcore.OK {
		s.loop.fail(codeError(rc), onWrite)
		return
	}
	g.disarm()
}

// Shutdown half-closes the stream once every queued write is flushed.
func (s *Stream) Shutdown(onShutdown func(error)) {
	if onShutdown == nil {
		onShutdown = nopErr
	}
	if !s.begin(onShutdown) {
		return
	}
	req := uvcore.NewShutdownReq()
	var g reqGuard
	g.init(s.loop, &req.Req, req.Free, onShutdown)
	defer g.release()
	if rc := s.sc.Shutdown(req, shutdownTrampoline); rc != uvcore.OK {
		s.loop.fail(codeError(rc), onShutdown)
		return
	}
	g.disarm()
}

// Accept moves one pending connection into into, a freshly created handle of
// the same loop.
func (s *Stream) Accept(into Streamer) error {
	if err := s.check(); err != nil {
		return err
	}
	if into == nil {
		return ArgumentError("nil accept target")
	}
	c := into.stream()
	if err := c.check(); err != nil {
		return err
	}
	return codeError(s.sc.Accept(c.sc))
}

func (s *Stream) listen(backlog int, onConnection func(error), start func(int, uvcore.ConnectionCb) int) {
	if onConnection == nil {
		return
	}
	if !s.begin(onConnection) {
		return
	}
	if backlog <= 0 {
		backlog = s.loop.opts.listenBacklog
	}
	tok := s.loop.reg.attach(onConnection)
	if rc := start(backlog, connectionTrampoline); rc != uvcore.OK {
		s.loop.reg.drop(tok)
		s.loop.fail(codeError(rc), onConnection)
		return
	}
	s.loop.reg.drop(s.listenTok)
	s.listenTok = tok
	s.loop.diag.debug().Int("backlog", backlog).Stringer("type", s.Type()).Log("uvloop: listening")
}

func (s *Stream) connect(onConnect func(error), start func(*uvcore.ConnectReq) int) {
	req := uvcore.NewConnectReq()
	var g reqGuard
	g.init(s.loop, &req.Req, req.Free, onConnect)
	defer g.release()
	if rc := start(req); rc != uvcore.OK {
		s.loop.fail(codeError(rc), onConnect)
		return
	}
	g.disarm()
}

// onClosing ends a pending read with ErrClosedHandle. A listen continuation
// is dropped without a call.
func (s *Stream) onClosing() {
	s.loop.reg.drop(s.listenTok)
	s.listenTok = 0
	if s.readTok == 0 {
		return
	}
	v, ok := s.loop.reg.redeem(s.readTok)
	s.readTok = 0
	if ok {
		cont := v.(func(Buffer, error))
		s.loop.invoke(func() { cont(Buffer{}, ErrClosedHandle) })
	}
}

type allocSizer interface {
	allocLen(suggested int) int
}

func allocTrampoline(h *uvcore.Handle, suggested int) []byte {
	l, owner := ownerOf(h)
	if l == nil {
		return nil
	}
	size := suggested
	if a, ok := owner.(allocSizer); ok {
		size = a.allocLen(suggested)
	}
	return l.buffers.get(size)
}

func readTrampoline(cs *uvcore.Stream, nread int, buf []byte) {
	l, owner := ownerOf(&cs.Handle)
	if l == nil {
		return
	}
	defer l.buffers.put(buf)
	so, ok := owner.(Streamer)
	if !ok || nread == 0 || so.stream().readTok == 0 {
		return
	}
	s := so.stream()
	if nread < 0 {
		// the reactor stopped reading, the continuation sees its last call
		tok := s.readTok
		s.readTok = 0
		v, ok := l.reg.redeem(tok)
		if !ok {
			return
		}
		cont := v.(func(Buffer, error))
		err := codeError(nread)
		l.invoke(func() { cont(Buffer{}, err) })
		return
	}
	tok, v, ok := l.reg.reattach(s.readTok)
	if !ok {
		s.readTok = 0
		return
	}
	s.readTok = tok
	cont := v.(func(Buffer, error))
	data := Buffer{b: buf[:nread]}
	l.invoke(func() { cont(data, nil) })
}

func connectionTrampoline(server *uvcore.Stream, status int) {
	l, owner := ownerOf(&server.Handle)
	so, ok := owner.(Streamer)
	if !ok {
		return
	}
	s := so.stream()
	tok, v, ok := l.reg.reattach(s.listenTok)
	if !ok {
		s.listenTok = 0
		return
	}
	s.listenTok = tok
	cont := v.(func(error))
	err := codeError(status)
	l.invoke(func() { cont(err) })
}

func writeTrampoline(req *uvcore.WriteReq, status int) {
	completeErr(req.Handle().Loop(), req.Data, req.Free, status)
}

func shutdownTrampoline(req *uvcore.ShutdownReq, status int) {
	completeErr(req.Handle().Loop(), req.Data, req.Free, status)
}

func connectTrampoline(req *uvcore.ConnectReq, status int) {
	completeErr(req.Handle().Loop(), req.Data, req.Free, status)
}
