package uvloop

import (
	"github.com/joeycumines/go-uvloop/internal/uvcore"
	"golang.org/x/sys/unix"
)

// Standard descriptors, for Pipe.Open.
const (
	Stdin  = 0
	Stdout = 1
	Stderr = 2
	// ClusterIPC is the descriptor of the IPC channel a parent process
	// passes to workers.
	ClusterIPC = 3
)

// Pipe is a Unix domain stream socket, or a pipe adopted with Open. IPC
// pipes can pass handles with Write2 and Read2.
type Pipe struct {
	Stream
	pipe uvcore.Pipe
}

var _ Streamer = (*Pipe)(nil)

// NewPipe creates a pipe handle.
func NewPipe(l *Loop, ipc bool) (*Pipe, error) {
	if err := l.checkThread(); err != nil {
		return nil, err
	}
	p := new(Pipe)
	if rc := p.pipe.Init(l.core, ipc); rc != uvcore.OK {
		return nil, codeError(rc)
	}
	p.Stream.init(l, &p.pipe.Stream, p)
	return p, nil
}

// IPC reports whether the pipe passes handles.
func (p *Pipe) IPC() bool { return p.pipe.IPC() }

// Open adopts an existing descriptor, such as Stdin.
func (p *Pipe) Open(fd int) error {
	if err := p.check(); err != nil {
		return err
	}
	return codeError(p.pipe.Open(fd))
}

// Bind binds the pipe to a filesystem path or abstract name.
func (p *Pipe) Bind(name string) error {
	if err := p.check(); err != nil {
		return err
	}
	if name == "" {
		return ArgumentError("empty pipe name")
	}
	return codeError(p.pipe.Bind(name))
}

// Listen starts accepting connections, see TCP.Listen.
func (p *Pipe) Listen(backlog int, onConnection func(error)) {
	p.listen(backlog, onConnection, p.pipe.Listen)
}

// Connect connects to the pipe bound at name.
func (p *Pipe) Connect(name string, onConnect func(error)) {
	if onConnect == nil {
		onConnect = nopErr
	}
	if !p.begin(onConnect) {
		return
	}
	p.connect(onConnect, func(req *uvcore.ConnectReq) int {
		return p.pipe.Connect(req, name, connectTrampoline)
	})
}

// LocalName returns the name the pipe is bound to.
func (p *Pipe) LocalName() (string, error) {
	if err := p.check(); err != nil {
		return "", err
	}
	sa, rc := p.pipe.Getsockname()
	if err := codeError(rc); err != nil {
		return "", err
	}
	if un, ok := sa.(*unix.SockaddrUnix); ok {
		return un.Name, nil
	}
	return "", nil
}

// PendingCount returns the number of received handles waiting for Accept.
func (p *Pipe) PendingCount() int {
	if p.state != StateOpen {
		return 0
	}
	return p.pipe.PendingCount()
}

// PendingType returns the type of the next received handle.
func (p *Pipe) PendingType() HandleType {
	if p.state != StateOpen {
		return HandleUnknown
	}
	return HandleType(p.pipe.PendingType())
}

// Accept takes a pending connection, or on an IPC pipe the next received
// handle, which must match the type of into.
func (p *Pipe) Accept(into Streamer) error {
	if p.IPC() && p.state == StateOpen && into != nil {
		if p.pipe.PendingCount() == 0 {
			return ErrNoPendingCount
		}
		if p.PendingType() != into.Type() {
			return ErrPendingTypeMismatch
		}
	}
	return p.Stream.Accept(into)
}

// Write2 sends the handle send over this IPC pipe, along with a single byte
// of data.
func (p *Pipe) Write2(send Streamer, onWrite func(error)) {
	if onWrite == nil {
		onWrite = nopErr
	}
	if send == nil {
		p.loop.fail(ArgumentError("nil handle to send"), onWrite)
		return
	}
	if err := send.stream().check(); err != nil {
		p.loop.fail(err, onWrite)
		return
	}
	p.write(write2Payload, send.stream().sc, onWrite)
}

var write2Payload = []byte{'a'}

// Read2 reads from an IPC pipe, calling onPending after every read with the
// pipe itself once a handle of type pendingType is queued, ready for Accept.
// Without a queued handle the call carries ErrNoPendingCount, with one of
// another type ErrPendingTypeMismatch. Stream end is reported as ErrEOF.
func (p *Pipe) Read2(pendingType HandleType, onPending func(*Pipe, error)) {
	if onPending == nil {
		return
	}
	p.read(func(_ Buffer, err error) {
		switch {
		case err != nil:
			onPending(nil, err)
		case p.pipe.PendingCount() <= 0:
			onPending(nil, ErrNoPendingCount)
		case p.PendingType() != pendingType:
			onPending(nil, ErrPendingTypeMismatch)
		default:
			onPending(p, nil)
		}
	})
}
