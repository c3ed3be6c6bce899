package uvloop

import (
	"github.com/eapache/queue"
	"github.com/joeycumines/go-uvloop/internal/uvcore"
)

// Idle runs queued tasks, one per loop iteration, oldest first. The
// underlying idle handle is only active while started with tasks queued, so
// an empty queue never keeps the loop spinning.
type Idle struct {
	handleBase
	idle    uvcore.Idle
	tasks   *queue.Queue
	started bool
}

var _ Handle = (*Idle)(nil)

// NewIdle creates a stopped idle handle with an empty queue.
func NewIdle(l *Loop) (*Idle, error) {
	if err := l.checkThread(); err != nil {
		return nil, err
	}
	h := &Idle{tasks: queue.New()}
	if rc := h.idle.Init(l.core); rc != uvcore.OK {
		return nil, codeError(rc)
	}
	h.handleBase.init(l, &h.idle.Handle, h, h.onClosing)
	return h, nil
}

// Append queues task.
func (h *Idle) Append(task func()) error {
	if err := h.check(); err != nil {
		return err
	}
	if task == nil {
		return ArgumentError("nil idle task")
	}
	h.tasks.Add(task)
	return h.sync()
}

// Start begins draining the queue.
func (h *Idle) Start() error {
	if err := h.check(); err != nil {
		return err
	}
	h.started = true
	return h.sync()
}

// Stop pauses draining. Queued tasks are kept.
func (h *Idle) Stop() error {
	if err := h.check(); err != nil {
		return err
	}
	h.started = false
	return h.sync()
}

// Len returns the number of queued tasks.
func (h *Idle) Len() int { return h.tasks.Length() }

// IsStarted reports whether Start was called without a later Stop.
func (h *Idle) IsStarted() bool { return h.started }

// sync activates the idle handle exactly while there is work to drain.
func (h *Idle) sync() error {
	if h.started && h.tasks.Length() > 0 {
		if !h.idle.IsActive() {
			return codeError(h.idle.Start(idleTrampoline))
		}
		return nil
	}
	return codeError(h.idle.Stop())
}

func (h *Idle) onClosing() {
	if n := h.tasks.Length(); n != 0 {
		h.loop.diag.debug().Int("tasks", n).Log("uvloop: idle closed with queued tasks")
	}
	h.tasks = queue.New()
}

func idleTrampoline(ci *uvcore.Idle) {
	l, owner := ownerOf(&ci.Handle)
	if l == nil {
		return
	}
	h, ok := owner.(*Idle)
	if !ok {
		return
	}
	if h.tasks.Length() == 0 {
		h.idle.Stop()
		return
	}
	task := h.tasks.Remove().(func())
	if h.tasks.Length() == 0 {
		h.idle.Stop()
	}
	l.invoke(task)
}
