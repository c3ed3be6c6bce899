package uvloop

import (
	"sync"
)

// A token packs a slot generation above a one-based slot index, so the zero
// token is never valid and a freed slot's old tokens stop resolving.
const (
	indexBits = 16 << (^uintptr(0) >> 63)
	indexMask = 1<<indexBits - 1
	genMask   = ^uintptr(0) >> indexBits
)

type slot struct {
	value any
	gen   uintptr
	used  bool
}

// registry hands out tokens for values crossing into the reactor's opaque
// Data slots. It is shared with the thread pool's completion path, hence
// the mutex.
type registry struct {
	// onMisuse is told about stale or repeated redemptions
	onMisuse func(op string, tok uintptr)
	slots    []slot
	free     []uintptr
	live     int
	mu       sync.Mutex
}

func newRegistry(onMisuse func(op string, tok uintptr)) *registry {
	return &registry{
		onMisuse: onMisuse,
		slots:    make([]slot, 0, 64),
	}
}

// attach boxes v and returns its token.
func (r *registry) attach(v any) uintptr {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attachLocked(v)
}

func (r *registry) attachLocked(v any) uintptr {
	var idx uintptr
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		if uintptr(len(r.slots)) >= indexMask {
			// out of address space for tokens; this is the allocation boundary
			panic("uvloop: context registry exhausted")
		}
		r.slots = append(r.slots, slot{gen: 1})
		idx = uintptr(len(r.slots) - 1)
	}
	s := &r.slots[idx]
	s.value, s.used = v, true
	r.live++
	return s.gen<<indexBits | (idx + 1)
}

func (r *registry) resolveLocked(tok uintptr) *slot {
	idx := tok & indexMask
	if idx == 0 || idx > uintptr(len(r.slots)) {
		return nil
	}
	s := &r.slots[idx-1]
	if !s.used || s.gen != (tok>>indexBits)&genMask {
		return nil
	}
	return s
}

// lookup returns the value of a live token without consuming it.
func (r *registry) lookup(tok uintptr) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.resolveLocked(tok); s != nil {
		return s.value, true
	}
	return nil, false
}

// redeem consumes tok. A token resolves exactly once, later attempts report
// misuse and fail.
func (r *registry) redeem(tok uintptr) (any, bool) {
	r.mu.Lock()
	v, ok := r.redeemLocked(tok)
	r.mu.Unlock()
	if !ok {
		r.misuse("redeem", tok)
	}
	return v, ok
}

func (r *registry) redeemLocked(tok uintptr) (any, bool) {
	s := r.resolveLocked(tok)
	if s == nil {
		return nil, false
	}
	v := s.value
	s.value, s.used = nil, false
	s.gen = (s.gen + 1) & genMask
	if s.gen == 0 {
		s.gen = 1
	}
	r.free = append(r.free, tok&indexMask-1)
	r.live--
	return v, true
}

// reattach consumes tok and boxes the same value under a fresh token, for
// continuations that run more than once.
func (r *registry) reattach(tok uintptr) (uintptr, any, bool) {
	r.mu.Lock()
	v, ok := r.redeemLocked(tok)
	var next uintptr
	if ok {
		next = r.attachLocked(v)
	}
	r.mu.Unlock()
	if !ok {
		r.misuse("reattach", tok)
	}
	return next, v, ok
}

// drop discards tok if it is still live. Unlike redeem it tolerates stale
// tokens.
func (r *registry) drop(tok uintptr) bool {
	if tok == 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.redeemLocked(tok)
	return ok
}

// outstanding returns the number of live tokens.
func (r *registry) outstanding() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

func (r *registry) misuse(op string, tok uintptr) {
	if debugChecks {
		panic("uvloop: " + op + " of stale or unknown context token")
	}
	if r.onMisuse != nil {
		r.onMisuse(op, tok)
	}
}
