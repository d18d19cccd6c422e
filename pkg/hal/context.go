package hal

import (
	"runtime"
	"sync"
)

// Context is the kernel context of one process: the state needed to resume
// kernel-mode execution after a switch. RA and SP are kept for diagnostics;
// the live register state is the parked goroutine itself.
type Context struct {
	// RA is the address execution resumes at on first dispatch.
	RA uintptr
	// SP is the top of the kernel stack.
	SP uintptr

	resume  chan struct{}
	retired chan struct{}
	once    sync.Once
}

// NewContext creates a parked context.
func NewContext(ra, sp uintptr) *Context {
	return &Context{
		RA:      ra,
		SP:      sp,
		resume:  make(chan struct{}, 1),
		retired: make(chan struct{}),
	}
}

// Park blocks the calling goroutine until the context is switched to. If the
// context is retired while parked, the goroutine exits.
func (c *Context) Park() {
	select {
	case <-c.resume:
	case <-c.retired:
		runtime.Goexit()
	}
}

// Retire releases a context that will never run again. Its parked goroutine,
// if any, exits.
func (c *Context) Retire() {
	c.once.Do(func() { close(c.retired) })
}

// Switch saves the outgoing context and resumes next. It returns only when
// some later Switch resumes old. A nil old means the caller gives up the hart
// for good and must not touch kernel state afterwards.
func (h *Hart) Switch(old, next *Context) {
	if next == nil {
		panic(ErrNilContext)
	}
	select {
	case next.resume <- struct{}{}:
	default:
		panic(ErrContextRunnable)
	}
	if old != nil {
		old.Park()
	}
}
