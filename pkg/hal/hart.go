package hal

import (
	"errors"
	"sync/atomic"
)

// Hart errors.
var (
	ErrInvalidVector   = errors.New("invalid interrupt vector")
	ErrVectorInUse     = errors.New("interrupt vector already registered")
	ErrNilContext      = errors.New("switch to nil context")
	ErrContextRunnable = errors.New("context already runnable")
)

// Flags is the opaque interrupt-mask token returned by SaveDisable.
type Flags uint8

const (
	// Disabled is the token for a masked hart.
	Disabled Flags = iota
	// Enabled is the token for a hart accepting interrupts.
	Enabled
)

// Vector identifies an interrupt source in the vector table.
type Vector int

const (
	// VectorTimer is the supervisor timer interrupt.
	VectorTimer Vector = iota

	numVectors
)

// String returns the vector name.
func (v Vector) String() string {
	switch v {
	case VectorTimer:
		return "timer"
	default:
		return "unknown"
	}
}

// Handler services one interrupt. It runs on the goroutine holding the hart
// with interrupts masked.
type Handler func()

// Hart is a single simulated hardware thread.
type Hart struct {
	// enabled mirrors sstatus.SIE. Only the goroutine holding the hart
	// reads or writes it.
	enabled bool
	// pending counts raised but undelivered timer interrupts.
	pending atomic.Uint32
	// irq wakes a hart parked in WaitForInterrupt.
	irq chan struct{}
	// vectors is the interrupt vector table.
	vectors [numVectors]Handler
}

// NewHart creates a hart with interrupts enabled and an empty vector table.
func NewHart() *Hart {
	return &Hart{
		enabled: true,
		irq:     make(chan struct{}, 1),
	}
}

// Register installs the handler for vector v. Each vector can be registered
// once.
func (h *Hart) Register(v Vector, fn Handler) error {
	if v < 0 || v >= numVectors || fn == nil {
		return ErrInvalidVector
	}
	if h.vectors[v] != nil {
		return ErrVectorInUse
	}
	h.vectors[v] = fn
	return nil
}

// SaveDisable masks interrupts and returns the previous mask.
func (h *Hart) SaveDisable() Flags {
	prev := Disabled
	if h.enabled {
		prev = Enabled
	}
	h.enabled = false
	return prev
}

// Restore puts back a mask returned by SaveDisable. Restoring Enabled
// delivers any interrupt that became pending while masked.
func (h *Hart) Restore(f Flags) {
	h.enabled = f == Enabled
	if h.enabled {
		h.Poll()
	}
}

// Enabled reports whether the hart currently accepts interrupts.
func (h *Hart) Enabled() bool {
	return h.enabled
}

// Raise marks a timer interrupt pending. It is safe to call from any
// goroutine.
func (h *Hart) Raise() {
	h.pending.Add(1)
	select {
	case h.irq <- struct{}{}:
	default:
	}
}

// Pending returns the number of undelivered timer interrupts.
func (h *Hart) Pending() uint32 {
	return h.pending.Load()
}

// TakePending consumes one pending interrupt, reporting whether there was
// one.
func (h *Hart) TakePending() bool {
	for {
		n := h.pending.Load()
		if n == 0 {
			return false
		}
		if h.pending.CompareAndSwap(n, n-1) {
			return true
		}
	}
}

// Poll delivers pending interrupts if the hart is unmasked. It is the
// simulated equivalent of the instruction boundary at which a real hart
// takes a trap.
func (h *Hart) Poll() {
	for h.enabled && h.TakePending() {
		h.enabled = false
		h.dispatch(VectorTimer)
		h.enabled = true
	}
}

// WaitForInterrupt parks the hart until an interrupt is raised. As with wfi,
// it returns even when the hart is masked; the caller decides whether to
// take the interrupt.
func (h *Hart) WaitForInterrupt() {
	if h.pending.Load() > 0 {
		return
	}
	<-h.irq
}

func (h *Hart) dispatch(v Vector) {
	if fn := h.vectors[v]; fn != nil {
		fn()
	}
}
