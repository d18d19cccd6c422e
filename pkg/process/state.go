package process

import (
	"errors"
	"fmt"
)

// State transition errors.
var (
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrProcessNotFound   = errors.New("process not found")
	ErrProcessRunning    = errors.New("process is still running")
)

// State is the lifecycle state of a process slot.
type State int

const (
	// StateUnused marks a free table slot.
	StateUnused State = iota
	// StateEmbryo is a slot being set up by Create.
	StateEmbryo
	// StateReady means runnable and linked into the ready queue.
	StateReady
	// StateRunning is the single process that owns the hart.
	StateRunning
	// StateSleeping means blocked until woken.
	StateSleeping
	// StateZombie means exited; the exit code is valid until reaped.
	StateZombie
)

// String returns the upper-case state name used by the process dump.
func (s State) String() string {
	switch s {
	case StateUnused:
		return "UNUSED"
	case StateEmbryo:
		return "EMBRYO"
	case StateReady:
		return "READY"
	case StateRunning:
		return "RUNNING"
	case StateSleeping:
		return "SLEEPING"
	case StateZombie:
		return "ZOMBIE"
	default:
		return "UNKNOWN"
	}
}

// StateTransition represents a valid state transition.
type StateTransition struct {
	From State
	To   State
}

// ValidTransitions defines all valid state transitions.
var ValidTransitions = []StateTransition{
	// Slot allocated by Create.
	{From: StateUnused, To: StateEmbryo},
	// Setup complete.
	{From: StateEmbryo, To: StateReady},
	// Setup failed, slot rolled back.
	{From: StateEmbryo, To: StateUnused},
	// Dispatch.
	{From: StateReady, To: StateRunning},
	// Preempt or yield.
	{From: StateRunning, To: StateReady},
	// Blocking call.
	{From: StateRunning, To: StateSleeping},
	// Event.
	{From: StateSleeping, To: StateReady},
	// Exit.
	{From: StateRunning, To: StateZombie},
	// Killed while blocked or runnable.
	{From: StateSleeping, To: StateZombie},
	{From: StateReady, To: StateZombie},
	// Reaped.
	{From: StateZombie, To: StateUnused},
}

// IsValidTransition checks if a state transition is valid.
func IsValidTransition(from, to State) bool {
	for _, t := range ValidTransitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}

// CanTransition checks if a process can transition to the given state.
func (p *Process) CanTransition(to State) bool {
	return IsValidTransition(p.state, to)
}

// transitionTo moves p to a new state. The caller holds the hart masked.
func (p *Process) transitionTo(to State) error {
	if !IsValidTransition(p.state, to) {
		return fmt.Errorf("pid %d %s -> %s: %w", p.pid, p.state, to, ErrInvalidTransition)
	}
	p.state = to
	return nil
}

// setState applies a transition. An invalid transition means the table or
// ready queue is corrupt, so it halts the kernel.
func (m *Manager) setState(p *Process, to State) {
	if err := p.transitionTo(to); err != nil {
		m.fatal("%v", err)
	}
}
