package process

import (
	"rvkernel/pkg/hal"
	"rvkernel/pkg/mm"
)

// NoParent is the parent handle of init.
const NoParent = -1

// sstatus bits seeded into a new trap frame: SPP (supervisor) and SPIE
// (interrupts on after sret).
const (
	sstatusSPIE uint64 = 1 << 5
	sstatusSPP  uint64 = 1 << 8
)

// Register indices into TrapFrame.Regs.
const (
	RegSP = 2
	RegA0 = 10
)

// EntryFunc is the body of a process. Returning from it exits with code 0.
type EntryFunc func(arg any)

// TrapFrame is the saved user-mode register set. It is allocated apart from
// the kernel stack and owned by the process until it is freed.
type TrapFrame struct {
	// Regs holds x0-x31.
	Regs [32]uint64
	// Sepc is the resume program counter.
	Sepc uintptr
	// Sstatus is the saved supervisor status.
	Sstatus uint64

	entry EntryFunc
	arg   any
}

// take hands the entry continuation to the trampoline exactly once.
func (tf *TrapFrame) take() (EntryFunc, any) {
	entry, arg := tf.entry, tf.arg
	tf.entry, tf.arg = nil, nil
	return entry, arg
}

// Process is one slot of the process table. Slots are reused, so code that
// must survive the process being reaped holds its PID and resolves it with
// Manager.Get.
type Process struct {
	slot     int
	pid      int
	name     string
	state    State
	priority int
	cpuTime  uint64
	// parent is a weak handle: a PID that may no longer resolve.
	parent   int
	exitCode int
	limits   Limits
	limitHit bool
	// reason describes why the process sleeps, for the process dump.
	reason string

	ctx       *hal.Context
	trapFrame *TrapFrame
	stack     *mm.Block
	frame     *mm.Block
	userStack *mm.Block
	pageTable *mm.PageTable

	// wq is the wait queue this process is linked into, if any.
	wq *WaitQueue
	// uninterruptible is set while sleeping on a queue signals must not
	// wake.
	uninterruptible bool
	// children is where this process sleeps in Wait.
	children WaitQueue
	signals  signalState
}

// PID returns the process identifier.
func (p *Process) PID() int { return p.pid }

// Name returns the process name.
func (p *Process) Name() string { return p.name }

// State returns the lifecycle state.
func (p *Process) State() State { return p.state }

// Priority returns the informational priority. Lower is higher.
func (p *Process) Priority() int { return p.priority }

// CPUTime returns the number of timer ticks consumed while running.
func (p *Process) CPUTime() uint64 { return p.cpuTime }

// ParentPID returns the weak parent handle.
func (p *Process) ParentPID() int { return p.parent }

// ExitCode returns the exit status. It is only meaningful for zombies.
func (p *Process) ExitCode() int { return p.exitCode }

// SleepReason returns what a sleeping process waits for.
func (p *Process) SleepReason() string { return p.reason }

// TrapFrame returns the saved user register set.
func (p *Process) TrapFrame() *TrapFrame { return p.trapFrame }

// Context returns the kernel context.
func (p *Process) Context() *hal.Context { return p.ctx }

// PageTable returns the address space root.
func (p *Process) PageTable() *mm.PageTable { return p.pageTable }

// IsAlive returns true if the process has not exited.
func (p *Process) IsAlive() bool {
	return p.state != StateUnused && p.state != StateZombie
}

// IsRunnable returns true if the process can be scheduled.
func (p *Process) IsRunnable() bool {
	return p.state == StateReady || p.state == StateRunning
}

// Info is a copy of a process slot for the process dump.
type Info struct {
	PID      int
	Parent   int
	Name     string
	State    State
	Priority int
	CPUTime  uint64
	ExitCode int
	Reason   string
}

func (p *Process) info() Info {
	return Info{
		PID:      p.pid,
		Parent:   p.parent,
		Name:     p.name,
		State:    p.state,
		Priority: p.priority,
		CPUTime:  p.cpuTime,
		ExitCode: p.exitCode,
		Reason:   p.reason,
	}
}

// reset returns the slot to its pristine Unused form.
func (p *Process) reset() {
	slot := p.slot
	*p = Process{slot: slot, pid: -1, parent: NoParent}
}
