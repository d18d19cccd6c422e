/*
Package process implements the process lifecycle and the preemptive
round-robin scheduler of a single-hart kernel.

The process table is a fixed array of slots. PID 0 is init, the boot thread
that calls NewManager; it runs whenever nothing else can and may never exit.
Every other process is created by Create and runs its entry function as a
kernel thread.

# Process States

	UNUSED -> EMBRYO -> READY <-> RUNNING -> ZOMBIE -> UNUSED
	                       ^         |
	                       +-SLEEPING<+

  - Embryo: slot claimed, stack and trap frame being allocated
  - Ready: linked into the ready queue
  - Running: owns the hart; exactly one process at a time
  - Sleeping: blocked on a wait queue or in Sleep
  - Zombie: exited, exit code kept until the parent reaps it with Wait

Any other transition means the table is corrupt and raises a KernelPanic.

# Scheduling

Each timer tick, and each explicit Schedule or Yield, charges the current
process one step of its time slice. When the slice runs out, or the current
process stops running, the head of the FIFO ready queue is dispatched. With
nothing ready the hart waits for an interrupt.

All kernel state is guarded by masking interrupts on the hart. A process runs
on its own goroutine but only while it holds the hart, so there is no other
locking:

	flags := m.Hart().SaveDisable()
	for !ready {
		q.SleepLocked()
	}
	m.Hart().Restore(flags)

# Usage

	m, err := process.NewManager(cfg.Kernel, process.WithLogger(logger))
	if err != nil {
		// Handle error
	}

	p, err := m.Create("worker", func(arg any) {
		m.SleepTicks(5)
	}, nil)

	pid, code, err := m.Wait(p.PID())

Entry functions run on a goroutine that is discarded when the process is
freed. They must not defer calls into the kernel.

# Signals

Signals are posted with Signal and delivered when the target next returns
from the kernel with interrupts enabled. SignalKill tears down a blocked or
runnable process at once. Ignored signals do not wake sleepers, and neither
does anything but SignalKill wake a process on an uninterruptible wait
queue, which the lock primitives use. SleepTicks ends early for a
deliverable signal.
*/
package process
