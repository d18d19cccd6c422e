// Package ksync provides the blocking synchronization primitives of the
// kernel: Mutex, Semaphore, Cond and a writer-priority RWLock.
//
// Every primitive is built on a process.WaitQueue and the hart's interrupt
// mask. A blocking call checks its condition and links the caller into the
// wait queue in one masked section, and only the switch away releases the
// mask, so a release racing with the check cannot be lost.
//
// Waiters sleep uninterruptibly: posting a signal leaves them queued in FIFO
// order, and the signal is taken at the next interruptible point after the
// call returns. SignalKill still removes a waiter.
//
// Primitives are usually embedded in their owner and bound with Init:
//
//	type pipe struct {
//		mu       ksync.Mutex
//		notEmpty ksync.Cond
//	}
//
//	p.mu.Init(m)
//	p.notEmpty.Init(m)
//
// Methods on a nil or unbound primitive return ErrInvalid where they have a
// result and do nothing otherwise.
package ksync

import "errors"

// Synchronization errors.
var (
	ErrInvalid    = errors.New("invalid synchronization object")
	ErrBusy       = errors.New("resource busy")
	ErrWouldBlock = errors.New("operation would block")
)
