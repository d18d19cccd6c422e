package ksync

import "rvkernel/pkg/process"

// noOwner is the owner PID of an unlocked mutex.
const noOwner = -1

// Mutex is a sleeping lock. It is not recursive: locking it twice from the
// same process deadlocks. Unlock does not check the caller.
type Mutex struct {
	m       *process.Manager
	locked  bool
	owner   int
	waiters process.WaitQueue
}

// NewMutex creates an unlocked mutex.
func NewMutex(m *process.Manager) *Mutex {
	mu := &Mutex{}
	mu.Init(m)
	return mu
}

// Init binds mu to m and resets it to unlocked.
func (mu *Mutex) Init(m *process.Manager) {
	mu.m = m
	mu.locked = false
	mu.owner = noOwner
	mu.waiters.Init(m)
	mu.waiters.SetUninterruptible(true)
}

func (mu *Mutex) bound() bool {
	return mu != nil && mu.m != nil
}

// Lock acquires mu, sleeping while another process holds it.
func (mu *Mutex) Lock() {
	if !mu.bound() {
		return
	}
	h := mu.m.Hart()
	flags := h.SaveDisable()
	for mu.locked {
		mu.waiters.SleepLocked()
	}
	mu.acquireLocked()
	h.Restore(flags)
}

// TryLock acquires mu without sleeping.
func (mu *Mutex) TryLock() error {
	if !mu.bound() {
		return ErrInvalid
	}
	h := mu.m.Hart()
	flags := h.SaveDisable()
	defer h.Restore(flags)
	if mu.locked {
		return ErrBusy
	}
	mu.acquireLocked()
	return nil
}

// Unlock releases mu and wakes the longest waiter.
func (mu *Mutex) Unlock() {
	if !mu.bound() {
		return
	}
	h := mu.m.Hart()
	flags := h.SaveDisable()
	mu.releaseLocked()
	h.Restore(flags)
}

// IsLocked reports whether mu is held.
func (mu *Mutex) IsLocked() bool {
	if !mu.bound() {
		return false
	}
	h := mu.m.Hart()
	flags := h.SaveDisable()
	defer h.Restore(flags)
	return mu.locked
}

// Owner returns the PID of the holder.
func (mu *Mutex) Owner() (int, bool) {
	if !mu.bound() {
		return noOwner, false
	}
	h := mu.m.Hart()
	flags := h.SaveDisable()
	defer h.Restore(flags)
	return mu.owner, mu.locked
}

// Waiters returns the number of processes blocked in Lock.
func (mu *Mutex) Waiters() int {
	if !mu.bound() {
		return 0
	}
	return mu.waiters.Count()
}

func (mu *Mutex) acquireLocked() {
	mu.locked = true
	mu.owner = mu.m.Current().PID()
}

// releaseLocked runs with the hart masked.
func (mu *Mutex) releaseLocked() {
	mu.locked = false
	mu.owner = noOwner
	mu.waiters.WakeOne()
}
