package ksync

import "rvkernel/pkg/process"

// Cond is a condition variable used with a Mutex the caller holds.
type Cond struct {
	m       *process.Manager
	waiters process.WaitQueue
}

// NewCond creates a condition variable.
func NewCond(m *process.Manager) *Cond {
	c := &Cond{}
	c.Init(m)
	return c
}

// Init binds c to m.
func (c *Cond) Init(m *process.Manager) {
	c.m = m
	c.waiters.Init(m)
	c.waiters.SetUninterruptible(true)
}

func (c *Cond) bound() bool {
	return c != nil && c.m != nil
}

// Wait releases mu, sleeps until signalled and reacquires mu before
// returning. The release and the sleep happen in one masked section, so a
// Signal issued by whoever takes mu next always finds the caller queued.
// Wakeups can be spurious; callers wait in a loop.
func (c *Cond) Wait(mu *Mutex) {
	if !c.bound() || !mu.bound() {
		return
	}
	h := c.m.Hart()
	flags := h.SaveDisable()
	mu.releaseLocked()
	c.waiters.SleepLocked()
	h.Restore(flags)
	mu.Lock()
}

// Signal wakes the longest waiter.
func (c *Cond) Signal() {
	if !c.bound() {
		return
	}
	c.waiters.WakeOne()
}

// Broadcast wakes every waiter.
func (c *Cond) Broadcast() {
	if !c.bound() {
		return
	}
	c.waiters.Wake()
}

// Waiters returns the number of processes blocked in Wait.
func (c *Cond) Waiters() int {
	if !c.bound() {
		return 0
	}
	return c.waiters.Count()
}

// Destroy releases c. Nobody may be waiting.
func (c *Cond) Destroy() {}
