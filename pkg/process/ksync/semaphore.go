package ksync

import "rvkernel/pkg/process"

// Semaphore is a counting semaphore. The count never goes negative.
type Semaphore struct {
	m       *process.Manager
	count   int
	waiters process.WaitQueue
}

// NewSemaphore creates a semaphore holding n units. A negative n is treated
// as zero.
func NewSemaphore(m *process.Manager, n int) *Semaphore {
	s := &Semaphore{}
	s.Init(m, n)
	return s
}

// Init binds s to m with n units.
func (s *Semaphore) Init(m *process.Manager, n int) {
	s.m = m
	s.count = max(n, 0)
	s.waiters.Init(m)
	s.waiters.SetUninterruptible(true)
}

func (s *Semaphore) bound() bool {
	return s != nil && s.m != nil
}

// Wait takes one unit, sleeping until one is available.
func (s *Semaphore) Wait() {
	if !s.bound() {
		return
	}
	h := s.m.Hart()
	flags := h.SaveDisable()
	for s.count == 0 {
		s.waiters.SleepLocked()
	}
	s.count--
	h.Restore(flags)
}

// TryWait takes one unit without sleeping.
func (s *Semaphore) TryWait() error {
	if !s.bound() {
		return ErrInvalid
	}
	h := s.m.Hart()
	flags := h.SaveDisable()
	defer h.Restore(flags)
	if s.count == 0 {
		return ErrWouldBlock
	}
	s.count--
	return nil
}

// Signal returns one unit and wakes the longest waiter.
func (s *Semaphore) Signal() {
	if !s.bound() {
		return
	}
	h := s.m.Hart()
	flags := h.SaveDisable()
	s.count++
	s.waiters.WakeOne()
	h.Restore(flags)
}

// Count returns the available units.
func (s *Semaphore) Count() int {
	if !s.bound() {
		return 0
	}
	h := s.m.Hart()
	flags := h.SaveDisable()
	defer h.Restore(flags)
	return s.count
}
