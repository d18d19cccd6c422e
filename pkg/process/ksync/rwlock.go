package ksync

import "rvkernel/pkg/process"

// RWLock is a reader-writer lock with writer priority: once a writer waits,
// no new reader gets in until it has had the lock.
type RWLock struct {
	m              *process.Manager
	readers int
	writer  bool
	// waitingWriters holds the PIDs blocked in WriteLock. PIDs are never
	// reused, so a writer killed while queued is recognized and dropped.
	waitingWriters []int
	readerQ        process.WaitQueue
	writerQ        process.WaitQueue
}

// NewRWLock creates an unlocked RWLock.
func NewRWLock(m *process.Manager) *RWLock {
	rw := &RWLock{}
	rw.Init(m)
	return rw
}

// Init binds rw to m and resets it.
func (rw *RWLock) Init(m *process.Manager) {
	rw.m = m
	rw.readers = 0
	rw.writer = false
	rw.waitingWriters = nil
	rw.readerQ.Init(m)
	rw.writerQ.Init(m)
	rw.readerQ.SetUninterruptible(true)
	rw.writerQ.SetUninterruptible(true)
}

func (rw *RWLock) bound() bool {
	return rw != nil && rw.m != nil
}

func (rw *RWLock) readBlocked() bool {
	return rw.writer || rw.writersWaitingLocked() > 0
}

// writersWaitingLocked drops writers that died while queued and returns how
// many remain.
func (rw *RWLock) writersWaitingLocked() int {
	live := rw.waitingWriters[:0]
	for _, pid := range rw.waitingWriters {
		if p, err := rw.m.Get(pid); err == nil && p.IsAlive() {
			live = append(live, pid)
		}
	}
	rw.waitingWriters = live
	return len(live)
}

func (rw *RWLock) dropWaitingWriter(pid int) {
	for i, w := range rw.waitingWriters {
		if w == pid {
			rw.waitingWriters = append(rw.waitingWriters[:i], rw.waitingWriters[i+1:]...)
			return
		}
	}
}

// ReadLock takes a shared hold.
func (rw *RWLock) ReadLock() {
	if !rw.bound() {
		return
	}
	h := rw.m.Hart()
	flags := h.SaveDisable()
	for rw.readBlocked() {
		rw.readerQ.SleepLocked()
	}
	rw.readers++
	// Readers stranded behind a writer that has since died follow us in.
	if !rw.readerQ.Empty() {
		rw.readerQ.Wake()
	}
	h.Restore(flags)
}

// ReadTryLock takes a shared hold without sleeping.
func (rw *RWLock) ReadTryLock() error {
	if !rw.bound() {
		return ErrInvalid
	}
	h := rw.m.Hart()
	flags := h.SaveDisable()
	defer h.Restore(flags)
	if rw.readBlocked() {
		return ErrBusy
	}
	rw.readers++
	return nil
}

// ReadUnlock drops a shared hold. The last reader out hands the lock to a
// waiting writer.
func (rw *RWLock) ReadUnlock() {
	if !rw.bound() {
		return
	}
	h := rw.m.Hart()
	flags := h.SaveDisable()
	if rw.readers > 0 {
		rw.readers--
	}
	if rw.readers == 0 && rw.writersWaitingLocked() > 0 {
		rw.writerQ.WakeOne()
	}
	h.Restore(flags)
}

// WriteLock takes the exclusive hold.
func (rw *RWLock) WriteLock() {
	if !rw.bound() {
		return
	}
	h := rw.m.Hart()
	flags := h.SaveDisable()
	self := rw.m.Current().PID()
	rw.waitingWriters = append(rw.waitingWriters, self)
	for rw.readers > 0 || rw.writer {
		rw.writerQ.SleepLocked()
	}
	rw.dropWaitingWriter(self)
	rw.writer = true
	h.Restore(flags)
}

// WriteTryLock takes the exclusive hold without sleeping.
func (rw *RWLock) WriteTryLock() error {
	if !rw.bound() {
		return ErrInvalid
	}
	h := rw.m.Hart()
	flags := h.SaveDisable()
	defer h.Restore(flags)
	if rw.readers > 0 || rw.writer {
		return ErrBusy
	}
	rw.writer = true
	return nil
}

// WriteUnlock drops the exclusive hold. All waiting readers are woken; they
// go back to sleep if another writer is still queued, which is then woken
// too.
func (rw *RWLock) WriteUnlock() {
	if !rw.bound() {
		return
	}
	h := rw.m.Hart()
	flags := h.SaveDisable()
	rw.writer = false
	rw.readerQ.Wake()
	if rw.readers == 0 && rw.writersWaitingLocked() > 0 {
		rw.writerQ.WakeOne()
	}
	h.Restore(flags)
}

// ReaderCount returns the number of shared holders.
func (rw *RWLock) ReaderCount() int {
	if !rw.bound() {
		return 0
	}
	h := rw.m.Hart()
	flags := h.SaveDisable()
	defer h.Restore(flags)
	return rw.readers
}

// IsWriteLocked reports whether a writer holds rw.
func (rw *RWLock) IsWriteLocked() bool {
	if !rw.bound() {
		return false
	}
	h := rw.m.Hart()
	flags := h.SaveDisable()
	defer h.Restore(flags)
	return rw.writer
}

// WritersWaiting returns the number of writers blocked in WriteLock.
func (rw *RWLock) WritersWaiting() int {
	if !rw.bound() {
		return 0
	}
	h := rw.m.Hart()
	flags := h.SaveDisable()
	defer h.Restore(flags)
	return rw.writersWaitingLocked()
}
