package process

import "rvkernel/pkg/mm"

// waitEntrySize is the heap footprint of one wait-queue link: a process
// pointer and a next pointer.
const waitEntrySize = 16

type waitEntry struct {
	proc  *Process
	next  *waitEntry
	block *mm.Block
}

// WaitQueue is a FIFO of sleeping processes. Links are allocated from the
// kernel heap on Sleep and freed when the process leaves the queue, so a
// queue costs nothing while empty. All methods mask interrupts around their
// critical sections; SleepLocked is for callers that already hold the hart
// masked.
//
// The zero value is not usable; use NewWaitQueue or Init.
type WaitQueue struct {
	m    *Manager
	head *waitEntry
	tail *waitEntry
	n    int
	// uninterruptible sleepers are not woken by signals.
	uninterruptible bool
}

// NewWaitQueue creates an empty wait queue bound to m.
func (m *Manager) NewWaitQueue() *WaitQueue {
	q := &WaitQueue{}
	q.Init(m)
	return q
}

// Init resets q to empty and binds it to m. Any linked entries are dropped.
// The queue starts out interruptible.
func (q *WaitQueue) Init(m *Manager) {
	q.m = m
	q.head = nil
	q.tail = nil
	q.n = 0
	q.uninterruptible = false
}

// SetUninterruptible controls whether a posted signal wakes processes
// sleeping on q. Lock waiters use uninterruptible queues so a signal cannot
// cost them their place in line; the signal stays pending until the process
// next passes an interruptible sleep, Yield or Checkpoint. SignalKill still
// tears the sleeper down.
func (q *WaitQueue) SetUninterruptible(on bool) {
	if q == nil {
		return
	}
	q.uninterruptible = on
}

// Sleep appends the current process to q and blocks until woken.
func (q *WaitQueue) Sleep() {
	if q == nil || q.m == nil {
		return
	}
	flags := q.m.hart.SaveDisable()
	q.SleepLocked()
	q.m.hart.Restore(flags)
	q.m.deliverSignals()
}

// SleepLocked is Sleep for a caller that already masked interrupts and
// checked its wait condition in the same masked section. The mask is given
// up only by the switch away, so no wake-up can slip in between the check and
// the sleep. It returns false, after yielding once, if the link could not be
// allocated; the caller should recheck its condition.
func (q *WaitQueue) SleepLocked() bool {
	if q == nil || q.m == nil {
		return false
	}
	m := q.m
	p := m.current
	if p == nil {
		return false
	}

	block, err := m.heap.Alloc(waitEntrySize)
	if err != nil {
		m.logger.Warn("wait queue entry allocation failed, yielding", "pid", p.pid, "error", err)
		m.scheduleLocked()
		return false
	}
	e := &waitEntry{proc: p, block: block}
	if q.tail == nil {
		q.head = e
	} else {
		q.tail.next = e
	}
	q.tail = e
	q.n++
	p.wq = q
	p.uninterruptible = q.uninterruptible

	if p.reason == "" {
		p.reason = "waitqueue"
	}
	m.setState(p, StateSleeping)
	m.ready.Remove(p)
	m.scheduleLocked()
	return true
}

// Wake makes every sleeping process on q ready, in FIFO order, and empties
// the queue. It returns the number woken.
func (q *WaitQueue) Wake() int {
	if q == nil || q.m == nil {
		return 0
	}
	flags := q.m.hart.SaveDisable()
	defer q.m.hart.Restore(flags)

	woken := 0
	for q.head != nil {
		if q.wakeHead() {
			woken++
		}
	}
	return woken
}

// WakeOne makes the head of q ready. It reports whether a process was woken.
func (q *WaitQueue) WakeOne() bool {
	if q == nil || q.m == nil {
		return false
	}
	flags := q.m.hart.SaveDisable()
	defer q.m.hart.Restore(flags)

	for q.head != nil {
		if q.wakeHead() {
			return true
		}
	}
	return false
}

// wakeHead unlinks the head entry and wakes its process if it still sleeps.
func (q *WaitQueue) wakeHead() bool {
	e := q.head
	q.unlinkEntry(nil, e)
	return q.m.wakeupLocked(e.proc)
}

// Remove unlinks p from q without changing its state. It reports whether p
// was queued.
func (q *WaitQueue) Remove(p *Process) bool {
	if q == nil || q.m == nil || p == nil {
		return false
	}
	flags := q.m.hart.SaveDisable()
	defer q.m.hart.Restore(flags)
	return q.remove(p)
}

func (q *WaitQueue) remove(p *Process) bool {
	var prev *waitEntry
	for e := q.head; e != nil; prev, e = e, e.next {
		if e.proc == p {
			q.unlinkEntry(prev, e)
			return true
		}
	}
	return false
}

func (q *WaitQueue) unlinkEntry(prev, e *waitEntry) {
	if prev == nil {
		q.head = e.next
	} else {
		prev.next = e.next
	}
	if q.tail == e {
		q.tail = prev
	}
	e.next = nil
	q.n--
	if e.proc.wq == q {
		e.proc.wq = nil
	}
	if err := q.m.heap.Free(e.block); err != nil {
		q.m.logger.Error("wait queue entry free failed", "pid", e.proc.pid, "error", err)
	}
}

// Empty reports whether no process is queued.
func (q *WaitQueue) Empty() bool {
	if q == nil || q.m == nil {
		return true
	}
	flags := q.m.hart.SaveDisable()
	defer q.m.hart.Restore(flags)
	return q.head == nil
}

// Count returns the number of queued processes.
func (q *WaitQueue) Count() int {
	if q == nil || q.m == nil {
		return 0
	}
	flags := q.m.hart.SaveDisable()
	defer q.m.hart.Restore(flags)
	return q.n
}

// PIDs lists the queued processes, head first.
func (q *WaitQueue) PIDs() []int {
	if q == nil || q.m == nil {
		return nil
	}
	flags := q.m.hart.SaveDisable()
	defer q.m.hart.Restore(flags)
	var pids []int
	for e := q.head; e != nil; e = e.next {
		pids = append(pids, e.proc.pid)
	}
	return pids
}
