package process

import (
	"errors"

	"rvkernel/pkg/hal"
)

// Scheduler errors.
var (
	ErrReadyQueueFull = errors.New("ready queue full")
	ErrNotReady       = errors.New("process is not ready")
)

// RunQueue is the FIFO ready queue: a fixed ring sized to the process table,
// so it cannot overflow unless the table is corrupt.
type RunQueue struct {
	items []*Process
	head  int
	count int
	// onChange reports the new length for the ready-queue gauge.
	onChange func(n int)
}

// NewRunQueue creates a ready queue with room for capacity processes.
func NewRunQueue(capacity int) *RunQueue {
	return &RunQueue{items: make([]*Process, capacity)}
}

// Len returns the number of queued processes.
func (q *RunQueue) Len() int { return q.count }

// Cap returns the ring capacity.
func (q *RunQueue) Cap() int { return len(q.items) }

// Push appends p at the tail.
func (q *RunQueue) Push(p *Process) error {
	if q.count == len(q.items) {
		return ErrReadyQueueFull
	}
	q.items[(q.head+q.count)%len(q.items)] = p
	q.count++
	q.changed()
	return nil
}

// Pop removes and returns the head, or nil when empty.
func (q *RunQueue) Pop() *Process {
	if q.count == 0 {
		return nil
	}
	p := q.items[q.head]
	q.items[q.head] = nil
	q.head = (q.head + 1) % len(q.items)
	q.count--
	q.changed()
	return p
}

// Contains checks if p is queued.
func (q *RunQueue) Contains(p *Process) bool {
	return q.index(p) >= 0
}

// Remove unlinks p wherever it sits, keeping the order of the rest.
func (q *RunQueue) Remove(p *Process) bool {
	i := q.index(p)
	if i < 0 {
		return false
	}
	n := len(q.items)
	for ; i < q.count-1; i++ {
		q.items[(q.head+i)%n] = q.items[(q.head+i+1)%n]
	}
	q.items[(q.head+q.count-1)%n] = nil
	q.count--
	q.changed()
	return true
}

// PIDs lists the queue head first.
func (q *RunQueue) PIDs() []int {
	pids := make([]int, 0, q.count)
	for i := 0; i < q.count; i++ {
		pids = append(pids, q.items[(q.head+i)%len(q.items)].pid)
	}
	return pids
}

func (q *RunQueue) index(p *Process) int {
	for i := 0; i < q.count; i++ {
		if q.items[(q.head+i)%len(q.items)] == p {
			return i
		}
	}
	return -1
}

func (q *RunQueue) changed() {
	if q.onChange != nil {
		q.onChange(q.count)
	}
}

// Enqueue appends a Ready process to the ready queue. Anything else is
// rejected. A full queue is logged and the process dropped.
func (m *Manager) Enqueue(p *Process) error {
	if p == nil || p.state != StateReady {
		return ErrNotReady
	}
	flags := m.hart.SaveDisable()
	defer m.hart.Restore(flags)
	return m.enqueueLocked(p)
}

func (m *Manager) enqueueLocked(p *Process) error {
	if m.ready.Contains(p) {
		return nil
	}
	if err := m.ready.Push(p); err != nil {
		m.metrics.readyDrops.Inc()
		m.logger.Warn("ready queue full, process dropped", "pid", p.pid)
		return err
	}
	return nil
}

// Dequeue removes p from the ready queue if present.
func (m *Manager) Dequeue(p *Process) {
	if p == nil {
		return
	}
	flags := m.hart.SaveDisable()
	m.ready.Remove(p)
	m.hart.Restore(flags)
}

// PickNext pops the head of the ready queue. The caller must dispatch the
// returned process or put it back.
func (m *Manager) PickNext() *Process {
	flags := m.hart.SaveDisable()
	defer m.hart.Restore(flags)
	return m.ready.Pop()
}

// ReadyPIDs lists the ready queue, head first.
func (m *Manager) ReadyPIDs() []int {
	flags := m.hart.SaveDisable()
	defer m.hart.Restore(flags)
	return m.ready.PIDs()
}

// Schedule is the dispatcher. It charges the current process for one step of
// its slice and switches to the ready-queue head when the slice ran out or
// the current process stopped running. With nothing runnable it waits for
// interrupts until something is.
//
// Schedule returns when the calling process is dispatched again.
func (m *Manager) Schedule() {
	flags := m.hart.SaveDisable()
	m.scheduleLocked()
	m.hart.Restore(flags)
}

func (m *Manager) scheduleLocked() {
	cur := m.current

	m.slice--
	preempt := m.slice <= 0
	if preempt {
		m.slice = m.cfg.TimeSlice
		m.metrics.preemptions.Inc()
	}
	if cur == nil || cur.state != StateRunning {
		preempt = true
	}
	if !preempt {
		return
	}

	next := m.ready.Pop()
	for next == nil {
		if cur != nil && cur.state == StateRunning {
			// Nothing else to run; keep the slice going.
			return
		}
		m.idle()
		if cur != nil && cur.state == StateReady {
			// Woken while idling.
			m.ready.Remove(cur)
			m.setState(cur, StateRunning)
			m.slice = m.cfg.TimeSlice
			return
		}
		next = m.ready.Pop()
	}

	if cur != nil && cur.state == StateRunning {
		m.setState(cur, StateReady)
		_ = m.enqueueLocked(cur)
	}
	if next == cur {
		m.ready.Remove(cur)
		m.setState(cur, StateRunning)
		m.slice = m.cfg.TimeSlice
		return
	}
	m.contextSwitch(cur, next)
}

// contextSwitch hands the hart from old to next. It returns when old is
// dispatched again. A nil old gives up the hart for good.
func (m *Manager) contextSwitch(old, next *Process) {
	if next == nil {
		m.fatal("context switch to nil process")
	}
	if old != nil && old.state == StateRunning {
		m.setState(old, StateReady)
	}
	m.setState(next, StateRunning)
	m.current = next
	m.slice = m.cfg.TimeSlice
	m.metrics.contextSwitches.Inc()

	var from *hal.Context
	if old != nil {
		from = old.ctx
	}
	m.hart.Switch(from, next.ctx)
}

// idle parks the hart until an interrupt arrives and accounts for every tick
// taken meanwhile. It never reschedules; the caller retries the pick.
func (m *Manager) idle() {
	m.metrics.idleWaits.Inc()
	m.hart.WaitForInterrupt()
	for m.hart.TakePending() {
		m.tick()
	}
}

// Yield gives up the rest of the current step. It goes through Schedule
// without touching the slice, so the caller keeps running unless its slice is
// spent or it is no longer Running.
func (m *Manager) Yield() {
	m.Schedule()
	m.deliverSignals()
}
