package process

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rvkernel/pkg/mm"
)

func TestWaitQueueFIFO(t *testing.T) {
	m := newTestManager(t)
	q := m.NewWaitQueue()
	live := m.Heap().Live()

	var order []string
	var pids []int
	for _, name := range []string{"a", "b", "c"} {
		name := name
		p, err := m.Create(name, func(any) {
			q.Sleep()
			order = append(order, name)
		}, nil)
		require.NoError(t, err)
		pids = append(pids, p.PID())
	}

	withProcs := m.Heap().Live()

	tickUntil(t, m, func() bool { return q.Count() == 3 })
	assert.Equal(t, pids, q.PIDs())
	assert.Equal(t, withProcs+3, m.Heap().Live())
	for _, pid := range pids {
		p, err := m.Get(pid)
		require.NoError(t, err)
		assert.Equal(t, StateSleeping, p.State())
	}

	assert.True(t, q.WakeOne())
	assert.Equal(t, 2, q.Count())
	tickUntil(t, m, func() bool { return len(order) == 1 })
	assert.Equal(t, []string{"a"}, order)

	assert.Equal(t, 2, q.Wake())
	assert.True(t, q.Empty())
	tickUntil(t, m, func() bool { return len(order) == 3 })
	assert.Equal(t, []string{"a", "b", "c"}, order)

	for range pids {
		_, _, err := m.Wait(-1)
		require.NoError(t, err)
	}
	assert.Equal(t, live, m.Heap().Live())
}

func TestWaitQueueRemoveKeepsState(t *testing.T) {
	m := newTestManager(t)
	q := m.NewWaitQueue()
	p, err := m.Create("sleeper", func(any) { q.Sleep() }, nil)
	require.NoError(t, err)

	tickUntil(t, m, func() bool { return q.Count() == 1 })
	assert.True(t, q.Remove(p))
	assert.False(t, q.Remove(p))
	assert.True(t, q.Empty())
	assert.Equal(t, StateSleeping, p.State())

	// Nothing left to wake it through the queue.
	assert.Equal(t, 0, q.Wake())
	assert.False(t, q.WakeOne())

	m.Wakeup(p)
	_, _, err = m.Wait(p.PID())
	require.NoError(t, err)
}

func TestWaitQueueSkipsNonSleepers(t *testing.T) {
	m := newTestManager(t)
	q := m.NewWaitQueue()
	p, err := m.Create("sleeper", func(any) { q.Sleep() }, nil)
	require.NoError(t, err)
	tickUntil(t, m, func() bool { return q.Count() == 1 })

	// Woken directly, the entry goes with it.
	m.Wakeup(p)
	assert.True(t, q.Empty())
	assert.False(t, q.WakeOne())

	_, _, err = m.Wait(p.PID())
	require.NoError(t, err)
}

func TestWaitQueueNilAndUnbound(t *testing.T) {
	var q *WaitQueue
	q.Sleep()
	assert.False(t, q.SleepLocked())
	assert.Equal(t, 0, q.Wake())
	assert.False(t, q.WakeOne())
	assert.False(t, q.Remove(&Process{}))
	assert.True(t, q.Empty())
	assert.Equal(t, 0, q.Count())

	var unbound WaitQueue
	assert.True(t, unbound.Empty())
	assert.Equal(t, 0, unbound.Wake())
}

func TestSleepLockedAllocationFailure(t *testing.T) {
	heap := mm.NewHeap(0)
	m := newTestManager(t, WithHeap(heap))
	q := m.NewWaitQueue()
	heap.SetCapacity(heap.InUse())

	flags := m.Hart().SaveDisable()
	ok := q.SleepLocked()
	m.Hart().Restore(flags)

	assert.False(t, ok)
	assert.True(t, q.Empty())
	assert.Equal(t, StateRunning, m.Current().State())
}

func TestSleepLockedNoLostWakeup(t *testing.T) {
	m := newTestManager(t)
	q := m.NewWaitQueue()
	ready := false
	seen := false

	p, err := m.Create("waiter", func(any) {
		flags := m.Hart().SaveDisable()
		for !ready {
			q.SleepLocked()
		}
		m.Hart().Restore(flags)
		seen = true
	}, nil)
	require.NoError(t, err)

	tickUntil(t, m, func() bool { return q.Count() == 1 })
	ready = true
	assert.Equal(t, 1, q.Wake())

	_, _, err = m.Wait(p.PID())
	require.NoError(t, err)
	assert.True(t, seen)
}
