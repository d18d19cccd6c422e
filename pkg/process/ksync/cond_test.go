package ksync

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"rvkernel/pkg/process"
)

func TestCondReacquiresAsWaker(t *testing.T) {
	m := newTestManager(t)
	mu := NewMutex(m)
	c := NewCond(m)
	ready := false
	owner := -1

	consumer := spawn(t, m, "consumer", func() {
		mu.Lock()
		for !ready {
			c.Wait(mu)
		}
		owner, _ = mu.Owner()
		mu.Unlock()
	})
	consumerPID := consumer.PID()
	tickUntil(t, m, func() bool { return c.Waiters() == 1 })
	// Wait released the mutex.
	assert.False(t, mu.IsLocked())

	spawn(t, m, "producer", func() {
		mu.Lock()
		ready = true
		c.Signal()
		mu.Unlock()
	})

	reapAll(t, m)
	assert.Equal(t, consumerPID, owner)
	assert.False(t, mu.IsLocked())
}

func TestCondBroadcast(t *testing.T) {
	m := newTestManager(t)
	mu := NewMutex(m)
	c := NewCond(m)
	open := false
	passed := 0

	var waiters []*process.Process
	for i := 0; i < 3; i++ {
		waiters = append(waiters, spawn(t, m, "waiter", func() {
			mu.Lock()
			for !open {
				c.Wait(mu)
			}
			passed++
			mu.Unlock()
		}))
	}
	tickUntil(t, m, func() bool { return c.Waiters() == 3 })

	// Signal with nobody ready to act still wakes exactly one.
	c.Signal()
	assert.Equal(t, 2, c.Waiters())
	tickUntil(t, m, func() bool { return c.Waiters() == 3 })

	mu.Lock()
	open = true
	c.Broadcast()
	mu.Unlock()
	assert.Equal(t, 0, c.Waiters())

	reapAll(t, m)
	assert.Equal(t, 3, passed)
	for _, p := range waiters {
		assert.Equal(t, process.StateUnused, p.State())
	}
	c.Destroy()
}

func TestCondNil(t *testing.T) {
	var c *Cond
	c.Wait(nil)
	c.Signal()
	c.Broadcast()
	c.Destroy()
	assert.Equal(t, 0, c.Waiters())
}
