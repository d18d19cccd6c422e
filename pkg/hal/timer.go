package hal

import (
	"sync"
	"time"
)

// Timer raises the timer interrupt on a hart at a fixed interval, standing in
// for the CLINT comparator.
type Timer struct {
	hart     *Hart
	interval time.Duration
	stop     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewTimer creates a stopped timer for the given hart.
func NewTimer(h *Hart, interval time.Duration) *Timer {
	return &Timer{
		hart:     h,
		interval: interval,
	}
}

// Start begins raising interrupts. Starting a running timer is a no-op.
func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running || t.interval <= 0 {
		return
	}
	t.running = true
	t.stop = make(chan struct{})
	t.wg.Add(1)
	go t.loop(t.stop)
}

// Stop halts the timer and waits for its goroutine to finish.
func (t *Timer) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stop)
	t.mu.Unlock()
	t.wg.Wait()
}

func (t *Timer) loop(stop <-chan struct{}) {
	defer t.wg.Done()
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.hart.Raise()
		case <-stop:
			return
		}
	}
}
