package hal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveDisableRestore(t *testing.T) {
	h := NewHart()
	require.True(t, h.Enabled())

	outer := h.SaveDisable()
	assert.Equal(t, Enabled, outer)
	assert.False(t, h.Enabled())

	inner := h.SaveDisable()
	assert.Equal(t, Disabled, inner)

	h.Restore(inner)
	assert.False(t, h.Enabled(), "nested restore must keep the hart masked")

	h.Restore(outer)
	assert.True(t, h.Enabled())
}

func TestPendingInterruptDeliveredOnRestore(t *testing.T) {
	h := NewHart()
	var fired int
	var maskedDuringHandler bool
	require.NoError(t, h.Register(VectorTimer, func() {
		fired++
		maskedDuringHandler = !h.Enabled()
	}))

	flags := h.SaveDisable()
	h.Raise()
	h.Raise()
	h.Poll()
	assert.Equal(t, 0, fired, "masked hart must not take interrupts")
	assert.Equal(t, uint32(2), h.Pending())

	h.Restore(flags)
	assert.Equal(t, 2, fired)
	assert.True(t, maskedDuringHandler)
	assert.Equal(t, uint32(0), h.Pending())
	assert.True(t, h.Enabled())
}

func TestRegisterVector(t *testing.T) {
	h := NewHart()
	tests := []struct {
		name    string
		vector  Vector
		handler Handler
		wantErr error
	}{
		{"timer", VectorTimer, func() {}, nil},
		{"duplicate", VectorTimer, func() {}, ErrVectorInUse},
		{"out of range", Vector(7), func() {}, ErrInvalidVector},
		{"nil handler", VectorTimer, nil, ErrInvalidVector},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.Register(tt.vector, tt.handler)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestTakePending(t *testing.T) {
	h := NewHart()
	assert.False(t, h.TakePending())
	h.Raise()
	assert.True(t, h.TakePending())
	assert.False(t, h.TakePending())
}

func TestSwitchHandsOffHart(t *testing.T) {
	h := NewHart()
	main := NewContext(0, 0)
	worker := NewContext(0, 0)

	var steps []string
	go func() {
		worker.Park()
		steps = append(steps, "worker")
		h.Switch(worker, main)
	}()

	steps = append(steps, "main")
	h.Switch(main, worker)
	steps = append(steps, "main again")

	assert.Equal(t, []string{"main", "worker", "main again"}, steps)
	worker.Retire()
}

func TestSwitchToNilPanics(t *testing.T) {
	h := NewHart()
	assert.PanicsWithValue(t, ErrNilContext, func() {
		h.Switch(NewContext(0, 0), nil)
	})
}

func TestRetireReleasesParkedGoroutine(t *testing.T) {
	c := NewContext(0, 0)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Park()
		t.Error("retired context must not resume")
	}()
	c.Retire()
	c.Retire()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("parked goroutine did not exit")
	}
}

func TestWaitForInterrupt(t *testing.T) {
	h := NewHart()
	timer := NewTimer(h, time.Millisecond)
	timer.Start()
	defer timer.Stop()

	h.WaitForInterrupt()
	assert.Eventually(t, func() bool { return h.Pending() > 0 }, time.Second, time.Millisecond)
}
