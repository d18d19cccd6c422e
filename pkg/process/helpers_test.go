package process

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvkernel/pkg/config"
)

// testKernel returns a small table with a short slice so scheduling
// scenarios stay readable.
func testKernel() config.Kernel {
	cfg := config.Default().Kernel
	cfg.MaxProcs = 8
	cfg.TimeSlice = 3
	return cfg
}

func newTestManager(t *testing.T, opts ...Option) *Manager {
	t.Helper()
	m, err := NewManager(testKernel(), opts...)
	require.NoError(t, err)
	return m
}

// tickUntil drives the timer from init until cond holds.
func tickUntil(t *testing.T, m *Manager, cond func() bool) {
	t.Helper()
	for i := 0; i < 10000 && !cond(); i++ {
		m.Tick()
	}
	require.True(t, cond(), "condition not reached")
}

// sleepForever parks the process until it is killed or signalled.
func sleepForever(m *Manager) EntryFunc {
	return func(any) {
		for {
			m.Sleep("pause")
		}
	}
}
