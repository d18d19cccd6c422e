package ksync

import (
	"testing"

	"github.com/stretchr/testify/require"

	"rvkernel/pkg/config"
	"rvkernel/pkg/process"
)

func newTestManager(t *testing.T) *process.Manager {
	t.Helper()
	cfg := config.Default().Kernel
	cfg.MaxProcs = 16
	cfg.TimeSlice = 3
	m, err := process.NewManager(cfg)
	require.NoError(t, err)
	return m
}

func spawn(t *testing.T, m *process.Manager, name string, fn func()) *process.Process {
	t.Helper()
	p, err := m.Create(name, func(any) { fn() }, nil)
	require.NoError(t, err)
	return p
}

// tickUntil drives the timer from init until cond holds.
func tickUntil(t *testing.T, m *process.Manager, cond func() bool) {
	t.Helper()
	for i := 0; i < 10000 && !cond(); i++ {
		m.Tick()
	}
	require.True(t, cond(), "condition not reached")
}

// reapAll waits for every child of init.
func reapAll(t *testing.T, m *process.Manager) {
	t.Helper()
	for {
		_, code, err := m.Wait(-1)
		if err != nil {
			require.ErrorIs(t, err, process.ErrNoChild)
			return
		}
		require.Equal(t, 0, code)
	}
}
