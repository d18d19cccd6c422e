package main

import (
	"fmt"

	"rvkernel/pkg/config"
	"rvkernel/pkg/logging"
	"rvkernel/pkg/process"
)

// boot loads the configuration and creates the kernel. The calling goroutine
// becomes init.
func boot() (*process.Manager, *logging.Logger, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = loaded
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if jsonLogs {
		cfg.Log.JSON = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Log.Level),
		JSON:    cfg.Log.JSON,
		Service: "rvkernel",
	})
	m, err := process.NewManager(cfg.Kernel, process.WithLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	logger.Info("kernel booted",
		"max_procs", cfg.Kernel.MaxProcs,
		"time_slice", cfg.Kernel.TimeSlice,
		"timer_interval", cfg.Kernel.TimerInterval.String())
	return m, logger, nil
}

// stepUntil drives timer ticks from init until done reports true or the tick
// budget runs out.
func stepUntil(m *process.Manager, done func() bool) bool {
	for i := 0; i < maxTicks; i++ {
		if done() {
			return true
		}
		m.Tick()
	}
	return done()
}

// reapZombies collects every exited child of init without blocking.
func reapZombies(m *process.Manager) map[int]int {
	codes := make(map[int]int)
	for _, info := range m.Snapshot() {
		if info.Parent != 0 || info.State != process.StateZombie {
			continue
		}
		pid, code, err := m.Wait(info.PID)
		if err == nil {
			codes[pid] = code
		}
	}
	return codes
}

func childrenDone(m *process.Manager) bool {
	for _, info := range m.Snapshot() {
		if info.PID != 0 && info.State != process.StateZombie {
			return false
		}
	}
	return true
}
