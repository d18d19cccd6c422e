package process

import (
	"errors"
	"fmt"
)

// ErrInvalidLimit is returned for negative or otherwise unusable limits.
var ErrInvalidLimit = errors.New("invalid resource limit value")

// Limits are per-process resource limits. Zero means unlimited.
type Limits struct {
	// CPUTicks is the CPU time budget in timer ticks. A process that runs
	// past it receives SignalCPULimit once.
	CPUTicks uint64
}

// SetLimits replaces the limits of pid.
func (m *Manager) SetLimits(pid int, l Limits) error {
	flags := m.hart.SaveDisable()
	defer m.hart.Restore(flags)
	p := m.lookup(pid)
	if p == nil {
		return fmt.Errorf("pid %d: %w", pid, ErrProcessNotFound)
	}
	if pid == 0 && l.CPUTicks != 0 {
		return fmt.Errorf("limit init: %w", ErrInvalidLimit)
	}
	p.limits = l
	p.limitHit = false
	return nil
}

// GetLimits returns the limits of pid.
func (m *Manager) GetLimits(pid int) (Limits, error) {
	flags := m.hart.SaveDisable()
	defer m.hart.Restore(flags)
	p := m.lookup(pid)
	if p == nil {
		return Limits{}, fmt.Errorf("pid %d: %w", pid, ErrProcessNotFound)
	}
	return p.limits, nil
}

// checkLimits runs from the tick with the hart masked.
func (m *Manager) checkLimits(p *Process) {
	if p.limits.CPUTicks == 0 || p.limitHit || p.cpuTime <= p.limits.CPUTicks {
		return
	}
	p.limitHit = true
	m.logger.Warn("cpu limit exceeded", "pid", p.pid, "cpu_ticks", p.cpuTime)
	m.metrics.signals.WithLabelValues(SignalCPULimit.String()).Inc()
	m.postLocked(p, SignalCPULimit)
}
