package process

import "fmt"

// KernelPanic is the panic value raised when the process subsystem detects
// corruption or a contract violation it cannot recover from. Interrupts stay
// masked once it is raised.
type KernelPanic struct {
	Reason string
}

func (p *KernelPanic) Error() string {
	return "kernel panic: " + p.Reason
}

// fatal logs and halts.
func (m *Manager) fatal(format string, args ...any) {
	reason := fmt.Sprintf(format, args...)
	m.hart.SaveDisable()
	m.logger.Error("kernel panic", "reason", reason)
	panic(&KernelPanic{Reason: reason})
}
