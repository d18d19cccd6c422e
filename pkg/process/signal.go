package process

import (
	"errors"
	"fmt"
	"math/bits"
)

// Signal errors.
var (
	ErrInvalidSignal = errors.New("invalid signal")
	ErrUncatchable   = errors.New("signal cannot be caught or ignored")
)

// Signal represents a signal number.
type Signal int

// Signal numbers follow the RISC-V Linux ABI.
const (
	SignalHangup       Signal = 1
	SignalInterrupt    Signal = 2
	SignalQuit         Signal = 3
	SignalAbort        Signal = 6
	SignalKill         Signal = 9
	SignalUser1        Signal = 10
	SignalUser2        Signal = 12
	SignalPipe         Signal = 13
	SignalAlarm        Signal = 14
	SignalTerminate    Signal = 15
	SignalChild        Signal = 17
	SignalContinue     Signal = 18
	SignalStop         Signal = 19
	SignalTerminalStop Signal = 20
	SignalCPULimit     Signal = 24
	SignalWindowChange Signal = 28
)

// NumSignals bounds signal numbers; valid signals are 1 to NumSignals-1.
const NumSignals = 32

const signalExitCodeOffset = 128

var signalNames = map[Signal]string{
	SignalHangup:       "SIGHUP",
	SignalInterrupt:    "SIGINT",
	SignalQuit:         "SIGQUIT",
	SignalAbort:        "SIGABRT",
	SignalKill:         "SIGKILL",
	SignalUser1:        "SIGUSR1",
	SignalUser2:        "SIGUSR2",
	SignalPipe:         "SIGPIPE",
	SignalAlarm:        "SIGALRM",
	SignalTerminate:    "SIGTERM",
	SignalChild:        "SIGCHLD",
	SignalContinue:     "SIGCONT",
	SignalStop:         "SIGSTOP",
	SignalTerminalStop: "SIGTSTP",
	SignalCPULimit:     "SIGXCPU",
	SignalWindowChange: "SIGWINCH",
}

// String returns the conventional SIG name.
func (s Signal) String() string {
	if name, ok := signalNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SIG%d", int(s))
}

// Valid reports whether s is a deliverable signal number.
func (s Signal) Valid() bool {
	return s > 0 && s < NumSignals
}

// ExitCode is the status of a process terminated by s.
func (s Signal) ExitCode() int {
	return signalExitCodeOffset + int(s)
}

// terminatesByDefault reports whether the default action ends the process.
// There is no stopped state, so stop and continue signals are ignored.
func (s Signal) terminatesByDefault() bool {
	switch s {
	case SignalChild, SignalContinue, SignalStop, SignalTerminalStop, SignalWindowChange:
		return false
	}
	return true
}

// SignalSet is a bitmask of signals.
type SignalSet uint32

// Has checks if a signal is in the set.
func (s SignalSet) Has(sig Signal) bool {
	return sig.Valid() && s&(1<<uint(sig)) != 0
}

// Add adds a signal to the set.
func (s *SignalSet) Add(sig Signal) {
	if sig.Valid() {
		*s |= 1 << uint(sig)
	}
}

// Remove removes a signal from the set.
func (s *SignalSet) Remove(sig Signal) {
	*s &^= 1 << uint(sig)
}

// Union returns the union of two signal sets.
func (s SignalSet) Union(other SignalSet) SignalSet {
	return s | other
}

// Len returns the number of signals in the set.
func (s SignalSet) Len() int {
	return bits.OnesCount32(uint32(s))
}

// lowest returns the lowest-numbered member, or 0 when empty.
func (s SignalSet) lowest() Signal {
	if s == 0 {
		return 0
	}
	return Signal(bits.TrailingZeros32(uint32(s)))
}

// unmaskable signals can never be blocked, caught or ignored.
var unmaskable = SignalSet(1<<uint(SignalKill) | 1<<uint(SignalStop))

// ActionKind selects what happens when a signal is delivered.
type ActionKind int

const (
	// ActionDefault terminates or ignores depending on the signal.
	ActionDefault ActionKind = iota
	// ActionIgnore discards the signal.
	ActionIgnore
	// ActionCatch runs the handler in the receiving process.
	ActionCatch
)

// SignalHandler runs in the receiving process when a caught signal is
// delivered.
type SignalHandler func(sig Signal)

// Action is the disposition of one signal.
type Action struct {
	Kind    ActionKind
	Handler SignalHandler
}

// Catch returns an action that runs h.
func Catch(h SignalHandler) Action {
	return Action{Kind: ActionCatch, Handler: h}
}

// Ignore is the action that discards a signal.
var Ignore = Action{Kind: ActionIgnore}

type signalState struct {
	pending SignalSet
	blocked SignalSet
	actions [NumSignals]Action
}

// deliverable reports whether an unblocked signal is pending.
func (s *signalState) deliverable() bool {
	return s.pending&^s.blocked != 0
}

// ignored reports whether delivering sig would have no effect.
func (s *signalState) ignored(sig Signal) bool {
	act := s.actions[sig]
	switch act.Kind {
	case ActionIgnore:
		return true
	case ActionCatch:
		return false
	default:
		return !sig.terminatesByDefault()
	}
}

// Signal posts sig to the process pid. A sleeping target is woken so it can
// take the signal on its way back out, unless the signal is blocked or
// ignored or the target sleeps uninterruptibly. SignalKill terminates the target immediately.
func (m *Manager) Signal(pid int, sig Signal) error {
	if !sig.Valid() {
		return ErrInvalidSignal
	}
	flags := m.hart.SaveDisable()
	p := m.lookup(pid)
	if p == nil || !p.IsAlive() {
		m.hart.Restore(flags)
		return fmt.Errorf("signal pid %d: %w", pid, ErrProcessNotFound)
	}
	if p.pid == 0 && sig == SignalKill {
		m.hart.Restore(flags)
		return fmt.Errorf("signal init: %w", ErrInvalidPID)
	}
	m.metrics.signals.WithLabelValues(sig.String()).Inc()
	m.logger.Debug("signal posted", "pid", pid, "signal", sig.String())

	if sig == SignalKill {
		if p == m.current {
			m.Exit(sig.ExitCode())
		}
		m.terminateLocked(p, sig.ExitCode())
		m.hart.Restore(flags)
		return nil
	}

	m.postLocked(p, sig)
	m.hart.Restore(flags)
	if p == m.current {
		m.deliverSignals()
	}
	return nil
}

// Kill sends SignalKill.
func (m *Manager) Kill(pid int) error {
	return m.Signal(pid, SignalKill)
}

// postLocked marks sig pending on p and wakes p if it sleeps and would act on
// the signal.
func (m *Manager) postLocked(p *Process, sig Signal) {
	if p.signals.ignored(sig) {
		return
	}
	p.signals.pending.Add(sig)
	if p.state == StateSleeping && !p.uninterruptible && !p.signals.blocked.Has(sig) {
		m.wakeupLocked(p)
	}
}

// SetAction installs the disposition of sig for the current process and
// returns the previous one.
func (m *Manager) SetAction(sig Signal, act Action) (Action, error) {
	if !sig.Valid() {
		return Action{}, ErrInvalidSignal
	}
	if unmaskable.Has(sig) {
		return Action{}, ErrUncatchable
	}
	if act.Kind == ActionCatch && act.Handler == nil {
		return Action{}, ErrInvalidSignal
	}
	flags := m.hart.SaveDisable()
	defer m.hart.Restore(flags)
	p := m.current
	prev := p.signals.actions[sig]
	p.signals.actions[sig] = act
	if p.signals.ignored(sig) {
		p.signals.pending.Remove(sig)
	}
	return prev, nil
}

// SetBlocked replaces the blocked mask of the current process and returns the
// previous mask. SignalKill and SignalStop cannot be blocked.
func (m *Manager) SetBlocked(set SignalSet) SignalSet {
	flags := m.hart.SaveDisable()
	p := m.current
	prev := p.signals.blocked
	p.signals.blocked = set &^ unmaskable
	m.hart.Restore(flags)
	m.deliverSignals()
	return prev
}

// PendingSignals returns the pending set of pid.
func (m *Manager) PendingSignals(pid int) (SignalSet, error) {
	flags := m.hart.SaveDisable()
	defer m.hart.Restore(flags)
	p := m.lookup(pid)
	if p == nil {
		return 0, ErrProcessNotFound
	}
	return p.signals.pending, nil
}

// deliverSignals runs the actions of pending unblocked signals of the current
// process, lowest number first. It is called at points where the process is
// about to continue with interrupts enabled.
func (m *Manager) deliverSignals() {
	p := m.current
	if p == nil {
		return
	}
	for {
		flags := m.hart.SaveDisable()
		sig := (p.signals.pending &^ p.signals.blocked).lowest()
		if sig == 0 {
			m.hart.Restore(flags)
			return
		}
		p.signals.pending.Remove(sig)
		act := p.signals.actions[sig]
		m.hart.Restore(flags)

		switch act.Kind {
		case ActionCatch:
			act.Handler(sig)
		case ActionIgnore:
		default:
			if !sig.terminatesByDefault() {
				continue
			}
			if p.pid == 0 {
				m.logger.Warn("init ignores terminating signal", "signal", sig.String())
				continue
			}
			m.logger.Debug("terminated by signal", "pid", p.pid, "signal", sig.String())
			m.Exit(sig.ExitCode())
		}
	}
}
