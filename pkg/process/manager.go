package process

import (
	"errors"
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"rvkernel/pkg/config"
	"rvkernel/pkg/hal"
	"rvkernel/pkg/logging"
	"rvkernel/pkg/mm"
)

// Process creation errors.
var (
	ErrTableFull  = errors.New("process table full")
	ErrInvalidPID = errors.New("invalid PID")
	ErrNoChild    = errors.New("no child processes")
	ErrNilEntry   = errors.New("nil entry function")
	// ErrInvalidConfig is returned by NewManager for unusable tunables.
	ErrInvalidConfig = errors.New("invalid kernel config")
)

// trampolineAddr is the symbolic return address of a fresh context.
const trampolineAddr uintptr = 0x8020_0000

// sleepReasonTicks is shown for processes in SleepTicks.
const sleepReasonTicks = "ticks"

// Manager owns the process table, the ready queue and the dispatcher of one
// hart. Every method must be called by the process currently holding the
// hart; the goroutine that calls NewManager becomes init (PID 0) and holds it
// first.
type Manager struct {
	cfg      config.Kernel
	logger   *logging.Logger
	hart     *hal.Hart
	heap     *mm.Heap
	tables   *mm.PageTables
	registry *prometheus.Registry
	metrics  *metrics

	procs   []Process
	nextPID int
	current *Process
	ready   *RunQueue

	// slice counts down the scheduling steps left for the current process.
	slice int
	// ticks counts serviced timer interrupts since boot.
	ticks       uint64
	tickWaiters WaitQueue
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the kernel logger. The default discards everything.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithHart runs the kernel on an existing hart.
func WithHart(h *hal.Hart) Option {
	return func(m *Manager) { m.hart = h }
}

// WithHeap allocates stacks, trap frames and wait-queue links from h instead
// of a heap sized from the config.
func WithHeap(h *mm.Heap) Option {
	return func(m *Manager) { m.heap = h }
}

// WithRegistry registers metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(m *Manager) { m.registry = reg }
}

// NewManager boots the process subsystem: it clears the table, installs the
// calling goroutine as init and hooks the timer vector.
func NewManager(cfg config.Kernel, opts ...Option) (*Manager, error) {
	if cfg.MaxProcs < 2 || cfg.TimeSlice < 1 {
		return nil, fmt.Errorf("kernel config: max_procs %d time_slice %d: %w",
			cfg.MaxProcs, cfg.TimeSlice, ErrInvalidConfig)
	}

	m := &Manager{cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.Nop()
	}
	if m.hart == nil {
		m.hart = hal.NewHart()
	}
	if m.heap == nil {
		m.heap = mm.NewHeap(cfg.HeapSize)
	}
	if m.registry == nil {
		m.registry = prometheus.NewRegistry()
	}
	m.metrics = newMetrics(m.registry)

	tables, err := mm.NewPageTables(m.heap)
	if err != nil {
		return nil, fmt.Errorf("kernel page table: %w", err)
	}
	m.tables = tables

	m.procs = make([]Process, cfg.MaxProcs)
	for i := range m.procs {
		m.procs[i].slot = i
		m.procs[i].reset()
	}
	m.ready = NewRunQueue(cfg.MaxProcs)
	m.ready.onChange = func(n int) { m.metrics.readyQueue.Set(float64(n)) }
	m.tickWaiters.Init(m)

	if err := m.hart.Register(hal.VectorTimer, m.onTimer); err != nil {
		return nil, fmt.Errorf("timer vector: %w", err)
	}

	flags := m.hart.SaveDisable()
	root := &m.procs[0]
	root.pid = 0
	root.name = "init"
	root.state = StateRunning
	root.priority = cfg.DefaultPriority
	root.parent = NoParent
	root.pageTable = tables.Kernel()
	root.ctx = hal.NewContext(0, 0)
	root.children.Init(m)
	m.nextPID = 1
	m.current = root
	m.slice = cfg.TimeSlice
	m.hart.Restore(flags)

	m.logger.Info("process subsystem initialized",
		"max_procs", cfg.MaxProcs, "time_slice", cfg.TimeSlice)
	return m, nil
}

// CreateOption adjusts a process at creation.
type CreateOption func(*createSpec)

type createSpec struct {
	priority  int
	userSpace bool
	limits    Limits
}

// WithPriority overrides the default priority.
func WithPriority(prio int) CreateOption {
	return func(s *createSpec) { s.priority = prio }
}

// WithUserSpace gives the process its own user page table and user stack.
func WithUserSpace() CreateOption {
	return func(s *createSpec) { s.userSpace = true }
}

// WithLimits sets resource limits.
func WithLimits(l Limits) CreateOption {
	return func(s *createSpec) { s.limits = l }
}

// Create builds a new Ready process that will run entry(arg) on first
// dispatch. The parent is the current process. On any allocation failure the
// slot and everything allocated for it are released and nil is returned with
// the cause.
func (m *Manager) Create(name string, entry EntryFunc, arg any, opts ...CreateOption) (*Process, error) {
	if entry == nil {
		return nil, ErrNilEntry
	}
	spec := createSpec{priority: m.cfg.DefaultPriority}
	for _, opt := range opts {
		opt(&spec)
	}

	flags := m.hart.SaveDisable()
	defer m.hart.Restore(flags)

	p := m.allocSlot()
	if p == nil {
		m.metrics.createFailures.Inc()
		m.logger.Warn("process table full", "name", name)
		return nil, ErrTableFull
	}
	p.pid = m.nextPID
	m.nextPID++
	p.name = name
	p.priority = spec.priority
	p.limits = spec.limits
	if cur := m.current; cur != nil {
		p.parent = cur.pid
	}
	p.children.Init(m)

	if err := m.setupProcess(p, spec, entry, arg); err != nil {
		m.metrics.createFailures.Inc()
		m.logger.Warn("process creation failed", "name", name, "error", err)
		m.release(p)
		m.setState(p, StateUnused)
		p.reset()
		return nil, err
	}

	m.setState(p, StateReady)
	_ = m.enqueueLocked(p)
	m.metrics.created.Inc()
	m.logger.Debug("process created", "pid", p.pid, "name", name, "parent", p.parent)
	return p, nil
}

func (m *Manager) allocSlot() *Process {
	for i := range m.procs {
		p := &m.procs[i]
		if p.state == StateUnused {
			m.setState(p, StateEmbryo)
			return p
		}
	}
	return nil
}

// setupProcess allocates the kernel stack, the trap frame and the address
// space, and seeds the context so the first dispatch enters the trampoline.
func (m *Manager) setupProcess(p *Process, spec createSpec, entry EntryFunc, arg any) error {
	stack, err := m.heap.Alloc(m.cfg.KernelStackSize)
	if err != nil {
		return fmt.Errorf("kernel stack: %w", err)
	}
	p.stack = stack

	frame, err := m.heap.Alloc(trapFrameSize)
	if err != nil {
		return fmt.Errorf("trap frame: %w", err)
	}
	p.frame = frame

	if spec.userSpace {
		pt, err := m.tables.CreateUser()
		if err != nil {
			return fmt.Errorf("page table: %w", err)
		}
		p.pageTable = pt
		if m.cfg.UserStackSize > 0 {
			ustack, err := m.heap.Alloc(m.cfg.UserStackSize)
			if err != nil {
				return fmt.Errorf("user stack: %w", err)
			}
			p.userStack = ustack
		}
	} else {
		p.pageTable = m.tables.Kernel()
	}

	tf := &TrapFrame{
		Sstatus: sstatusSPP | sstatusSPIE,
		entry:   entry,
		arg:     arg,
	}
	if p.userStack != nil {
		tf.Regs[RegSP] = uint64(p.userStack.Top())
	}
	p.trapFrame = tf

	p.ctx = hal.NewContext(trampolineAddr, stack.Top())
	go m.trampoline(p, p.ctx)
	return nil
}

// trapFrameSize is x0-x31, sepc and sstatus.
const trapFrameSize = 34 * 8

// trampoline is where a new process starts on first dispatch. The dispatcher
// left the hart masked; the process turns interrupts on and enters its body.
func (m *Manager) trampoline(p *Process, ctx *hal.Context) {
	ctx.Park()
	entry, arg := p.trapFrame.take()
	m.hart.Restore(hal.Enabled)
	m.deliverSignals()
	if entry != nil {
		entry(arg)
	}
	m.Exit(0)
}

// release frees whatever p owns. The caller holds the hart masked.
func (m *Manager) release(p *Process) {
	for _, b := range []*mm.Block{p.stack, p.frame, p.userStack} {
		if b == nil {
			continue
		}
		if err := m.heap.Free(b); err != nil {
			m.logger.Error("process memory free failed", "pid", p.pid, "error", err)
		}
	}
	p.stack, p.frame, p.userStack = nil, nil, nil
	if p.pageTable != nil && !p.pageTable.IsKernel() {
		m.freePageTable(p.pageTable)
	}
	p.pageTable = nil
	if p.ctx != nil {
		p.ctx.Retire()
	}
}

// freePageTable returns a user address space to the heap. Handing it the
// kernel table is fatal.
func (m *Manager) freePageTable(pt *mm.PageTable) {
	err := m.tables.Free(pt)
	switch {
	case err == nil:
	case errors.Is(err, mm.ErrFreeKernelTable):
		m.fatal("%v", err)
	default:
		m.logger.Error("page table free failed", "error", err)
	}
}

// Exit terminates the current process with code. The process stays a zombie
// until its parent reaps it. Exit never returns. Calling it from init halts
// the kernel.
func (m *Manager) Exit(code int) {
	p := m.current
	if p == nil || p.pid == 0 {
		m.fatal("init exited with code %d", code)
	}
	m.hart.SaveDisable()
	p.exitCode = code
	m.setState(p, StateZombie)
	m.ready.Remove(p)
	m.orphan(p)
	m.metrics.exited.Inc()
	m.logger.Debug("process exited", "pid", p.pid, "code", code)

	for {
		m.scheduleLocked()
	}
}

// terminateLocked turns a blocked or runnable process other than the current
// one into a zombie.
func (m *Manager) terminateLocked(p *Process, code int) {
	switch p.state {
	case StateSleeping:
		if p.wq != nil {
			p.wq.remove(p)
		}
		p.reason = ""
		p.uninterruptible = false
	case StateReady:
		m.ready.Remove(p)
	}
	p.exitCode = code
	m.setState(p, StateZombie)
	m.orphan(p)
	m.metrics.exited.Inc()
	m.logger.Debug("process killed", "pid", p.pid, "code", code)
}

// orphan hands the children of a dying process to init and tells the parent.
func (m *Manager) orphan(p *Process) {
	root := &m.procs[0]
	adopted := false
	for i := range m.procs {
		c := &m.procs[i]
		if c.state != StateUnused && c.parent == p.pid && c != p {
			c.parent = root.pid
			adopted = adopted || c.state == StateZombie
		}
	}
	if adopted {
		root.children.wakeAllLocked()
	}

	if parent := m.lookup(p.parent); parent != nil && parent.IsAlive() {
		parent.children.wakeAllLocked()
		m.postLocked(parent, SignalChild)
	}
}

// wakeAllLocked is Wake for a caller already holding the hart masked.
func (q *WaitQueue) wakeAllLocked() {
	for q.head != nil {
		q.wakeHead()
	}
}

// Current returns the process holding the hart.
func (m *Manager) Current() *Process {
	return m.current
}

// Sleep blocks the current process until Wakeup. reason is shown in the
// process dump. Callers must recheck their condition on return.
func (m *Manager) Sleep(reason string) {
	flags := m.hart.SaveDisable()
	p := m.current
	p.reason = reason
	m.setState(p, StateSleeping)
	m.ready.Remove(p)
	m.scheduleLocked()
	m.hart.Restore(flags)
	m.deliverSignals()
}

// Wakeup makes a sleeping process ready. Anything else is left alone.
func (m *Manager) Wakeup(p *Process) {
	if p == nil {
		return
	}
	flags := m.hart.SaveDisable()
	m.wakeupLocked(p)
	m.hart.Restore(flags)
}

func (m *Manager) wakeupLocked(p *Process) bool {
	if p.state != StateSleeping {
		return false
	}
	if p.wq != nil {
		p.wq.remove(p)
	}
	p.reason = ""
	p.uninterruptible = false
	m.setState(p, StateReady)
	_ = m.enqueueLocked(p)
	m.metrics.wakeups.Inc()
	return true
}

// Free releases a zombie or half-built process and returns its slot to the
// table.
func (m *Manager) Free(p *Process) error {
	if p == nil {
		return ErrProcessNotFound
	}
	flags := m.hart.SaveDisable()
	defer m.hart.Restore(flags)
	if p == m.current {
		m.fatal("free of running process %d", p.pid)
	}
	if p.state != StateZombie && p.state != StateEmbryo {
		return fmt.Errorf("free pid %d in state %s: %w", p.pid, p.state, ErrProcessRunning)
	}
	m.freeLocked(p)
	return nil
}

func (m *Manager) freeLocked(p *Process) {
	if p.wq != nil {
		p.wq.remove(p)
	}
	m.ready.Remove(p)
	m.release(p)
	m.logger.Debug("process freed", "pid", p.pid, "name", p.name)
	m.setState(p, StateUnused)
	p.reset()
	m.metrics.reaped.Inc()
}

// Wait reaps a zombie child of the current process. pid selects a child, or
// -1 for any. It sleeps until a matching child exits and returns its PID and
// exit code, or ErrNoChild when there is no matching child at all.
func (m *Manager) Wait(pid int) (int, int, error) {
	for {
		flags := m.hart.SaveDisable()
		self := m.current
		found := false
		for i := range m.procs {
			c := &m.procs[i]
			if c.state == StateUnused || c.parent != self.pid || c == self {
				continue
			}
			if pid != -1 && c.pid != pid {
				continue
			}
			found = true
			if c.state == StateZombie {
				cpid, code := c.pid, c.exitCode
				m.freeLocked(c)
				m.hart.Restore(flags)
				return cpid, code, nil
			}
		}
		if !found {
			m.hart.Restore(flags)
			return -1, 0, ErrNoChild
		}
		self.reason = "wait"
		self.children.SleepLocked()
		m.hart.Restore(flags)
		m.deliverSignals()
	}
}

// WaitAny reaps whichever child of the current process exits first.
func (m *Manager) WaitAny() (int, int, error) {
	return m.Wait(-1)
}

// Get resolves a PID to its live or zombie process.
func (m *Manager) Get(pid int) (*Process, error) {
	flags := m.hart.SaveDisable()
	defer m.hart.Restore(flags)
	if p := m.lookup(pid); p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("pid %d: %w", pid, ErrProcessNotFound)
}

// lookup resolves a PID with the hart masked.
func (m *Manager) lookup(pid int) *Process {
	if pid < 0 {
		return nil
	}
	for i := range m.procs {
		p := &m.procs[i]
		if p.state != StateUnused && p.pid == pid {
			return p
		}
	}
	return nil
}

// ProcessAt returns table slot i, or nil when out of range.
func (m *Manager) ProcessAt(i int) *Process {
	if i < 0 || i >= len(m.procs) {
		return nil
	}
	return &m.procs[i]
}

// SetPriority changes the informational priority of pid.
func (m *Manager) SetPriority(pid, prio int) error {
	flags := m.hart.SaveDisable()
	defer m.hart.Restore(flags)
	p := m.lookup(pid)
	if p == nil {
		return fmt.Errorf("pid %d: %w", pid, ErrProcessNotFound)
	}
	p.priority = prio
	return nil
}

// Snapshot copies every used slot, ordered by PID, and refreshes the
// per-state gauge.
func (m *Manager) Snapshot() []Info {
	flags := m.hart.SaveDisable()
	var infos []Info
	counts := make(map[State]int)
	for i := range m.procs {
		p := &m.procs[i]
		counts[p.state]++
		if p.state != StateUnused {
			infos = append(infos, p.info())
		}
	}
	m.hart.Restore(flags)

	for _, s := range []State{StateUnused, StateEmbryo, StateReady, StateRunning, StateSleeping, StateZombie} {
		m.metrics.procsByState.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].PID < infos[j].PID })
	return infos
}

// Count returns the number of used slots.
func (m *Manager) Count() int {
	flags := m.hart.SaveDisable()
	defer m.hart.Restore(flags)
	n := 0
	for i := range m.procs {
		if m.procs[i].state != StateUnused {
			n++
		}
	}
	return n
}

// Tick takes a timer interrupt on behalf of the current process, the way a
// hardware timer would at the next instruction boundary.
func (m *Manager) Tick() {
	m.hart.Raise()
	m.Checkpoint()
}

// Checkpoint delivers interrupts raised asynchronously, for example by a
// hal.Timer, and any pending signals. Long-running process bodies call it
// to stay preemptible.
func (m *Manager) Checkpoint() {
	m.hart.Poll()
	m.deliverSignals()
}

// onTimer is the timer vector.
func (m *Manager) onTimer() {
	m.tick()
	m.scheduleLocked()
}

// tick does the accounting for one timer interrupt without rescheduling.
func (m *Manager) tick() {
	m.ticks++
	m.metrics.ticks.Inc()
	if cur := m.current; cur != nil && cur.state == StateRunning {
		cur.cpuTime++
		m.checkLimits(cur)
	}
	m.tickWaiters.wakeAllLocked()
}

// Ticks returns the number of timer interrupts serviced since boot.
func (m *Manager) Ticks() uint64 {
	flags := m.hart.SaveDisable()
	defer m.hart.Restore(flags)
	return m.ticks
}

// SleepTicks blocks the current process for at least n timer ticks. A
// deliverable signal cuts the sleep short; it is acted on before SleepTicks
// returns, and a terminating one never returns.
func (m *Manager) SleepTicks(n uint64) {
	flags := m.hart.SaveDisable()
	p := m.current
	deadline := m.ticks + n
	for m.ticks < deadline && !p.signals.deliverable() {
		p.reason = sleepReasonTicks
		m.tickWaiters.SleepLocked()
	}
	m.hart.Restore(flags)
	m.deliverSignals()
}

// Hart returns the hart the kernel runs on.
func (m *Manager) Hart() *hal.Hart { return m.hart }

// Heap returns the kernel heap.
func (m *Manager) Heap() *mm.Heap { return m.heap }

// Config returns the kernel tunables.
func (m *Manager) Config() config.Kernel { return m.cfg }

// Registry returns the metrics registry.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Logger returns the kernel logger.
func (m *Manager) Logger() *logging.Logger { return m.logger }

// MaxProcs returns the process table capacity, init included.
func (m *Manager) MaxProcs() int { return len(m.procs) }
