package process

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "rvkernel"

// metrics are registered on a per-manager registry so several kernels can
// coexist in one test binary.
type metrics struct {
	created         prometheus.Counter
	createFailures  prometheus.Counter
	exited          prometheus.Counter
	reaped          prometheus.Counter
	contextSwitches prometheus.Counter
	preemptions     prometheus.Counter
	ticks           prometheus.Counter
	idleWaits       prometheus.Counter
	wakeups         prometheus.Counter
	readyDrops      prometheus.Counter
	signals         *prometheus.CounterVec
	readyQueue      prometheus.Gauge
	procsByState    *prometheus.GaugeVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		created: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "proc",
			Name:      "created_total",
			Help:      "Processes created.",
		}),
		createFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "proc",
			Name:      "create_failures_total",
			Help:      "Process creations rolled back for lack of a slot or memory.",
		}),
		exited: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "proc",
			Name:      "exited_total",
			Help:      "Processes that became zombies.",
		}),
		reaped: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "proc",
			Name:      "freed_total",
			Help:      "Process slots returned to the table.",
		}),
		contextSwitches: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sched",
			Name:      "context_switches_total",
			Help:      "Dispatches of a different process.",
		}),
		preemptions: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sched",
			Name:      "slice_expirations_total",
			Help:      "Time slices that ran out.",
		}),
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sched",
			Name:      "ticks_total",
			Help:      "Timer interrupts serviced.",
		}),
		idleWaits: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sched",
			Name:      "idle_waits_total",
			Help:      "Times the hart waited for an interrupt with nothing to run.",
		}),
		wakeups: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sched",
			Name:      "wakeups_total",
			Help:      "Sleeping processes made ready.",
		}),
		readyDrops: f.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "sched",
			Name:      "ready_queue_drops_total",
			Help:      "Processes dropped because the ready queue was full.",
		}),
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "proc",
			Name:      "signals_total",
			Help:      "Signals posted, by signal name.",
		}, []string{"signal"}),
		readyQueue: f.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "sched",
			Name:      "ready_queue_length",
			Help:      "Processes waiting in the ready queue.",
		}),
		procsByState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "proc",
			Name:      "processes",
			Help:      "Table slots by state, refreshed on Snapshot.",
		}, []string{"state"}),
	}
}
