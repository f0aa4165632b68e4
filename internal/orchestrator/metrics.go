package orchestrator

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"genflow/internal/agent"
)

// Metrics exposes Prometheus collectors that report task runner activity.
type Metrics struct {
	tasksTotal      *prometheus.CounterVec
	taskDuration    *prometheus.HistogramVec
	pollsTotal      prometheus.Counter
	archiveFailures prometheus.Counter
	tasksActive     prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// defaultMetrics returns the instance registered with the global registry.
// Collectors are created once so building several runners does not panic on
// duplicate registration.
func defaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs Metrics on reg. Collectors already registered on
// reg are reused; any other registration error panics.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "genflow",
				Subsystem: "orchestrator",
				Name:      "tasks_total",
				Help:      "Generation tasks by final status.",
			},
			[]string{"status"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "genflow",
				Subsystem: "orchestrator",
				Name:      "task_duration_seconds",
				Help:      "Wall-clock time from submission to the end of polling.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"status"},
		),
		pollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "genflow",
			Subsystem: "orchestrator",
			Name:      "polls_total",
			Help:      "Refresh attempts made against the agent service.",
		}),
		archiveFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "genflow",
			Subsystem: "orchestrator",
			Name:      "archive_failures_total",
			Help:      "Completed results that could not be archived.",
		}),
		tasksActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "genflow",
			Subsystem: "orchestrator",
			Name:      "tasks_active",
			Help:      "Tasks currently being submitted or polled.",
		}),
	}

	register := func(c prometheus.Collector) prometheus.Collector {
		if err := reg.Register(c); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				return already.ExistingCollector
			}
			panic(err)
		}
		return c
	}
	m.tasksTotal = register(m.tasksTotal).(*prometheus.CounterVec)
	m.taskDuration = register(m.taskDuration).(*prometheus.HistogramVec)
	m.pollsTotal = register(m.pollsTotal).(prometheus.Counter)
	m.archiveFailures = register(m.archiveFailures).(prometheus.Counter)
	m.tasksActive = register(m.tasksActive).(prometheus.Gauge)
	return m
}

// ObserveTask records the final status and duration of a task. Statuses
// outside the known vocabulary are counted as "unknown".
func (m *Metrics) ObserveTask(status string, duration time.Duration) {
	if m == nil || m.tasksTotal == nil {
		return
	}
	if !agent.Status(status).Known() {
		status = "unknown"
	}
	m.tasksTotal.WithLabelValues(status).Inc()
	m.taskDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// IncPoll counts one refresh attempt.
func (m *Metrics) IncPoll() {
	if m == nil || m.pollsTotal == nil {
		return
	}
	m.pollsTotal.Inc()
}

// IncArchiveFailure counts a failed archive attempt.
func (m *Metrics) IncArchiveFailure() {
	if m == nil || m.archiveFailures == nil {
		return
	}
	m.archiveFailures.Inc()
}

// IncActiveTasks marks a task as active.
func (m *Metrics) IncActiveTasks() {
	if m == nil || m.tasksActive == nil {
		return
	}
	m.tasksActive.Inc()
}

// DecActiveTasks marks a task as finished.
func (m *Metrics) DecActiveTasks() {
	if m == nil || m.tasksActive == nil {
		return
	}
	m.tasksActive.Dec()
}
