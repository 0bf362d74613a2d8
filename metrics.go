package swarm

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors that report orchestrator activity.
// A nil *Metrics is valid and records nothing, so the engine can observe
// unconditionally.
type Metrics struct {
	taskDuration    *prometheus.HistogramVec
	attemptDuration *prometheus.HistogramVec
	tasksTotal      *prometheus.CounterVec
	qualityScore    prometheus.Histogram
	tasksActive     prometheus.Gauge
}

var (
	defaultMetricsOnce sync.Once
	sharedMetrics      *Metrics
)

// DefaultMetrics returns the package-level metrics instance registered with
// the global Prometheus registry. The collectors are created only once to
// avoid duplicate registration panics when several orchestrators run in one
// process.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		sharedMetrics = MustNewMetrics(prometheus.DefaultRegisterer)
	})
	return sharedMetrics
}

// MustNewMetrics constructs a Metrics instance using the provided registerer.
// Supply a fresh registry when unique metric names are required, e.g. in
// tests. Registration errors other than duplicate registration panic, which
// surfaces configuration bugs early.
func MustNewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	taskDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "swarm",
			Subsystem: "orchestrator",
			Name:      "task_duration_seconds",
			Help:      "Wall time from task admission to terminal status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)
	attemptDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "swarm",
			Subsystem: "orchestrator",
			Name:      "attempt_duration_seconds",
			Help:      "Duration of individual generate calls.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend", "result"},
	)
	tasksTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "swarm",
			Subsystem: "orchestrator",
			Name:      "tasks_total",
			Help:      "Total tasks by terminal outcome and strategy.",
		},
		[]string{"outcome", "strategy"},
	)
	qualityScore := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "swarm",
			Subsystem: "orchestrator",
			Name:      "verification_quality",
			Help:      "Verification quality scores across all attempts.",
			Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
		},
	)
	tasksActive := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "swarm",
			Subsystem: "orchestrator",
			Name:      "tasks_active",
			Help:      "Number of tasks currently holding a concurrency slot.",
		},
	)

	collectors := []prometheus.Collector{taskDuration, attemptDuration, tasksTotal, qualityScore, tasksActive}
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				switch collector {
				case taskDuration:
					taskDuration = already.ExistingCollector.(*prometheus.HistogramVec)
				case attemptDuration:
					attemptDuration = already.ExistingCollector.(*prometheus.HistogramVec)
				case tasksTotal:
					tasksTotal = already.ExistingCollector.(*prometheus.CounterVec)
				case qualityScore:
					qualityScore = already.ExistingCollector.(prometheus.Histogram)
				case tasksActive:
					tasksActive = already.ExistingCollector.(prometheus.Gauge)
				}
				continue
			}
			panic(err)
		}
	}

	return &Metrics{
		taskDuration:    taskDuration,
		attemptDuration: attemptDuration,
		tasksTotal:      tasksTotal,
		qualityScore:    qualityScore,
		tasksActive:     tasksActive,
	}
}

// ObserveTask records a terminal task outcome and its duration.
func (m *Metrics) ObserveTask(outcome TaskStatus, strategy StrategyTag, duration time.Duration) {
	if m == nil || m.taskDuration == nil {
		return
	}
	m.taskDuration.WithLabelValues(string(outcome)).Observe(duration.Seconds())
	m.tasksTotal.WithLabelValues(string(outcome), string(strategy)).Inc()
}

// ObserveAttempt records one generate call with its result label.
func (m *Metrics) ObserveAttempt(backend, result string, duration time.Duration) {
	if m == nil || m.attemptDuration == nil {
		return
	}
	m.attemptDuration.WithLabelValues(backend, result).Observe(duration.Seconds())
}

// ObserveQuality records one verification score.
func (m *Metrics) ObserveQuality(quality float64) {
	if m == nil || m.qualityScore == nil {
		return
	}
	m.qualityScore.Observe(quality)
}

// IncActiveTasks marks a task as holding a concurrency slot.
func (m *Metrics) IncActiveTasks() {
	if m == nil || m.tasksActive == nil {
		return
	}
	m.tasksActive.Inc()
}

// DecActiveTasks marks a task as released.
func (m *Metrics) DecActiveTasks() {
	if m == nil || m.tasksActive == nil {
		return
	}
	m.tasksActive.Dec()
}
