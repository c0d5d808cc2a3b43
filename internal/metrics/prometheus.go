package metrics

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// Registration errors are logged but never propagated, so a duplicate
// registration degrades to a sink whose collectors are simply not exported.
type PrometheusSink struct {
	runsStartedTotal   *prometheus.CounterVec
	runsCompletedTotal *prometheus.CounterVec
	runDuration        prometheus.Histogram

	actionsTotal   *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	fallbacksTotal *prometheus.CounterVec

	backendFailuresTotal *prometheus.CounterVec
	breakerOpen          *prometheus.GaugeVec

	simJobsTotal prometheus.Counter

	scheduleTicksTotal      *prometheus.CounterVec
	scheduleTickErrorsTotal *prometheus.CounterVec
}

// NewPrometheusSink creates a Prometheus metrics sink registered against reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initRunMetrics(reg)
	s.initActionMetrics(reg)
	s.initBackendMetrics(reg)
	s.initSchedulerMetrics(reg)
	return s
}

func (s *PrometheusSink) initRunMetrics(reg prometheus.Registerer) {
	s.runsStartedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "takt_runs_started_total",
		Help: "Total number of goal runs started.",
	}, []string{"goal"})

	s.runsCompletedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "takt_runs_completed_total",
		Help: "Total number of goal runs finished, by terminal status.",
	}, []string{"goal", "status"})

	s.runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "takt_run_duration_seconds",
		Help:    "Wall-clock duration of a goal run in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	s.register(reg, s.runsStartedTotal, "takt_runs_started_total")
	s.register(reg, s.runsCompletedTotal, "takt_runs_completed_total")
	s.register(reg, s.runDuration, "takt_run_duration_seconds")
}

func (s *PrometheusSink) initActionMetrics(reg prometheus.Registerer) {
	s.actionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "takt_actions_total",
		Help: "Total number of dispatched actions, by execution type and status.",
	}, []string{"type", "status"})

	s.actionDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "takt_action_duration_seconds",
		Help:    "Duration of a single action dispatch in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"type"})

	s.fallbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "takt_fallbacks_total",
		Help: "Total number of fallback estimates served in place of a backend result.",
	}, []string{"backend"})

	s.register(reg, s.actionsTotal, "takt_actions_total")
	s.register(reg, s.actionDuration, "takt_action_duration_seconds")
	s.register(reg, s.fallbacksTotal, "takt_fallbacks_total")
}

func (s *PrometheusSink) initBackendMetrics(reg prometheus.Registerer) {
	s.backendFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "takt_backend_failures_total",
		Help: "Total number of backend call failures, by backend and status class.",
	}, []string{"backend", "status_class"})

	s.breakerOpen = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "takt_breaker_open",
		Help: "Whether the circuit breaker for a backend is currently open (1) or not (0).",
	}, []string{"backend"})

	s.simJobsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "takt_sim_jobs_total",
		Help: "Total number of jobs pushed through the discrete-event simulator.",
	})

	s.register(reg, s.backendFailuresTotal, "takt_backend_failures_total")
	s.register(reg, s.breakerOpen, "takt_breaker_open")
	s.register(reg, s.simJobsTotal, "takt_sim_jobs_total")
}

func (s *PrometheusSink) initSchedulerMetrics(reg prometheus.Registerer) {
	s.scheduleTicksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "takt_schedule_ticks_total",
		Help: "Total number of scheduled goal triggers fired.",
	}, []string{"goal"})

	s.scheduleTickErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "takt_schedule_tick_errors_total",
		Help: "Total number of scheduled goal triggers that ended in error.",
	}, []string{"goal"})

	s.register(reg, s.scheduleTicksTotal, "takt_schedule_ticks_total")
	s.register(reg, s.scheduleTickErrorsTotal, "takt_schedule_tick_errors_total")
}

// register attempts to register a collector, logging failures without
// propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		slog.Warn("metrics registration failed", "metric", name, "error", err)
	}
}

func (s *PrometheusSink) RunStarted(goal string) {
	s.runsStartedTotal.WithLabelValues(goal).Inc()
}

func (s *PrometheusSink) RunCompleted(goal, status string, duration time.Duration) {
	s.runsCompletedTotal.WithLabelValues(goal, status).Inc()
	s.runDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) ActionCompleted(actionType, status string, duration time.Duration) {
	s.actionsTotal.WithLabelValues(actionType, status).Inc()
	s.actionDuration.WithLabelValues(actionType).Observe(duration.Seconds())
}

func (s *PrometheusSink) FallbackUsed(backend string) {
	s.fallbacksTotal.WithLabelValues(backend).Inc()
}

func (s *PrometheusSink) BackendFailure(backend, statusClass string) {
	s.backendFailuresTotal.WithLabelValues(backend, statusClass).Inc()
}

func (s *PrometheusSink) BreakerStateUpdate(backend string, open bool) {
	v := 0.0
	if open {
		v = 1.0
	}
	s.breakerOpen.WithLabelValues(backend).Set(v)
}

func (s *PrometheusSink) JobsSimulated(count int) {
	s.simJobsTotal.Add(float64(count))
}

func (s *PrometheusSink) ScheduleTick(goal string, err error) {
	s.scheduleTicksTotal.WithLabelValues(goal).Inc()
	if err != nil {
		s.scheduleTickErrorsTotal.WithLabelValues(goal).Inc()
	}
}
