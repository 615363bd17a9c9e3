package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cycles         *prometheus.CounterVec
	cycleDuration  *prometheus.HistogramVec
	strategyErrors *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	excluded       *prometheus.CounterVec
	targets        prometheus.Gauge
	errorsTotal    *prometheus.CounterVec
	latency        *prometheus.HistogramVec
}

// New registers the cycle metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Recorder{
		cycles: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_cycles_total",
				Help: "Decision cycles by outcome (trade, no_trade, error)",
			},
			[]string{"outcome"},
		),
		cycleDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conductor_cycle_duration_seconds",
				Help:    "Wall-clock duration of a decision cycle",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		strategyErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_strategy_errors_total",
				Help: "Isolated strategy failures by kind",
			},
			[]string{"strategy_id", "error_type"},
		),
		dropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_signals_dropped_total",
				Help: "Signals dropped during deconfliction by reason",
			},
			[]string{"reason"},
		),
		excluded: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_symbols_excluded_total",
				Help: "Symbols excluded from the universe by reason",
			},
			[]string{"reason"},
		),
		targets: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "conductor_targets",
				Help: "Target positions in the last intent",
			},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "conductor_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "conductor_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

func (r *Recorder) RecordCycle(outcome string, seconds float64) {
	r.cycles.WithLabelValues(outcome).Inc()
	r.cycleDuration.WithLabelValues(outcome).Observe(seconds)
}

func (r *Recorder) RecordStrategyError(strategyID, errorType string) {
	r.strategyErrors.WithLabelValues(strategyID, errorType).Inc()
}

func (r *Recorder) RecordDropped(reason string, n int) {
	r.dropped.WithLabelValues(reason).Add(float64(n))
}

func (r *Recorder) RecordExcluded(reason string, n int) {
	r.excluded.WithLabelValues(reason).Add(float64(n))
}

func (r *Recorder) RecordTargets(n int) {
	r.targets.Set(float64(n))
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// Nop discards all observations.
type Nop struct{}

func (Nop) RecordCycle(string, float64) {}
func (Nop) RecordStrategyError(string, string) {}
func (Nop) RecordDropped(string, int) {}
func (Nop) RecordExcluded(string, int) {}
func (Nop) RecordTargets(int) {}
func (Nop) RecordError(string) {}
func (Nop) RecordLatency(string, float64) {}
