package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
// Collectors register against the default registry, so build exactly
// one Recorder per process.
type Recorder struct {
	votes         *prometheus.CounterVec
	abstentions   prometheus.Counter
	evalFailures  prometheus.Counter
	cycles        *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	candidates    prometheus.Gauge
	intents       *prometheus.CounterVec
	rejections    *prometheus.CounterVec
	storeRetries  *prometheus.CounterVec
	points        *prometheus.GaugeVec
	resolutions   *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	lastPrice     *prometheus.GaugeVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		votes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finrank_votes_total",
				Help: "Strategy votes collected, by signal",
			},
			[]string{"signal"},
		),
		abstentions: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "finrank_abstentions_total",
				Help: "Strategy evaluations that returned no vote",
			},
		),
		evalFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "finrank_evaluation_failures_total",
				Help: "Strategy evaluations that errored, panicked or timed out",
			},
		),
		cycles: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finrank_cycles_total",
				Help: "Decision cycles run, by terminal status",
			},
			[]string{"status"},
		),
		cycleDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "finrank_cycle_duration_seconds",
				Help:    "Wall time of a full decision cycle",
				Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		candidates: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "finrank_candidates",
				Help: "Candidates selected by the last cycle",
			},
		),
		intents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finrank_intents_total",
				Help: "Trade intents emitted, by side",
			},
			[]string{"side"},
		),
		rejections: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finrank_rejections_total",
				Help: "Allocation rejections, by reason",
			},
			[]string{"reason"},
		),
		storeRetries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finrank_store_retries_total",
				Help: "Persistence attempts that had to be retried",
			},
			[]string{"op"},
		),
		points: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finrank_strategy_points",
				Help: "Current performance points per strategy",
			},
			[]string{"strategy"},
		),
		resolutions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finrank_resolutions_total",
				Help: "Resolved simulated positions, by outcome",
			},
			[]string{"outcome"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finrank_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finrank_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		lastPrice: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "finrank_last_price",
				Help: "Last recorded price for a symbol",
			},
			[]string{"symbol"},
		),
	}
}

func (r *Recorder) RecordVote(signal string) {
	r.votes.WithLabelValues(signal).Inc()
}

func (r *Recorder) RecordAbstention() {
	r.abstentions.Inc()
}

func (r *Recorder) RecordEvaluationFailure() {
	r.evalFailures.Inc()
}

// RecordCycle records one finished cycle and its wall time.
func (r *Recorder) RecordCycle(status string, seconds float64) {
	r.cycles.WithLabelValues(status).Inc()
	r.cycleDuration.Observe(seconds)
}

func (r *Recorder) RecordCandidates(n int) {
	r.candidates.Set(float64(n))
}

func (r *Recorder) RecordIntent(side string) {
	r.intents.WithLabelValues(side).Inc()
}

func (r *Recorder) RecordRejection(reason string) {
	r.rejections.WithLabelValues(reason).Inc()
}

func (r *Recorder) RecordStoreRetry(op string) {
	r.storeRetries.WithLabelValues(op).Inc()
}

func (r *Recorder) RecordScore(strategy string, points float64) {
	r.points.WithLabelValues(strategy).Set(points)
}

func (r *Recorder) RecordResolution(outcome string) {
	r.resolutions.WithLabelValues(outcome).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

// RecordLastPrice records the last price for a symbol.
func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}
