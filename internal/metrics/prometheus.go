package metrics

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	jobsStarted  *prometheus.CounterVec
	jobsFinished *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	jobsInFlight *prometheus.GaugeVec

	txSubmitted *prometheus.CounterVec
	txDuration  *prometheus.HistogramVec

	tradesTotal        *prometheus.CounterVec
	walletsDistributed *prometheus.CounterVec

	webhookAttempts *prometheus.CounterVec
	webhookDuration prometheus.Histogram
	webhookOutcomes *prometheus.CounterVec

	aggregationRuns     prometheus.Gauge
	aggregationDuration prometheus.Histogram
	aggregationErrors   prometheus.Counter
	eventsBroadcast     *prometheus.CounterVec
}

var _ Sink = (*PrometheusSink)(nil)

// NewPrometheusSink creates a Prometheus sink registered in reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initWorkerMetrics(reg)
	s.initTxMetrics(reg)
	s.initWebhookMetrics(reg)
	s.initAggregatorMetrics(reg)
	return s
}

func (s *PrometheusSink) initWorkerMetrics(reg prometheus.Registerer) {
	s.jobsStarted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swarm_worker_jobs_started_total",
		Help: "Total number of jobs leased by worker pools.",
	}, []string{"queue"})
	s.jobsFinished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swarm_worker_jobs_finished_total",
		Help: "Total number of job executions by outcome.",
	}, []string{"queue", "outcome"})
	s.jobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swarm_worker_job_duration_seconds",
		Help:    "Job execution duration in seconds.",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"queue"})
	s.jobsInFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "swarm_worker_jobs_in_flight",
		Help: "Number of jobs currently executing.",
	}, []string{"queue"})

	s.register(reg, s.jobsStarted, "swarm_worker_jobs_started_total")
	s.register(reg, s.jobsFinished, "swarm_worker_jobs_finished_total")
	s.register(reg, s.jobDuration, "swarm_worker_job_duration_seconds")
	s.register(reg, s.jobsInFlight, "swarm_worker_jobs_in_flight")
}

func (s *PrometheusSink) initTxMetrics(reg prometheus.Registerer) {
	s.txSubmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swarm_tx_submitted_total",
		Help: "Total number of transaction submissions by strategy and outcome.",
	}, []string{"strategy", "outcome"})
	s.txDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "swarm_tx_settlement_seconds",
		Help:    "Time from submission to settlement outcome.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"strategy"})
	s.tradesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swarm_trades_total",
		Help: "Total number of trades by side and result.",
	}, []string{"side", "success"})
	s.walletsDistributed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swarm_distribution_wallets_total",
		Help: "Total number of wallets processed by distribution.",
	}, []string{"result"})

	s.register(reg, s.txSubmitted, "swarm_tx_submitted_total")
	s.register(reg, s.txDuration, "swarm_tx_settlement_seconds")
	s.register(reg, s.tradesTotal, "swarm_trades_total")
	s.register(reg, s.walletsDistributed, "swarm_distribution_wallets_total")
}

func (s *PrometheusSink) initWebhookMetrics(reg prometheus.Registerer) {
	s.webhookAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swarm_webhook_attempts_total",
		Help: "Total number of webhook delivery attempts.",
	}, []string{"status_class"})
	s.webhookDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarm_webhook_duration_seconds",
		Help:    "Webhook request latency in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
	s.webhookOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swarm_webhook_outcomes_total",
		Help: "Total number of webhook delivery outcomes.",
	}, []string{"outcome"})

	s.register(reg, s.webhookAttempts, "swarm_webhook_attempts_total")
	s.register(reg, s.webhookDuration, "swarm_webhook_duration_seconds")
	s.register(reg, s.webhookOutcomes, "swarm_webhook_outcomes_total")
}

func (s *PrometheusSink) initAggregatorMetrics(reg prometheus.Registerer) {
	s.aggregationRuns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "swarm_aggregator_active_runs",
		Help: "Number of non-terminal runs seen by the last aggregation.",
	})
	s.aggregationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "swarm_aggregator_tick_duration_seconds",
		Help:    "Duration of each aggregation tick.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
	})
	s.aggregationErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "swarm_aggregator_tick_errors_total",
		Help: "Total number of failed aggregation ticks.",
	})
	s.eventsBroadcast = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "swarm_events_broadcast_total",
		Help: "Total number of realtime events broadcast.",
	}, []string{"type"})

	s.register(reg, s.aggregationRuns, "swarm_aggregator_active_runs")
	s.register(reg, s.aggregationDuration, "swarm_aggregator_tick_duration_seconds")
	s.register(reg, s.aggregationErrors, "swarm_aggregator_tick_errors_total")
	s.register(reg, s.eventsBroadcast, "swarm_events_broadcast_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		slog.Warn("metrics: failed to register collector", "name", name, "error", err)
	}
}

func (s *PrometheusSink) JobStarted(queue string) {
	s.jobsStarted.WithLabelValues(queue).Inc()
}

func (s *PrometheusSink) JobFinished(queue, outcome string, duration time.Duration) {
	s.jobsFinished.WithLabelValues(queue, outcome).Inc()
	s.jobDuration.WithLabelValues(queue).Observe(duration.Seconds())
}

func (s *PrometheusSink) JobsInFlight(queue string, delta int) {
	s.jobsInFlight.WithLabelValues(queue).Add(float64(delta))
}

func (s *PrometheusSink) TransactionSubmitted(strategy, outcome string, duration time.Duration) {
	s.txSubmitted.WithLabelValues(strategy, outcome).Inc()
	s.txDuration.WithLabelValues(strategy).Observe(duration.Seconds())
}

func (s *PrometheusSink) TradeCompleted(side string, success bool) {
	s.tradesTotal.WithLabelValues(side, strconv.FormatBool(success)).Inc()
}

func (s *PrometheusSink) DistributionCompleted(funded, failed int) {
	s.walletsDistributed.WithLabelValues("funded").Add(float64(funded))
	s.walletsDistributed.WithLabelValues("failed").Add(float64(failed))
}

func (s *PrometheusSink) WebhookAttempt(statusClass string, duration time.Duration) {
	s.webhookAttempts.WithLabelValues(statusClass).Inc()
	s.webhookDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) WebhookOutcome(outcome string) {
	s.webhookOutcomes.WithLabelValues(outcome).Inc()
}

func (s *PrometheusSink) AggregationCompleted(runs int, duration time.Duration, err error) {
	s.aggregationRuns.Set(float64(runs))
	s.aggregationDuration.Observe(duration.Seconds())
	if err != nil {
		s.aggregationErrors.Inc()
	}
}

func (s *PrometheusSink) EventBroadcast(eventType string) {
	s.eventsBroadcast.WithLabelValues(eventType).Inc()
}
