package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all application metrics
type Metrics struct {
	// Outbox publisher metrics
	OutboxPublished      *prometheus.CounterVec
	OutboxRescheduled    *prometheus.CounterVec
	OutboxDeadLettered   *prometheus.CounterVec
	OutboxClaimed        prometheus.Counter
	OutboxPublishLatency *prometheus.HistogramVec

	// Consumer metrics
	ConsumerOutcomes           *prometheus.CounterVec
	ConsumerRetries            *prometheus.CounterVec
	ConsumerReclaims           *prometheus.CounterVec
	ConsumerProcessingDuration *prometheus.HistogramVec

	// Replay metrics
	ReplaysTotal *prometheus.CounterVec

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
}

// NewMetrics creates and registers all metrics against the given registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := prometheus.WrapRegistererWith(nil, reg)

	m := &Metrics{
		OutboxPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_published_total",
				Help:      "Total number of outbox rows published to the bus",
			},
			[]string{"event_type"},
		),
		OutboxRescheduled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_rescheduled_total",
				Help:      "Total number of outbox rows rescheduled after a transient publish failure",
			},
			[]string{"event_type"},
		),
		OutboxDeadLettered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_dead_lettered_total",
				Help:      "Total number of outbox rows dead-lettered by the publisher",
			},
			[]string{"event_type"},
		),
		OutboxClaimed: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "outbox_claimed_total",
				Help:      "Total number of outbox rows claimed for publishing",
			},
		),
		OutboxPublishLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "outbox_publish_duration_seconds",
				Help:      "Bus publish duration per outbox row",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"event_type"},
		),
		ConsumerOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "consumer_outcomes_total",
				Help:      "Terminal outcomes of consumed messages",
			},
			[]string{"stream", "outcome"},
		),
		ConsumerRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "consumer_retries_total",
				Help:      "In-process retry attempts while consuming messages",
			},
			[]string{"stream"},
		),
		ConsumerReclaims: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "consumer_reclaims_total",
				Help:      "Unacked messages taken over from the group's pending entries list",
			},
			[]string{"stream"},
		),
		ConsumerProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "consumer_processing_duration_seconds",
				Help:      "Time from message read to terminal outcome, including retry sleeps",
				Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"stream"},
		),
		ReplaysTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dead_letter_replays_total",
				Help:      "Dead-letter replays by result",
			},
			[]string{"result"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"name"},
		),
	}

	// Register all collectors
	factory.MustRegister(
		m.OutboxPublished,
		m.OutboxRescheduled,
		m.OutboxDeadLettered,
		m.OutboxClaimed,
		m.OutboxPublishLatency,
		m.ConsumerOutcomes,
		m.ConsumerRetries,
		m.ConsumerReclaims,
		m.ConsumerProcessingDuration,
		m.ReplaysTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.CircuitBreakerState,
	)

	return m
}
