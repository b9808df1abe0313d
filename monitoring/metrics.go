package monitoring

import (
	"context"
	"log/slog"
	"time"

	"event-registration/internal/lib/logger/sl"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	paymentInitiations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_initiations_total",
			Help: "Payment initiations per provider and result",
		},
		[]string{"provider", "status"},
	)

	paymentVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_verifications_total",
			Help: "Payment verifications per provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	webhookEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_webhook_events_total",
			Help: "Webhook deliveries per provider and result",
		},
		[]string{"provider", "result"},
	)

	gatewayCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_call_duration_seconds",
			Help:    "Duration of calls to payment gateways",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"provider", "operation", "status"},
	)

	correlationLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_correlation_lookups_total",
			Help: "Correlation cache lookups by result",
		},
		[]string{"result"},
	)

	reapedPayers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "payment_reaped_payers_total",
			Help: "Stale pending payers deleted by the reaper",
		},
	)

	pendingPayers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "payment_pending_payers",
			Help: "Payers currently awaiting verification",
		},
	)
)

// Verification outcomes.
const (
	OutcomeVerified         = "verified"
	OutcomeFailed           = "failed"
	OutcomePending          = "pending"
	OutcomeUnderpaid        = "underpaid"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomePartialUpdate    = "partial_update"
	OutcomeError            = "error"
)

// Webhook results.
const (
	WebhookAccepted = "accepted"
	WebhookIgnored  = "ignored"
	WebhookRejected = "rejected"
)

// PendingCounter reports how many payers are still pending.
type PendingCounter interface {
	CountPending(ctx context.Context) (int64, error)
}

type Monitor struct {
	source   PendingCounter
	interval time.Duration
	log      *slog.Logger
}

func NewMonitor(source PendingCounter, log *slog.Logger) *Monitor {
	return &Monitor{
		source:   source,
		interval: 30 * time.Second,
		log:      log,
	}
}

// Start collects gauges until ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	go m.collectMetrics(ctx)
}

func (m *Monitor) collectMetrics(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.collectPendingMetrics(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.collectPendingMetrics(ctx)
		}
	}
}

func (m *Monitor) collectPendingMetrics(ctx context.Context) {
	n, err := m.source.CountPending(ctx)
	if err != nil {
		m.log.Warn("failed to count pending payers", sl.Err(err))
		return
	}
	pendingPayers.Set(float64(n))
}

func TrackInitiation(provider, status string) {
	paymentInitiations.WithLabelValues(provider, status).Inc()
}

func TrackVerification(provider, outcome string) {
	paymentVerifications.WithLabelValues(provider, outcome).Inc()
}

func TrackWebhook(provider, result string) {
	webhookEvents.WithLabelValues(provider, result).Inc()
}

// TrackGatewayCall records one gateway round trip started at start.
func TrackGatewayCall(provider, operation string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	gatewayCallDuration.WithLabelValues(provider, operation, status).Observe(time.Since(start).Seconds())
}

func TrackCorrelationLookup(result string) {
	correlationLookups.WithLabelValues(result).Inc()
}

func TrackReaped(n int64) {
	if n > 0 {
		reapedPayers.Add(float64(n))
	}
}
