package metrics

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/ErlanBelekov/otp-auth/internal/health"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "otpauth"

var (
	// OTP metrics

	CodesIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "codes_issued_total",
		Help:      "Total one-time codes written to the code store, by channel.",
	}, []string{"channel"})

	DeliveryPublishFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delivery_publish_failures_total",
		Help:      "Delivery requests that could not be published to the bus.",
	})

	VerifyAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "verify_attempts_total",
		Help:      "Code verification attempts, by outcome.",
	}, []string{"outcome"})

	IdentitiesCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "identities_created_total",
		Help:      "Canonical identities created.",
	})

	IdentityConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "identity_conflicts_total",
		Help:      "Identity inserts that lost a uniqueness race and fell back to a re-read.",
	})

	// Outbox metrics

	OutboxEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_events_total",
		Help:      "Outbox relay results, by outcome.",
	}, []string{"outcome"})

	OutboxPublishLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "outbox_publish_latency_seconds",
		Help:      "Time from outbox commit to successful publish.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
	})

	OutboxPurgedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_purged_total",
		Help:      "Published outbox rows removed by the janitor.",
	})

	// Consumer metrics

	ConsumerMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "consumer_messages_total",
		Help:      "Bus messages handled, by event type and outcome.",
	}, []string{"event_type", "outcome"})

	ConsumerHandleDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "consumer_handle_duration_seconds",
		Help:      "Duration of a single message handler call.",
		Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"event_type"})

	ConsumerInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "consumer_messages_in_flight",
		Help:      "Messages currently being handled.",
	})

	DeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "deliveries_total",
		Help:      "Code deliveries, by channel and outcome.",
	}, []string{"channel", "outcome"})

	ReplicaWritesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "replica_writes_total",
		Help:      "identity.created applications, by result.",
	}, []string{"result"})

	// Process lifecycle

	StartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "process_start_time_seconds",
		Help:      "Unix timestamp when the process started.",
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		CodesIssuedTotal,
		DeliveryPublishFailuresTotal,
		VerifyAttemptsTotal,
		IdentitiesCreatedTotal,
		IdentityConflictsTotal,
		OutboxEventsTotal,
		OutboxPublishLatency,
		OutboxPurgedTotal,
		ConsumerMessagesTotal,
		ConsumerHandleDuration,
		ConsumerInFlight,
		DeliveriesTotal,
		ReplicaWritesTotal,
		StartTime,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
	StartTime.SetToCurrentTime()
}

type healthChecker interface {
	Liveness(ctx context.Context) health.HealthResult
	Readiness(ctx context.Context) health.HealthResult
}

// NewServer serves /metrics, /healthz and /readyz on a separate port.
func NewServer(addr string, checker healthChecker) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Liveness(r.Context()))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, checker.Readiness(r.Context()))
	})
	return &http.Server{Addr: addr, Handler: mux}
}

func writeHealth(w http.ResponseWriter, result health.HealthResult) {
	w.Header().Set("Content-Type", "application/json")
	if result.Status != "up" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(result)
}
