package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	tokensCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "course_tokens_created_total",
			Help: "Number of course tokens created.",
		},
	)

	tokensVoided = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "course_tokens_voided_total",
			Help: "Number of course tokens voided.",
		},
	)

	redemptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "course_token_redemptions_total",
			Help: "Redemption attempts by outcome.",
		},
		[]string{"outcome"},
	)

	mailFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_mail_failures_total",
			Help: "Notification emails that failed after retries.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by route and status class.",
		},
		[]string{"route", "status"},
	)

	dbLatencyMs = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_op_latency_ms",
			Help:    "Database operation latency distribution in milliseconds.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"op"},
	)
)

// Register installs all collectors on the default registry. Safe to call more
// than once.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			tokensCreated,
			tokensVoided,
			redemptions,
			mailFailures,
			httpRequests,
			dbLatencyMs,
		)
	})
}

func AddTokensCreated(n int) {
	if n > 0 {
		tokensCreated.Add(float64(n))
	}
}

func IncTokensVoided() { tokensVoided.Inc() }

func IncRedemption(outcome string) { redemptions.WithLabelValues(outcome).Inc() }

func IncMailFailure() { mailFailures.Inc() }

func IncHTTPRequest(route, status string) { httpRequests.WithLabelValues(route, status).Inc() }

func ObserveDBLatency(op string, ms float64) { dbLatencyMs.WithLabelValues(op).Observe(ms) }
