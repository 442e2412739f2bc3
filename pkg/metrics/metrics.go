package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoansCreated counts loan creation attempts by outcome.
	LoansCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "laureateloan_loans_created_total",
			Help: "Loan creation attempts by outcome",
		},
		[]string{"status"},
	)

	// PaymentTransitions counts payment status changes.
	PaymentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "laureateloan_payment_transitions_total",
			Help: "Payment status transitions by source and target status",
		},
		[]string{"from", "to"},
	)

	// LoansCompleted counts loans closed automatically after their last collection.
	LoansCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "laureateloan_loans_auto_completed_total",
			Help: "Loans moved to completed because nothing remained to collect",
		},
	)

	// ScheduleRegenerations counts regeneration attempts by outcome.
	ScheduleRegenerations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "laureateloan_schedule_regenerations_total",
			Help: "Payment schedule regenerations by outcome",
		},
		[]string{"result"},
	)

	// HTTPRequests counts API calls.
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "laureateloan_http_requests_total",
			Help: "HTTP requests by route, method and status code",
		},
		[]string{"route", "method", "code"},
	)

	// HTTPDuration observes API latency.
	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "laureateloan_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)
