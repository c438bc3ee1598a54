package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Settlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountant_settlements_total",
			Help: "Payment notifications by settlement outcome",
		},
		[]string{"outcome"},
	)

	PayoutsIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "accountant_payouts_issued_total",
			Help: "Referral payouts committed to the ledger",
		},
	)

	PayoutsNotified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountant_payouts_notified_total",
			Help: "Payout notification deliveries by result",
		},
		[]string{"result"},
	)

	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "accountant_storage_errors_total",
			Help: "Failed settlement saves per storage",
		},
		[]string{"storage"},
	)

	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	ResponseTimeHistogram = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_time_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

const (
	OutcomeQualified   = "qualified"
	OutcomeUnqualified = "unqualified"
	OutcomeDuplicate   = "duplicate"
	OutcomeError       = "error"
)
