// Package metrics declares the gateway's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for normalization
const (
	OutcomeIncluded = "included"
	OutcomeExcluded = "excluded"
)

var (
	// BackendRequests counts backend calls by call name and HTTP status
	BackendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricelens_backend_requests_total",
			Help: "Requests sent to the price-comparison backend",
		},
		[]string{"call", "status"},
	)

	// BackendRequestDuration observes backend call latency
	BackendRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pricelens_backend_request_duration_seconds",
			Help:    "Duration of price-comparison backend requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"call"},
	)

	// OffersNormalized counts retailer payloads by normalization outcome
	OffersNormalized = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricelens_offers_normalized_total",
			Help: "Retailer payloads processed by the offer normalizer",
		},
		[]string{"retailer", "outcome"},
	)

	// CacheLookups counts deal cache lookups as hit or miss
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricelens_cache_lookups_total",
			Help: "Deal cache lookups by result",
		},
		[]string{"result"},
	)

	// StaleResults counts comparisons dropped for a superseded session ticket
	StaleResults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pricelens_stale_results_discarded_total",
			Help: "Comparisons dropped because a newer request was issued for the same session",
		},
	)
)
