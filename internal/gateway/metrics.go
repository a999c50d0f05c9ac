package gateway

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes.
const (
	outcomeOK        = "ok"
	outcomeHTTP      = "http_error"
	outcomeTransport = "transport_error"
	outcomeBadBody   = "bad_body"
	outcomeInvalid   = "invalid_request"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cartsync_gateway_requests_total",
		Help: "Cart API requests by operation and outcome",
	}, []string{"op", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cartsync_gateway_request_duration_seconds",
		Help:    "Cart API request duration in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"op"})
)
