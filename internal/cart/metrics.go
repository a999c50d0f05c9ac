package cart

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var staleResponses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "cartsync_store_stale_responses_total",
	Help: "Cart responses dropped because the cart was reset while they were in flight",
})
