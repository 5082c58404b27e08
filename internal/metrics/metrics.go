package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ordercore"

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_ms",
		Help:      "HTTP request latency in milliseconds.",
		Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	}, []string{"method", "path"})

	// result: ok / cart_empty / out_of_stock / product_not_found / lock_timeout / code_collision / error
	Checkouts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkouts_total",
		Help:      "Checkout attempts by result.",
	}, []string{"result"})

	CheckoutRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "checkout_retries_total",
		Help:      "Checkout transactions retried after a retryable conflict.",
	})

	OrderTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "order_transitions_total",
		Help:      "Applied order status transitions.",
	}, []string{"from", "to"})

	StockRestoredUnits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_restored_units_total",
		Help:      "Units returned to stock by cancellations.",
	})

	OutboxPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "outbox_events_total",
		Help:      "Outbox events handled by the relay.",
	}, []string{"result"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
