// Package metrics exposes Prometheus collectors for HTTP traffic and store activity.
package metrics

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinstore_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coinstore_http_request_duration_ms",
			Help:    "Duration of HTTP requests in ms",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 400, 800, 1600},
		},
		[]string{"method", "path"},
	)

	ordersCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinstore_orders_created_total",
			Help: "Orders created by payment method",
		},
		[]string{"payment_method"},
	)

	checkoutFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinstore_checkout_failures_total",
			Help: "Checkouts refused or failed by reason",
		},
		[]string{"reason"},
	)

	ledgerSettlements = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coinstore_ledger_settlements_total",
			Help: "Ledger entries settled by type and outcome",
		},
		[]string{"type", "status"},
	)

	balanceCorrections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coinstore_balance_corrections_total",
			Help: "Recalculations that changed a cached balance",
		},
	)
)

func OrderCreated(paymentMethod string) {
	ordersCreated.WithLabelValues(paymentMethod).Inc()
}

func CheckoutFailed(reason string) {
	checkoutFailures.WithLabelValues(reason).Inc()
}

func LedgerSettled(txType, status string) {
	ledgerSettlements.WithLabelValues(txType, status).Inc()
}

func BalanceCorrected() {
	balanceCorrections.Inc()
}

func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := float64(time.Since(start).Milliseconds())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		httpRequests.WithLabelValues(c.Request.Method, path,
			http.StatusText(c.Writer.Status())).Inc()
		httpDuration.WithLabelValues(c.Request.Method, path).Observe(duration)
	}
}

func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
