package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gigescrow/internal/lifecycle"
)

type metricsRegistry struct {
	registry         *prometheus.Registry
	purchasesTotal   *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	confirmationWait prometheus.Histogram
}

func newMetricsRegistry() *metricsRegistry {
	purchases := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gigescrow_purchases_total",
		Help: "Purchase attempts by outcome (confirmed or failure category)",
	}, []string{"result"})

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gigescrow_escrow_transitions_total",
		Help: "Committed escrow status transitions by target status",
	}, []string{"to"})

	wait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gigescrow_confirmation_wait_seconds",
		Help:    "Time spent waiting for a submitted group to confirm",
		Buckets: []float64{0.5, 1, 2, 4, 8, 15, 30, 60},
	})

	r := prometheus.NewRegistry()
	r.MustRegister(purchases, transitions, wait)

	return &metricsRegistry{
		registry:         r,
		purchasesTotal:   purchases,
		transitionsTotal: transitions,
		confirmationWait: wait,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incPurchase(result string) {
	m.purchasesTotal.WithLabelValues(result).Inc()
}

func (m *metricsRegistry) incTransition(_, to lifecycle.Status) {
	m.transitionsTotal.WithLabelValues(string(to)).Inc()
}

func (m *metricsRegistry) observeConfirmation(wait time.Duration, _ error) {
	m.confirmationWait.Observe(wait.Seconds())
}
