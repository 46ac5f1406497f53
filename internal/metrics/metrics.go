// Package metrics exposes Prometheus instruments for the marketplace. A nil *Collector
// is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	transitions     *prometheus.CounterVec
	opLatency       *prometheus.HistogramVec
	locationUpdates *prometheus.CounterVec
	subscriptions   prometheus.Gauge
	auditMismatches prometheus.Counter
	walletMoves     *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewCollector registers the instruments on reg. Passing nil uses a fresh registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workerlly_job_operations_total",
			Help: "Lifecycle operations by name and outcome",
		}, []string{"op", "outcome"}),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "workerlly_job_operation_seconds",
			Help:    "Lifecycle operation latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		locationUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workerlly_location_updates_total",
			Help: "Seeker location updates by delivery result",
		}, []string{"result"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "workerlly_tracking_subscriptions",
			Help: "Open provider tracking subscriptions on this node",
		}),
		auditMismatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "workerlly_wallet_audit_mismatches_total",
			Help: "Wallets whose cached balance disagreed with the transaction log",
		}),
		walletMoves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "workerlly_wallet_transactions_total",
			Help: "Wallet ledger entries by type",
		}, []string{"type"}),
		gatherer: reg,
	}
	reg.MustRegister(c.transitions, c.opLatency, c.locationUpdates, c.subscriptions, c.auditMismatches, c.walletMoves)
	return c
}

// ObserveOp records one lifecycle operation. outcome is "ok" or an error kind.
func (c *Collector) ObserveOp(op, outcome string, started time.Time) {
	if c == nil {
		return
	}
	c.transitions.WithLabelValues(op, outcome).Inc()
	c.opLatency.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (c *Collector) LocationUpdate(delivered bool) {
	if c == nil {
		return
	}
	if delivered {
		c.locationUpdates.WithLabelValues("delivered").Inc()
	} else {
		c.locationUpdates.WithLabelValues("no_subscriber").Inc()
	}
}

func (c *Collector) SubscriptionAdded() {
	if c != nil {
		c.subscriptions.Inc()
	}
}

func (c *Collector) SubscriptionsRemoved(n int) {
	if c != nil && n > 0 {
		c.subscriptions.Sub(float64(n))
	}
}

func (c *Collector) AuditMismatch() {
	if c != nil {
		c.auditMismatches.Inc()
	}
}

func (c *Collector) WalletEntry(typ string) {
	if c != nil {
		c.walletMoves.WithLabelValues(typ).Inc()
	}
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
