// Package metrics exposes Prometheus instrumentation for the trading
// engine. Each Metrics value owns its registry so tests can construct
// isolated instances without duplicate-registration panics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the trading API.
type Metrics struct {
	registry *prometheus.Registry

	OrdersCreated   *prometheus.CounterVec // labels: side
	OrdersCancelled prometheus.Counter
	OrdersExpired   prometheus.Counter

	TradesMatched     prometheus.Counter
	MatchPassDuration prometheus.Histogram
	MatchCacheHits    prometheus.Counter

	PriceCacheHits   prometheus.Counter
	PriceCacheMisses prometheus.Counter
	QuoteFailures    prometheus.Counter

	ActiveSubscriptions prometheus.Gauge
}

// New creates a Metrics instance backed by its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		OrdersCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "trading_orders_created_total",
			Help: "Market orders accepted into the book.",
		}, []string{"side"}),
		OrdersCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "trading_orders_cancelled_total",
			Help: "Orders cancelled by their owner.",
		}),
		OrdersExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "trading_orders_expired_total",
			Help: "Orders expired past their valid_until.",
		}),
		TradesMatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "trading_trades_matched_total",
			Help: "Trades produced by match passes.",
		}),
		MatchPassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "trading_match_pass_duration_seconds",
			Help:    "Duration of a single match pass over one commodity.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		MatchCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "trading_match_cache_hits_total",
			Help: "Match passes served from the result cache.",
		}),
		PriceCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "pricing_cache_hits_total",
			Help: "Price lookups served from the cache.",
		}),
		PriceCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "pricing_cache_misses_total",
			Help: "Price lookups that went to the quote source.",
		}),
		QuoteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "pricing_quote_failures_total",
			Help: "Quote source fetches that returned no data.",
		}),
		ActiveSubscriptions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "pricing_active_subscriptions",
			Help: "Currently registered price subscriptions.",
		}),
	}
}

// Handler returns the HTTP handler serving this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
