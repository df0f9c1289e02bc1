// Package metrics exposes Prometheus instrumentation for the feed
// pipeline and the result cache.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the tracker's Prometheus metrics behind a
// dedicated registry so tests can instantiate it freely.
type Collector struct {
	reg *prometheus.Registry

	FeedFetchFailures *prometheus.CounterVec
	FeedEntities      *prometheus.CounterVec
	CacheHits         prometheus.Counter
	CacheMisses       prometheus.Counter
	TrainsTracked     prometheus.Gauge
}

// NewCollector creates and registers the tracker metrics.
func NewCollector() *Collector {
	c := &Collector{reg: prometheus.NewRegistry()}

	c.FeedFetchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_fetch_failures_total",
		Help: "Feed group fetches that failed after retries.",
	}, []string{"group"})
	c.FeedEntities = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "feed_entities_total",
		Help: "Trip update entities decoded per feed group.",
	}, []string{"group"})
	c.CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Result cache hits.",
	})
	c.CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Result cache misses that triggered a computation.",
	})
	c.TrainsTracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trains_tracked",
		Help: "Trains with a derived position after the latest merge.",
	})

	c.reg.MustRegister(
		c.FeedFetchFailures,
		c.FeedEntities,
		c.CacheHits,
		c.CacheMisses,
		c.TrainsTracked,
	)
	return c
}

// Handler returns the /metrics HTTP handler for this collector's
// registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}
