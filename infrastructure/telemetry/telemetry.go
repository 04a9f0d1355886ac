// Package telemetry exposes Prometheus counters for the publish and metrics
// pipeline. All recording methods are safe on a nil *Collector.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	publish        *prometheus.CounterVec
	metricsRefresh *prometheus.CounterVec
	rateLimited    *prometheus.CounterVec
	notifyFailures *prometheus.CounterVec
	adapterCall    *prometheus.HistogramVec
}

// NewCollector registers the pipeline metrics on reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		publish: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialops_publish_total",
			Help: "Publish attempts per platform and outcome.",
		}, []string{"platform", "status"}),
		metricsRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialops_metrics_refresh_total",
			Help: "Metrics refresh units per platform and outcome.",
		}, []string{"platform", "status"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialops_rate_limited_total",
			Help: "Platform responses translated into rate-limit errors.",
		}, []string{"platform"}),
		notifyFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "socialops_notify_failures_total",
			Help: "Best-effort notifications that failed, per sink.",
		}, []string{"sink"}),
		adapterCall: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "socialops_adapter_call_seconds",
			Help:    "Latency of platform API calls.",
			Buckets: prometheus.DefBuckets,
		}, []string{"platform", "op"}),
	}
	reg.MustRegister(c.publish, c.metricsRefresh, c.rateLimited, c.notifyFailures, c.adapterCall)
	return c
}

func (c *Collector) RecordPublish(platform, status string) {
	if c == nil {
		return
	}
	c.publish.WithLabelValues(platform, status).Inc()
}

func (c *Collector) RecordMetricsRefresh(platform, status string) {
	if c == nil {
		return
	}
	c.metricsRefresh.WithLabelValues(platform, status).Inc()
}

func (c *Collector) RecordRateLimited(platform string) {
	if c == nil {
		return
	}
	c.rateLimited.WithLabelValues(platform).Inc()
}

func (c *Collector) RecordNotifyFailure(sink string) {
	if c == nil {
		return
	}
	c.notifyFailures.WithLabelValues(sink).Inc()
}

func (c *Collector) ObserveAdapterCall(platform, op string, d time.Duration) {
	if c == nil {
		return
	}
	c.adapterCall.WithLabelValues(platform, op).Observe(d.Seconds())
}

// Handler serves the scrape endpoint for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
