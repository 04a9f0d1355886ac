package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollector_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPublish("twitter", "published")
	c.RecordPublish("twitter", "published")
	c.RecordPublish("linkedin", "failed")
	c.RecordMetricsRefresh("twitter", "refreshed")
	c.RecordRateLimited("linkedin")
	c.RecordNotifyFailure("pubsub")
	c.ObserveAdapterCall("twitter", "publish", 120*time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(c.publish.WithLabelValues("twitter", "published")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.publish.WithLabelValues("linkedin", "failed")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.metricsRefresh.WithLabelValues("twitter", "refreshed")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.rateLimited.WithLabelValues("linkedin")))
	require.Equal(t, 1.0, testutil.ToFloat64(c.notifyFailures.WithLabelValues("pubsub")))
	require.Equal(t, 1, testutil.CollectAndCount(c.adapterCall))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	require.NotPanics(t, func() {
		c.RecordPublish("twitter", "failed")
		c.RecordMetricsRefresh("twitter", "failed")
		c.RecordRateLimited("twitter")
		c.RecordNotifyFailure("hub")
		c.ObserveAdapterCall("twitter", "publish", time.Second)
	})
}

func TestHandler_ServesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordPublish("twitter", "published")

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(body), `socialops_publish_total{platform="twitter",status="published"} 1`))
}
