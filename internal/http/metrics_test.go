package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

func newTestMetrics(t *testing.T) (*HTTPMetrics, *metric.ManualReader) {
	t.Helper()
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))
	m := &HTTPMetrics{
		meter:  mp.Meter(httpInstrumentationName),
		logger: zap.NewNop(),
	}
	m.init()
	return m, reader
}

func collect(t *testing.T, reader *metric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Metrics{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestHTTPMetrics_MetricsMiddleware(t *testing.T) {
	m, reader := newTestMetrics(t)

	e := echo.New()
	e.Use(m.MetricsMiddleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/api/v1/insights/:id/feedback", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusConflict, "already rated")
	})
	m.TrackRoutes(e.Routes())

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/health"},
		{http.MethodPost, "/api/v1/insights/abc/feedback"},
		{http.MethodPost, "/api/v1/insights/def/feedback"},
		{http.MethodGet, "/nope"},
	} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(r.method, r.path, nil))
	}

	metrics := collect(t, reader)
	require.Contains(t, metrics, "coachd.http.requests_total")
	require.Contains(t, metrics, "coachd.http.request_duration_seconds")
	require.Contains(t, metrics, "coachd.http.response_size_bytes")

	sum, ok := metrics["coachd.http.requests_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)

	byRoute := map[string]int64{}
	statuses := map[string]int64{}
	var total int64
	for _, dp := range sum.DataPoints {
		route, _ := dp.Attributes.Value(attribute.Key("route"))
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		byRoute[route.AsString()] += dp.Value
		statuses[route.AsString()] = status.AsInt64()
		total += dp.Value
	}
	assert.Equal(t, int64(4), total)
	assert.Equal(t, int64(2), byRoute["/api/v1/insights/:id/feedback"])
	assert.Equal(t, int64(http.StatusConflict), statuses["/api/v1/insights/:id/feedback"])
	assert.Equal(t, int64(1), byRoute["unmatched"])
	assert.Equal(t, int64(http.StatusNotFound), statuses["unmatched"])

	hist, ok := metrics["coachd.http.request_duration_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var recorded uint64
	for _, dp := range hist.DataPoints {
		recorded += dp.Count
	}
	assert.Equal(t, uint64(4), recorded)
}
