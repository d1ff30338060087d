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

	"github.com/fyrsmithlabs/ragd/internal/errdefs"
)

func TestRequestMetrics_Middleware(t *testing.T) {
	reader := metric.NewManualReader()
	mp := metric.NewMeterProvider(metric.WithReader(reader))

	e := echo.New()
	e.Use(newRequestMetrics(mp.Meter(instrumentationName), nil).middleware())
	e.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/api/v1/query", func(c echo.Context) error {
		return reply(c, http.StatusBadGateway, errdefs.KindStorage, map[string]string{"error": "down"})
	})
	e.POST("/api/v1/ingest", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "no")
	})

	for _, r := range []struct{ method, path string }{
		{http.MethodGet, "/health"},
		{http.MethodPost, "/api/v1/query"},
		{http.MethodPost, "/api/v1/ingest"},
		{http.MethodGet, "/nope/123"},
	} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(r.method, r.path, nil))
	}

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	seen := map[string]bool{}
	statuses := map[int64]bool{}
	routes := map[string]bool{}
	kinds := map[string]string{}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, mm := range sm.Metrics {
			seen[mm.Name] = true
			if mm.Name != "ragd.http.requests_total" {
				continue
			}
			sum, ok := mm.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				total += dp.Value
				route, _ := dp.Attributes.Value(attribute.Key("route"))
				routes[route.AsString()] = true
				if v, ok := dp.Attributes.Value(attribute.Key("status")); ok {
					statuses[v.AsInt64()] = true
				}
				if v, ok := dp.Attributes.Value(attribute.Key("error_kind")); ok {
					kinds[route.AsString()] = v.AsString()
				}
			}
		}
	}

	assert.Equal(t, int64(4), total)
	assert.True(t, seen["ragd.http.request_duration_seconds"])
	assert.True(t, seen["ragd.http.response_size_bytes"])
	assert.True(t, seen["ragd.http.active_requests"])
	assert.True(t, statuses[http.StatusTeapot], "handler errors are recorded with their final status")
	assert.True(t, statuses[http.StatusBadGateway])
	assert.True(t, routes["/api/v1/ingest"])
	assert.Equal(t, map[string]string{"/api/v1/query": errdefs.KindStorage}, kinds)
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "unmatched", routeLabel(""))
	assert.Equal(t, "/api/v1/query", routeLabel("/api/v1/query"))
}
