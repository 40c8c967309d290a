package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHandlerRecordsRequests(t *testing.T) {
	m, err := NewMetrics(MetricsOptions{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)

	e := echo.New()
	e.Use(m.Handler())
	e.GET("/api/challenges", func(c echo.Context) error { return c.NoContent(http.StatusCreated) })
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusTeapot) })

	for _, path := range []string{"/api/challenges", "/boom"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	created := prometheus.Labels{"method": http.MethodGet, "route": "/api/challenges", "status": "201"}
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Requests.With(created)))
	teapot := prometheus.Labels{"method": http.MethodGet, "route": "/boom", "status": "418"}
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Requests.With(teapot)))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.InFlight))
}

func TestNewMetricsReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewMetrics(MetricsOptions{Registerer: reg})
	require.NoError(t, err)
	b, err := NewMetrics(MetricsOptions{Registerer: reg})
	require.NoError(t, err)

	a.AuthDecisions.WithLabelValues("required", "authenticated").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(b.AuthDecisions.WithLabelValues("required", "authenticated")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.observeAuth("required", "authenticated")

	e := echo.New()
	e.Use(m.Handler())
	e.GET("/", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
