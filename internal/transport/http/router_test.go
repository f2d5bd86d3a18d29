package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dashboardhandler "gradegate/internal/dashboard/handler"
	learnerhandler "gradegate/internal/learner/handler"
	"gradegate/internal/platform/metrics"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRouter(checks ...HealthCheck) http.Handler {
	logger := quietLogger()
	return NewRouter(Deps{
		Logger:       logger,
		Metrics:      metrics.New(prometheus.NewRegistry()),
		AdminToken:   "s3cret",
		Learners:     learnerhandler.New(nil, logger),
		Dashboard:    dashboardhandler.New(nil, nil, logger),
		HealthChecks: checks,
	})
}

func TestHealthReportsEachCheck(t *testing.T) {
	router := newTestRouter(
		HealthCheck{Name: "database", Check: func(context.Context) error { return nil }},
		HealthCheck{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
	)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body healthResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "ok", body.Checks["database"])
	assert.Equal(t, "connection refused", body.Checks["redis"])
}

func TestHealthWithoutChecks(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestMetricsEndpointExposesHTTPMetrics(t *testing.T) {
	router := newTestRouter()
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "gradegate_http_request_duration_seconds")
}

func TestEnrollmentRequiresAdminToken(t *testing.T) {
	path := "/learners/" + uuid.NewString() + "/levels/math"
	req := httptest.NewRequest(http.MethodPut, path, strings.NewReader(`{"enrolled_grade":4}`))

	rr := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestDashboardRequiresViewer(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/dashboard/snapshot", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRequestIDEchoed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")

	rr := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rr, req)

	assert.Equal(t, "req-123", rr.Header().Get("X-Request-ID"))
}

func TestUnknownRoute(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "not_found")
}
