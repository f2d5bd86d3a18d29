// Package httptransport assembles the HTTP surface: the middleware chain,
// module handlers, and the operational endpoints.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	dashboardhandler "gradegate/internal/dashboard/handler"
	learnerhandler "gradegate/internal/learner/handler"
	"gradegate/internal/platform/metrics"
	"gradegate/internal/platform/middleware"
	proposalhandler "gradegate/internal/proposal/handler"
	"gradegate/pkg/platform/httputil"
	"gradegate/pkg/platform/middleware/admin"
	"gradegate/pkg/platform/middleware/metadata"
	"gradegate/pkg/platform/middleware/requesttime"
	"gradegate/pkg/platform/middleware/viewer"
)

const healthTimeout = 2 * time.Second

// HealthCheck is one dependency probed by /health.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Deps are the pieces NewRouter mounts.
type Deps struct {
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	AdminToken string
	RateLimit  func(http.Handler) http.Handler

	Learners  *learnerhandler.Handler
	Proposals *proposalhandler.Handler
	Dashboard *dashboardhandler.Handler

	HealthChecks []HealthCheck
}

// NewRouter wires the middleware chain and every public endpoint.
func NewRouter(d Deps) http.Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(metadata.ClientIP)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Latency(d.Metrics))

	r.Get("/health", healthHandler(d.HealthChecks))
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(viewer.Headers(logger))
		if d.RateLimit != nil {
			r.Use(d.RateLimit)
		}

		if d.Learners != nil {
			d.Learners.Register(r)
			r.Group(func(r chi.Router) {
				r.Use(admin.RequireAdminToken(d.AdminToken, logger))
				d.Learners.RegisterAdmin(r)
			})
		}
		if d.Proposals != nil {
			d.Proposals.Register(r)
		}
		if d.Dashboard != nil {
			r.Group(func(r chi.Router) {
				r.Use(viewer.Require(logger))
				d.Dashboard.Register(r)
			})
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusNotFound, map[string]string{
			"error":             "not_found",
			"error_description": "no such endpoint",
		})
	})
	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				resp.Checks[c.Name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[c.Name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
