// Package viewer reads the supervising viewer's identity from the headers the
// authenticating gateway forwards.
package viewer

import (
	"log/slog"
	"net/http"
	"strings"

	id "gradegate/pkg/domain"
	dErrors "gradegate/pkg/domain-errors"
	"gradegate/pkg/platform/httputil"
	"gradegate/pkg/requestcontext"
)

const (
	HeaderViewerID    = "X-Viewer-ID"
	HeaderViewerScope = "X-Viewer-Scope"
	HeaderTenantID    = "X-Tenant-ID"
)

// Headers copies viewer headers into the request context. Requests without
// X-Viewer-ID pass through anonymous; malformed ids are rejected.
func Headers(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(HeaderViewerID))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			viewerID, err := id.ParseViewerID(raw)
			if err != nil {
				logger.WarnContext(ctx, "malformed viewer header",
					"request_id", requestcontext.RequestID(ctx),
					"error", err,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "X-Viewer-ID must be a UUID"))
				return
			}
			var tenantID id.TenantID
			if rawTenant := strings.TrimSpace(r.Header.Get(HeaderTenantID)); rawTenant != "" {
				if tenantID, err = id.ParseTenantID(rawTenant); err != nil {
					httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "X-Tenant-ID must be a UUID"))
					return
				}
			}
			scope := strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderViewerScope)))
			ctx = requestcontext.WithViewer(ctx, viewerID, scope, tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Require rejects anonymous requests.
func Require(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if requestcontext.ViewerID(ctx).IsNil() {
				logger.WarnContext(ctx, "unauthorized access - missing viewer",
					"request_id", requestcontext.RequestID(ctx),
					"path", r.URL.Path,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "viewer identity is required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
