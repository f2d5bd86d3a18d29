package testutil

import (
	"net/http"

	id "gradegate/pkg/domain"
	"gradegate/pkg/requestcontext"
)

// WithViewer adds viewer identity to the request context the way the viewer
// headers middleware would.
func WithViewer(req *http.Request, viewerID id.ViewerID, scope string, tenantID id.TenantID) *http.Request {
	return req.WithContext(requestcontext.WithViewer(req.Context(), viewerID, scope, tenantID))
}
