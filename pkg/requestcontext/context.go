// Package requestcontext provides HTTP-independent context accessors for request-scoped values.
//
// Middleware sets these values; services and stores read them without importing net/http.
//
// Usage in services (read values):
//
//	viewer := requestcontext.Viewer(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"

	id "gradegate/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	viewerIDKey    struct{}
	viewerScopeKey struct{}
	tenantIDKey    struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyViewerID    = viewerIDKey{}
	ContextKeyViewerScope = viewerScopeKey{}
	ContextKeyTenantID    = tenantIDKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// -----------------------------------------------------------------------------
// Viewer context (set by the gateway headers middleware)
// -----------------------------------------------------------------------------

// ViewerID retrieves the supervising viewer from the context.
// Returns the zero value (nil UUID) if not set.
func ViewerID(ctx context.Context) id.ViewerID {
	if v, ok := ctx.Value(ContextKeyViewerID).(id.ViewerID); ok {
		return v
	}
	return id.ViewerID{}
}

// ViewerScope retrieves the viewer's relationship scope ("parent" or "teacher").
func ViewerScope(ctx context.Context) string {
	if v, ok := ctx.Value(ContextKeyViewerScope).(string); ok {
		return v
	}
	return ""
}

// TenantID retrieves the tenant the viewer belongs to.
func TenantID(ctx context.Context) id.TenantID {
	if v, ok := ctx.Value(ContextKeyTenantID).(id.TenantID); ok {
		return v
	}
	return id.TenantID{}
}

// WithViewer injects viewer identity, scope and tenant into the context.
func WithViewer(ctx context.Context, viewerID id.ViewerID, scope string, tenantID id.TenantID) context.Context {
	ctx = context.WithValue(ctx, ContextKeyViewerID, viewerID)
	ctx = context.WithValue(ctx, ContextKeyViewerScope, scope)
	ctx = context.WithValue(ctx, ContextKeyTenantID, tenantID)
	return ctx
}

// -----------------------------------------------------------------------------
// Request metadata
// -----------------------------------------------------------------------------

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// -----------------------------------------------------------------------------
// Request time
// -----------------------------------------------------------------------------

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (workers, CLI, notifier loops).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}

// WithoutTime hides any injected request time so Now reads the wall clock
// again. Loops that outlive the request that started them use it; every other
// value and the cancellation of ctx are kept.
func WithoutTime(ctx context.Context) context.Context {
	return untimedContext{ctx}
}

type untimedContext struct {
	context.Context
}

func (c untimedContext) Value(key any) any {
	if key == ContextKeyRequestTime {
		return nil
	}
	return c.Context.Value(key)
}
