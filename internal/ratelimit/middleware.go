package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"gradegate/internal/ratelimit/metrics"
	"gradegate/pkg/platform/httputil"
	"gradegate/pkg/platform/middleware/metadata"
	"gradegate/pkg/requestcontext"
)

// Class groups endpoints that share a budget.
type Class string

const (
	ClassRead  Class = "read"
	ClassWrite Class = "write"
)

// Limit is a budget of requests per window.
type Limit struct {
	Requests int
	Window   time.Duration
}

var (
	DefaultReadLimit  = Limit{Requests: 300, Window: time.Minute}
	DefaultWriteLimit = Limit{Requests: 60, Window: time.Minute}
)

type Middleware struct {
	store    Store
	logger   *slog.Logger
	metrics  *metrics.Metrics
	limits   map[Class]Limit
	disabled bool
}

type Option func(*Middleware)

func WithMetrics(m *metrics.Metrics) Option {
	return func(mw *Middleware) {
		mw.metrics = m
	}
}

// WithLimit overrides the budget for class. Non-positive values are ignored.
func WithLimit(class Class, limit Limit) Option {
	return func(mw *Middleware) {
		if limit.Requests > 0 && limit.Window > 0 {
			mw.limits[class] = limit
		}
	}
}

// WithDisabled turns the middleware into a pass-through.
func WithDisabled(disabled bool) Option {
	return func(mw *Middleware) {
		mw.disabled = disabled
	}
}

func New(store Store, logger *slog.Logger, opts ...Option) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	mw := &Middleware{
		store:  store,
		logger: logger,
		limits: map[Class]Limit{
			ClassRead:  DefaultReadLimit,
			ClassWrite: DefaultWriteLimit,
		},
	}
	for _, opt := range opts {
		opt(mw)
	}
	if mw.disabled {
		logger.Info("rate limiting disabled")
	}
	return mw
}

// Handler limits each caller per endpoint class. GET and HEAD are reads,
// everything else is a write. Store failures let the request through.
func (mw *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if mw.disabled {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		class := classOf(r.Method)
		limit := mw.limits[class]
		key := string(class) + ":" + callerKey(r)

		result, err := mw.store.AllowN(ctx, key, 1, limit.Requests, limit.Window)
		if err != nil {
			mw.metrics.IncStoreError()
			mw.logger.ErrorContext(ctx, "rate limit check failed",
				"request_id", requestcontext.RequestID(ctx),
				"class", class,
				"error", err,
			)
			next.ServeHTTP(w, r)
			return
		}
		mw.metrics.IncDecision(string(class), result.Allowed)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
		if !result.Allowed {
			mw.logger.WarnContext(ctx, "rate limit exceeded",
				"request_id", requestcontext.RequestID(ctx),
				"class", class,
				"key", key,
			)
			w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
			httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":             "rate_limit_exceeded",
				"error_description": "too many requests, try again later",
				"retry_after":       result.RetryAfter,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func classOf(method string) Class {
	if method == http.MethodGet || method == http.MethodHead {
		return ClassRead
	}
	return ClassWrite
}

func callerKey(r *http.Request) string {
	if v := requestcontext.ViewerID(r.Context()); !v.IsNil() {
		return "viewer:" + v.String()
	}
	ip := metadata.GetClientIP(r.Context())
	if ip == "" {
		ip = metadata.ClientIPFromRequest(r)
	}
	return "ip:" + ip
}
