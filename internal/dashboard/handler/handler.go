// Package handler serves the supervisor dashboard: a Server-Sent Events stream
// and a one-shot snapshot.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"gradegate/internal/dashboard/models"
	"gradegate/internal/dashboard/notifier"
	learner "gradegate/internal/learner/models"
	dErrors "gradegate/pkg/domain-errors"
	"gradegate/pkg/platform/httputil"
	"gradegate/pkg/requestcontext"
)

// clientRetry is the reconnect delay suggested to EventSource clients.
const clientRetry = 3 * time.Second

type Subscriber interface {
	Subscribe(ctx context.Context, viewer models.Viewer) (*notifier.Subscription, error)
}

type SnapshotBuilder interface {
	Build(ctx context.Context, viewer models.Viewer) (*models.Snapshot, error)
}

type Handler struct {
	subscriber Subscriber
	snapshots  SnapshotBuilder
	logger     *slog.Logger
}

func New(subscriber Subscriber, snapshots SnapshotBuilder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{subscriber: subscriber, snapshots: snapshots, logger: logger}
}

// Register mounts dashboard endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/dashboard/stream", h.HandleStream)
	r.Get("/dashboard/snapshot", h.HandleSnapshot)
}

// HandleStream handles GET /dashboard/stream. The stream ends when the client
// disconnects.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer, err := viewerFrom(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	rc := http.NewResponseController(w)
	// Server write timeouts would cut the stream; lift them for this response.
	_ = rc.SetWriteDeadline(time.Time{})

	sub, err := h.subscriber.Subscribe(ctx, viewer)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "retry: %d\n\n", clientRetry.Milliseconds())
	if err := rc.Flush(); err != nil {
		h.logger.ErrorContext(ctx, "streaming unsupported by response writer",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return
	}

	for ev := range sub.Events() {
		if err := WriteEvent(w, ev); err != nil {
			h.logger.WarnContext(ctx, "dashboard stream write failed",
				"viewer_id", viewer.ID,
				"error", err,
			)
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

// HandleSnapshot handles GET /dashboard/snapshot.
func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	viewer, err := viewerFrom(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	snap, err := h.snapshots.Build(ctx, viewer)
	if err != nil {
		h.logger.ErrorContext(ctx, "dashboard snapshot failed",
			"request_id", requestcontext.RequestID(ctx),
			"viewer_id", viewer.ID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snap)
}

// WriteEvent renders one SSE frame.
func WriteEvent(w io.Writer, ev models.Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", ev.Type, err)
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
	return err
}

func viewerFrom(ctx context.Context) (models.Viewer, error) {
	viewerID := requestcontext.ViewerID(ctx)
	if viewerID.IsNil() {
		return models.Viewer{}, dErrors.New(dErrors.CodeUnauthorized, "viewer identity is required")
	}
	scope, err := learner.ParseScope(requestcontext.ViewerScope(ctx))
	if err != nil {
		return models.Viewer{}, err
	}
	return models.Viewer{ID: viewerID, Scope: scope, TenantID: requestcontext.TenantID(ctx)}, nil
}
