package httpadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/kirillkom/loan-intake/internal/core/domain"
)

const sseHeartbeatInterval = 15 * time.Second

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &sseWriter{w: w, flusher: flusher}, true
}

func (s *sseWriter) event(name string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal sse payload: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", name, raw); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) ping() error {
	if _, err := fmt.Fprint(s.w, ": ping\n\n"); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// streamQueue sends the pending snapshot, then one change event per record
// update until the client goes away. Clients refetch the queue on change.
func (rt *Router) streamQueue(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	pending, err := rt.queue.ListPending(ctx)
	if err != nil {
		rt.writeError(w, r, err, mapErrorToHTTPStatus(err))
		return
	}

	stream, ok := newSSEWriter(w)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming unsupported"})
		return
	}
	if err := stream.event("snapshot", pendingView(pending)); err != nil {
		return
	}

	events := make(chan domain.ChangeEvent, 16)
	watchErr := make(chan error, 1)
	go func() {
		watchErr <- rt.queue.Watch(ctx, func(ctx context.Context, ev domain.ChangeEvent) error {
			select {
			case events <- ev:
			case <-ctx.Done():
			default:
				rt.logger.Warn("sse_event_dropped",
					"request_id", requestIDFromContext(r.Context()),
					"kind", ev.Kind,
					"document_id", ev.DocumentID,
				)
			}
			return nil
		})
	}()

	heartbeat := time.NewTicker(rt.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-watchErr:
			if err != nil && ctx.Err() == nil {
				rt.logger.Error("sse_watch_failed",
					"request_id", requestIDFromContext(r.Context()),
					"error", err,
				)
				_ = stream.event("error", map[string]string{"error": "change feed unavailable"})
			}
			return
		case ev := <-events:
			if err := stream.event("change", ev); err != nil {
				return
			}
		case <-heartbeat.C:
			if err := stream.ping(); err != nil {
				return
			}
		}
	}
}
