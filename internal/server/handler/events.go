package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/verdictd/verdictd/internal/domain"
	"github.com/verdictd/verdictd/internal/events"
)

// ssePingInterval is how often a comment frame is written to keep
// intermediaries from closing an idle connection.
const ssePingInterval = 30 * time.Second

// EventsHandler bridges the Redis signal bus to a Server-Sent Events stream.
// Clients that reconnect with a Last-Event-ID header get missed events
// replayed from the durable stream before live delivery starts.
type EventsHandler struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler.
func NewEventsHandler(bus domain.SignalBus, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{bus: bus, logger: logger}
}

// Stream serves the SSE endpoint.
// GET /api/events
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ctx := r.Context()

	// Subscribe before replay so no event falls between the two.
	live, err := h.bus.Subscribe(ctx, events.Channel)
	if err != nil {
		h.logger.ErrorContext(ctx, "handler: event subscribe failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "event stream unavailable")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if lastID := r.Header.Get("Last-Event-ID"); lastID != "" {
		h.replay(w, r, lastID)
		flusher.Flush()
	}

	ping := time.NewTicker(ssePingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case payload, open := <-live:
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

// replay writes events appended to the durable stream after lastID.
func (h *EventsHandler) replay(w http.ResponseWriter, r *http.Request, lastID string) {
	msgs, err := h.bus.StreamRead(r.Context(), events.Stream, lastID, 100)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: event replay failed",
			slog.String("last_id", lastID),
			slog.String("error", err.Error()),
		)
		return
	}
	for _, msg := range msgs {
		fmt.Fprintf(w, "id: %s\ndata: %s\n\n", msg.ID, msg.Payload)
	}
}
