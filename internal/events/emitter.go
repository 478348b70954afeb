// Package events fans status changes out to their two halves: the durable
// event log and the live signal bus feeding the SSE/WebSocket surfaces.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/verdictd/verdictd/internal/domain"
)

// Channel is the pub/sub channel live subscribers listen on.
const Channel = "oracle:events"

// Stream is the durable stream events are appended to for replay.
const Stream = "oracle:events:stream"

// Emitter records events and broadcasts them. Both halves are best effort
// with respect to each other: a bus outage never rolls back the log entry.
type Emitter struct {
	store domain.EventStore
	bus   domain.SignalBus
	log   *slog.Logger
}

func NewEmitter(store domain.EventStore, bus domain.SignalBus, logger *slog.Logger) *Emitter {
	return &Emitter{
		store: store,
		bus:   bus,
		log:   logger.With("component", "events"),
	}
}

// Emit appends the event to the log and publishes it on the bus. Emission
// failures are logged, never returned: an event outage must not abort the
// pipeline work that produced the event.
func (e *Emitter) Emit(ctx context.Context, eventType domain.EventType, marketID string, payload map[string]any) {
	event := domain.Event{
		Type:      eventType,
		MarketID:  marketID,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}

	if e.store != nil {
		if err := e.store.Append(ctx, event); err != nil {
			e.log.Error("append event", "type", string(eventType), "market_id", marketID, "error", err)
		}
	}

	if e.bus == nil {
		return
	}
	wire, err := json.Marshal(WireEvent{
		Type:      string(eventType),
		MarketID:  marketID,
		Payload:   payload,
		Timestamp: event.CreatedAt,
	})
	if err != nil {
		e.log.Error("encode event", "type", string(eventType), "error", err)
		return
	}
	if err := e.bus.Publish(ctx, Channel, wire); err != nil {
		e.log.Warn("publish event", "type", string(eventType), "error", err)
	}
	if err := e.bus.StreamAppend(ctx, Stream, wire); err != nil {
		e.log.Warn("stream event", "type", string(eventType), "error", err)
	}
}

// WireEvent is the JSON shape events take on the bus and over SSE/WebSocket.
type WireEvent struct {
	Type      string         `json:"type"`
	MarketID  string         `json:"market_id,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
