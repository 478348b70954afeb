package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/verdictd/verdictd/internal/domain"
	"github.com/verdictd/verdictd/internal/events"
)

// Watcher bridges the signal bus to the notifier: it subscribes to the oracle
// event channel and turns selected events into operator alerts. Running it is
// optional; pipelines never block on notification delivery.
type Watcher struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewWatcher creates a Watcher.
func NewWatcher(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Watcher {
	return &Watcher{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_watcher")),
	}
}

// Run consumes events until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ch, err := w.bus.Subscribe(ctx, events.Channel)
	if err != nil {
		return fmt.Errorf("notify: subscribe: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case payload, ok := <-ch:
			if !ok {
				return nil
			}
			w.handle(ctx, payload)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, payload []byte) {
	var event events.WireEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		w.logger.Warn("undecodable event", slog.String("error", err.Error()))
		return
	}

	title, message, ok := formatAlert(event)
	if !ok {
		return
	}

	if err := w.notifier.Notify(ctx, event.Type, title, message); err != nil {
		w.logger.ErrorContext(ctx, "alert delivery failed",
			slog.String("event", event.Type),
			slog.String("error", err.Error()),
		)
	}
}

// formatAlert maps an event to an alert title and body. Events that do not
// warrant operator attention return ok false.
func formatAlert(event events.WireEvent) (title, message string, ok bool) {
	switch domain.EventType(event.Type) {
	case domain.EventMarketEscalated:
		return "Market escalated",
			fmt.Sprintf("Market %s was escalated to manual review.\nReason: %v",
				event.MarketID, event.Payload["reason"]), true

	case domain.EventQueueDeadLetter:
		return "Market dead-lettered",
			fmt.Sprintf("Market %s exhausted its retries and needs manual attention.\nLast error: %v",
				event.MarketID, event.Payload["last_error"]), true

	case domain.EventMarketFinalized:
		return "Market finalized",
			fmt.Sprintf("Market %s finalized with outcome %v.",
				event.MarketID, event.Payload["outcome"]), true

	case domain.EventResolutionProposed:
		return "Outcome proposed",
			fmt.Sprintf("Market %s: proposed outcome %v (confidence %v).",
				event.MarketID, event.Payload["outcome"], event.Payload["confidence"]), true
	}
	return "", "", false
}
