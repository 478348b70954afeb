package domain

import "time"

// EventType names a status-change notification.
type EventType string

const (
	EventMarketCreated       EventType = "market_created"
	EventMarketExpired       EventType = "market_expired"
	EventValidationCompleted EventType = "validation_completed"
	EventResolutionProposed  EventType = "resolution_proposed"
	EventHeartbeatOK         EventType = "heartbeat_ok"
	EventMarketEscalated     EventType = "market_escalated"
	EventMarketFinalized     EventType = "market_finalized"
	EventQueueDeadLetter     EventType = "queue_dead_letter"
	EventAdminAction         EventType = "admin_action"
)

// Event is one row of the append-only event log. Events are also published on
// the signal bus so dashboards receive them over SSE/WebSocket.
type Event struct {
	ID        int64
	Type      EventType
	MarketID  string
	Payload   map[string]any
	CreatedAt time.Time
}

// StreamMessage is a single entry read back from a durable event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// AdminActionType names a manual override operation.
type AdminActionType string

const (
	AdminOverrideStatus AdminActionType = "override_status"
	AdminForceResolve   AdminActionType = "force_resolve"
	AdminFreezeMarket   AdminActionType = "freeze_market"
	AdminRequeue        AdminActionType = "requeue"
)

// AdminAction is one row of the append-only admin audit table. Every manual
// override goes through here, authorized or not the attempt is recorded.
type AdminAction struct {
	ID           string
	AdminAddress string
	MarketID     string
	Action       AdminActionType
	Reason       string
	OldValue     string
	NewValue     string
	CreatedAt    time.Time
}
