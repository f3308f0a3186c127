package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketCreated         EventType = "ticket_created"
	EventTicketClaimed         EventType = "ticket_claimed"
	EventTicketMarkedUncertain EventType = "ticket_marked_uncertain"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventTicketResolved        EventType = "ticket_resolved"
	EventLeaderboardReset      EventType = "leaderboard_reset"
)

// MutatingEvents lists the event types that change persisted state.
var MutatingEvents = []EventType{
	EventTicketCreated,
	EventTicketClaimed,
	EventTicketMarkedUncertain,
	EventTicketResolved,
	EventLeaderboardReset,
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	ActorID   string      `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(eventType EventType, ticketID, actorID string, payload interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TicketID:  ticketID,
		ActorID:   actorID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// TicketCreatedPayload payload.
type TicketCreatedPayload struct {
	OriginalChannel   string `json:"original_channel"`
	OriginalMessageID string `json:"original_ts"`
}

// TicketChangedPayload is shared by claim and uncertain events.
type TicketChangedPayload struct {
	Changed  bool     `json:"changed"`
	Claimers []string `json:"claimers"`
	NotSure  []string `json:"not_sure"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	AssigneeID string `json:"assignee_id"`
}

// TicketResolvedPayload payload.
type TicketResolvedPayload struct {
	OriginalChannel   string `json:"original_channel"`
	OriginalMessageID string `json:"original_ts"`
	ResolvedAtMs      int64  `json:"resolved_at_ms"`
}

// LeaderboardResetPayload carries the ranking that was broadcast.
type LeaderboardResetPayload struct {
	Entries int `json:"entries"`
}
