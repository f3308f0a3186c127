package domain

import (
	"fmt"
	"strings"
)

// TicketStatus is derived from the claimer sets and is never stored.
type TicketStatus string

const (
	TicketStatusUnclaimed TicketStatus = "UNCLAIMED"
	TicketStatusClaimed   TicketStatus = "CLAIMED"
	TicketStatusUncertain TicketStatus = "UNCERTAIN"
)

// Ticket mirrors one help request into the staff queue. TicketID is the
// platform id of the queue message; the original channel and message id
// identify the source message.
type Ticket struct {
	TicketID          string
	OriginalChannel   string
	OriginalMessageID string
	Claimers          []string
	NotSure           []string
}

// Status derives the lifecycle state from the claimer sets.
func (t Ticket) Status() TicketStatus {
	switch {
	case len(t.Claimers) > 0:
		return TicketStatusClaimed
	case len(t.NotSure) > 0:
		return TicketStatusUncertain
	default:
		return TicketStatusUnclaimed
	}
}

// Claim adds userID to the claimers. Reports whether the set changed.
func (t *Ticket) Claim(userID string) bool {
	if userID == "" || contains(t.Claimers, userID) {
		return false
	}
	t.Claimers = append(t.Claimers, userID)
	return true
}

// MarkUncertain adds userID to the not-sure set. Reports whether the set changed.
func (t *Ticket) MarkUncertain(userID string) bool {
	if userID == "" || contains(t.NotSure, userID) {
		return false
	}
	t.NotSure = append(t.NotSure, userID)
	return true
}

// HeaderText renders the queue message header for the current sets.
// Claimers take precedence over not-sure marks.
func (t Ticket) HeaderText() string {
	switch t.Status() {
	case TicketStatusClaimed:
		return "Claimed by: " + mentionList(t.Claimers)
	case TicketStatusUncertain:
		return "Not Claimed | Not sure: " + mentionList(t.NotSure)
	default:
		return "Not Claimed"
	}
}

// Clone returns a deep copy so callers never share slices with the registry.
func (t Ticket) Clone() Ticket {
	out := t
	out.Claimers = append([]string(nil), t.Claimers...)
	out.NotSure = append([]string(nil), t.NotSure...)
	return out
}

// Mention formats a user id as a platform mention.
func Mention(userID string) string {
	return fmt.Sprintf("<@%s>", userID)
}

func mentionList(ids []string) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, Mention(id))
	}
	return strings.Join(parts, ", ")
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
