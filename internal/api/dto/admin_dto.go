package dto

import (
	"github.com/spec-kit/helpdesk-bot/internal/domain"
)

// TicketResponse is the operator view of an open ticket.
type TicketResponse struct {
	TicketID        string   `json:"ticket_id"`
	OriginalChannel string   `json:"original_channel"`
	OriginalTs      string   `json:"original_ts"`
	Status          string   `json:"status"`
	Header          string   `json:"header"`
	Claimers        []string `json:"claimers"`
	NotSure         []string `json:"not_sure"`
}

// LeaderboardEntryResponse is one ranked resolver.
type LeaderboardEntryResponse struct {
	UserID string `json:"user_id"`
	Count  int    `json:"count"`
}

// LeaderboardResponse is a ranking for one window.
type LeaderboardResponse struct {
	Window  string                     `json:"window"`
	Entries []LeaderboardEntryResponse `json:"entries"`
}

// SnapshotResponse reports a forced save.
type SnapshotResponse struct {
	Tickets     int `json:"tickets"`
	Resolutions int `json:"resolutions"`
}

// ToTicketResponse converts a domain ticket to a response payload.
func ToTicketResponse(t domain.Ticket) TicketResponse {
	return TicketResponse{
		TicketID:        t.TicketID,
		OriginalChannel: t.OriginalChannel,
		OriginalTs:      t.OriginalMessageID,
		Status:          string(t.Status()),
		Header:          t.HeaderText(),
		Claimers:        append([]string{}, t.Claimers...),
		NotSure:         append([]string{}, t.NotSure...),
	}
}

// ToLeaderboardResponse converts ranked entries.
func ToLeaderboardResponse(window string, entries []domain.LeaderboardEntry) LeaderboardResponse {
	out := LeaderboardResponse{Window: window, Entries: make([]LeaderboardEntryResponse, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, LeaderboardEntryResponse{UserID: e.UserID, Count: e.Count})
	}
	return out
}
