package persistence

import (
	"context"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/leaderboard"
	"github.com/spec-kit/helpdesk-bot/internal/registry"
)

// Store loads and saves the state document.
type Store interface {
	// Load returns false when no document has been saved yet.
	Load(ctx context.Context) (*Snapshot, bool, error)
	Save(ctx context.Context, snapshot *Snapshot) error
	Ping(ctx context.Context) error
}

// Snapshot is the persisted state document. Field names are shared with
// existing data files and must not change.
type Snapshot struct {
	Tickets             map[string]SnapshotTicket `json:"tickets"`
	TicketsByOriginalTs map[string]string         `json:"ticketsByOriginalTs"`
	LBForToday          []SnapshotRollingEntry    `json:"lbForToday"`
	TicketResolutions   []SnapshotResolution      `json:"ticketResolutions"`
}

// SnapshotTicket is one open ticket.
type SnapshotTicket struct {
	OriginalChannel string   `json:"originalChannel"`
	OriginalTs      string   `json:"originalTs"`
	TicketMessageTs string   `json:"ticketMessageTs"`
	Claimers        []string `json:"claimers"`
	NotSure         []string `json:"notSure"`
}

// SnapshotRollingEntry is one rolling accumulator entry.
type SnapshotRollingEntry struct {
	SlackID        string `json:"slack_id"`
	CountOfTickets int    `json:"count_of_tickets"`
}

// SnapshotResolution is one resolution log record.
type SnapshotResolution struct {
	Resolver  string `json:"resolver"`
	Timestamp int64  `json:"timestamp"`
}

// NewSnapshot converts in-memory state to the document layout.
func NewSnapshot(reg registry.State, board leaderboard.State) *Snapshot {
	snap := &Snapshot{
		Tickets:             make(map[string]SnapshotTicket, len(reg.Tickets)),
		TicketsByOriginalTs: make(map[string]string, len(reg.ByOriginal)),
		LBForToday:          make([]SnapshotRollingEntry, 0, len(board.Rolling)),
		TicketResolutions:   make([]SnapshotResolution, 0, len(board.Log)),
	}
	for id, ticket := range reg.Tickets {
		snap.Tickets[id] = SnapshotTicket{
			OriginalChannel: ticket.OriginalChannel,
			OriginalTs:      ticket.OriginalMessageID,
			TicketMessageTs: ticket.TicketID,
			Claimers:        nonNil(ticket.Claimers),
			NotSure:         nonNil(ticket.NotSure),
		}
	}
	for originalTs, id := range reg.ByOriginal {
		snap.TicketsByOriginalTs[originalTs] = id
	}
	for _, entry := range board.Rolling {
		snap.LBForToday = append(snap.LBForToday, SnapshotRollingEntry{SlackID: entry.UserID, CountOfTickets: entry.Count})
	}
	for _, record := range board.Log {
		snap.TicketResolutions = append(snap.TicketResolutions, SnapshotResolution{Resolver: record.ResolverID, Timestamp: record.TimestampMs})
	}
	return snap
}

// RegistryState converts the document back to registry state.
func (s *Snapshot) RegistryState() registry.State {
	state := registry.State{
		Tickets:    make(map[string]domain.Ticket, len(s.Tickets)),
		ByOriginal: make(map[string]string, len(s.TicketsByOriginalTs)),
	}
	for id, ticket := range s.Tickets {
		ticketID := ticket.TicketMessageTs
		if ticketID == "" {
			ticketID = id
		}
		state.Tickets[id] = domain.Ticket{
			TicketID:          ticketID,
			OriginalChannel:   ticket.OriginalChannel,
			OriginalMessageID: ticket.OriginalTs,
			Claimers:          nonNil(ticket.Claimers),
			NotSure:           nonNil(ticket.NotSure),
		}
	}
	for originalTs, id := range s.TicketsByOriginalTs {
		state.ByOriginal[originalTs] = id
	}
	return state
}

// LeaderboardState converts the document back to aggregator state.
func (s *Snapshot) LeaderboardState() leaderboard.State {
	state := leaderboard.State{
		Log:     make([]domain.ResolutionRecord, 0, len(s.TicketResolutions)),
		Rolling: make([]domain.LeaderboardEntry, 0, len(s.LBForToday)),
	}
	for _, record := range s.TicketResolutions {
		state.Log = append(state.Log, domain.ResolutionRecord{ResolverID: record.Resolver, TimestampMs: record.Timestamp})
	}
	for _, entry := range s.LBForToday {
		state.Rolling = append(state.Rolling, domain.LeaderboardEntry{UserID: entry.SlackID, Count: entry.CountOfTickets})
	}
	return state
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return append([]string{}, ids...)
}
