package registry

import (
	"sort"
	"sync"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-bot/pkg/util/errorutil"
)

// Registry is the authoritative in-memory store of open tickets. It owns
// the ticket map and the source-message index; both are always changed
// under the same write lock so readers never see one without the other.
type Registry struct {
	mu         sync.RWMutex
	tickets    map[string]*domain.Ticket
	byOriginal map[string]string
}

// State is a point-in-time copy of the registry used for persistence.
type State struct {
	Tickets    map[string]domain.Ticket
	ByOriginal map[string]string
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{
		tickets:    make(map[string]*domain.Ticket),
		byOriginal: make(map[string]string),
	}
}

// Create inserts a ticket for the source message. If the source already
// has a ticket, the existing ticket is returned together with a
// DUPLICATE_SOURCE error so the caller can reuse it.
func (r *Registry) Create(originalChannel, originalMessageID, ticketID string) (domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existingID, ok := r.byOriginal[originalMessageID]; ok {
		if existing, ok := r.tickets[existingID]; ok {
			return existing.Clone(), apperrors.NewDuplicateSource(existingID, map[string]any{
				"original_channel": originalChannel,
				"original_ts":      originalMessageID,
			})
		}
	}
	if existing, ok := r.tickets[ticketID]; ok {
		return existing.Clone(), apperrors.NewDuplicateSource(ticketID, map[string]any{
			"original_ts": existing.OriginalMessageID,
		})
	}

	ticket := &domain.Ticket{
		TicketID:          ticketID,
		OriginalChannel:   originalChannel,
		OriginalMessageID: originalMessageID,
		Claimers:          []string{},
		NotSure:           []string{},
	}
	r.tickets[ticketID] = ticket
	r.byOriginal[originalMessageID] = ticketID
	return ticket.Clone(), nil
}

// Get returns the ticket with the given queue message id.
func (r *Registry) Get(ticketID string) (domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ticket, ok := r.tickets[ticketID]
	if !ok {
		return domain.Ticket{}, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	return ticket.Clone(), nil
}

// GetByOriginal resolves a source message to its ticket. An empty channel
// matches any channel.
func (r *Registry) GetByOriginal(originalChannel, originalMessageID string) (domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	notFound := apperrors.NewNotFound("ticket", map[string]any{
		"original_channel": originalChannel,
		"original_ts":      originalMessageID,
	})
	ticketID, ok := r.byOriginal[originalMessageID]
	if !ok {
		return domain.Ticket{}, notFound
	}
	ticket, ok := r.tickets[ticketID]
	if !ok {
		return domain.Ticket{}, notFound
	}
	if originalChannel != "" && ticket.OriginalChannel != originalChannel {
		return domain.Ticket{}, notFound
	}
	return ticket.Clone(), nil
}

// Mutate applies fn to the stored ticket. fn reports whether it changed
// anything; the updated copy and that flag are returned.
func (r *Registry) Mutate(ticketID string, fn func(*domain.Ticket) bool) (domain.Ticket, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[ticketID]
	if !ok {
		return domain.Ticket{}, false, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	working := ticket.Clone()
	changed := fn(&working)
	// identity fields are owned by the registry
	working.TicketID = ticket.TicketID
	working.OriginalChannel = ticket.OriginalChannel
	working.OriginalMessageID = ticket.OriginalMessageID
	*ticket = working
	return ticket.Clone(), changed, nil
}

// Delete removes the ticket and its index entry together.
func (r *Registry) Delete(ticketID string) (domain.Ticket, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ticket, ok := r.tickets[ticketID]
	if !ok {
		return domain.Ticket{}, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticketID})
	}
	delete(r.tickets, ticketID)
	if r.byOriginal[ticket.OriginalMessageID] == ticketID {
		delete(r.byOriginal, ticket.OriginalMessageID)
	}
	return ticket.Clone(), nil
}

// List returns all tickets ordered by ticket id. Queue message ids are
// platform timestamps, so this is creation order.
func (r *Registry) List() []domain.Ticket {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.tickets))
	for id := range r.tickets {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]domain.Ticket, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.tickets[id].Clone())
	}
	return out
}

// Unclaimed returns tickets nobody has claimed yet, in creation order.
func (r *Registry) Unclaimed() []domain.Ticket {
	all := r.List()
	out := make([]domain.Ticket, 0, len(all))
	for _, ticket := range all {
		if len(ticket.Claimers) == 0 {
			out = append(out, ticket)
		}
	}
	return out
}

// Len returns the number of open tickets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tickets)
}

// Snapshot copies the full registry state.
func (r *Registry) Snapshot() State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state := State{
		Tickets:    make(map[string]domain.Ticket, len(r.tickets)),
		ByOriginal: make(map[string]string, len(r.byOriginal)),
	}
	for id, ticket := range r.tickets {
		state.Tickets[id] = ticket.Clone()
	}
	for originalTs, id := range r.byOriginal {
		state.ByOriginal[originalTs] = id
	}
	return state
}

// Restore replaces the registry contents with state. Index entries that
// point at missing tickets are dropped, and tickets missing from the index
// are re-indexed, so the loaded registry always satisfies the pairing.
func (r *Registry) Restore(state State) {
	tickets := make(map[string]*domain.Ticket, len(state.Tickets))
	byOriginal := make(map[string]string, len(state.ByOriginal))

	for id, ticket := range state.Tickets {
		cp := ticket.Clone()
		if cp.TicketID == "" {
			cp.TicketID = id
		}
		if cp.Claimers == nil {
			cp.Claimers = []string{}
		}
		if cp.NotSure == nil {
			cp.NotSure = []string{}
		}
		tickets[id] = &cp
	}
	for originalTs, id := range state.ByOriginal {
		if ticket, ok := tickets[id]; ok && ticket.OriginalMessageID == originalTs {
			byOriginal[originalTs] = id
		}
	}
	ids := make([]string, 0, len(tickets))
	for id := range tickets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		originalTs := tickets[id].OriginalMessageID
		if _, ok := byOriginal[originalTs]; !ok {
			byOriginal[originalTs] = id
		}
		if byOriginal[originalTs] != id {
			// a second ticket for the same source cannot be addressed; keep the indexed one
			delete(tickets, id)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tickets = tickets
	r.byOriginal = byOriginal
}
