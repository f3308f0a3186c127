package router

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"

	"github.com/spec-kit/helpdesk-bot/internal/auth"
	"github.com/spec-kit/helpdesk-bot/internal/events"
	"github.com/spec-kit/helpdesk-bot/internal/leaderboard"
	"github.com/spec-kit/helpdesk-bot/internal/membership"
	"github.com/spec-kit/helpdesk-bot/internal/observability"
	"github.com/spec-kit/helpdesk-bot/internal/registry"
	"github.com/spec-kit/helpdesk-bot/internal/serializer"
	"github.com/spec-kit/helpdesk-bot/internal/service"
)

const (
	helpChannel    = "C_HELP"
	ticketsChannel = "C_TICKETS"
)

// stubMessenger accepts every call and knows the authors of source messages.
type stubMessenger struct {
	mu      sync.Mutex
	next    int
	authors map[string]string
	homes   []string
}

func (s *stubMessenger) PostMessage(ctx context.Context, channelID string, msg service.Message) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return "9000." + strconv.Itoa(s.next), nil
}

func (s *stubMessenger) UpdateMessage(ctx context.Context, channelID, ts string, msg service.Message) error {
	return nil
}

func (s *stubMessenger) DeleteMessage(ctx context.Context, channelID, ts string) error { return nil }

func (s *stubMessenger) AddReaction(ctx context.Context, channelID, ts, emoji string) error {
	return nil
}

func (s *stubMessenger) MessageAt(ctx context.Context, channelID, ts string) (*service.PostedMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	author, ok := s.authors[ts]
	if !ok {
		return nil, nil
	}
	return &service.PostedMessage{Timestamp: ts, UserID: author}, nil
}

func (s *stubMessenger) MessageAuthor(ctx context.Context, channelID, ts string) (string, error) {
	msg, err := s.MessageAt(ctx, channelID, ts)
	if err != nil || msg == nil {
		return "", err
	}
	return msg.UserID, nil
}

func (s *stubMessenger) ChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	return nil, nil
}

func (s *stubMessenger) PublishHome(ctx context.Context, userID string, blocks []slack.Block) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.homes = append(s.homes, userID)
	return nil
}

type routerFixture struct {
	router    *Router
	registry  *registry.Registry
	board     *leaderboard.Aggregator
	messenger *stubMessenger
	metrics   *observability.Metrics
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	members := membership.NewCache()
	members.Replace([]string{"U_STAFF"})
	messenger := &stubMessenger{authors: map[string]string{}}
	reg := registry.New()
	board := leaderboard.New()
	ser := serializer.New(4, 16, nil)
	t.Cleanup(ser.Close)
	metrics := observability.NewMetrics()

	tickets := service.NewTicketService(service.TicketDependencies{
		Registry:    reg,
		Leaderboard: board,
		Messenger:   messenger,
		Config:      service.TicketConfig{HelpChannel: helpChannel, TicketsChannel: ticketsChannel, CallTimeout: time.Second},
	})
	home := service.NewHomeService(service.HomeDependencies{Registry: reg, Leaderboard: board, Messenger: messenger})

	return &routerFixture{
		router: New(Dependencies{
			Config:     Config{HelpChannel: helpChannel, TicketsChannel: ticketsChannel},
			Dedup:      NewMemoryDeduplicator(time.Minute),
			Gate:       auth.NewGate(members, messenger, time.Second, nil),
			Serializer: ser,
			Registry:   reg,
			Lifecycle:  tickets,
			Home:       home,
			Metrics:    metrics,
		}),
		registry:  reg,
		board:     board,
		messenger: messenger,
		metrics:   metrics,
	}
}

func (f *routerFixture) handle(t *testing.T, ev events.Inbound) {
	t.Helper()
	select {
	case err := <-f.router.Handle(context.Background(), ev):
		if err != nil {
			t.Fatalf("Handle returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Handle did not finish")
	}
}

func (f *routerFixture) createTicket(t *testing.T, ts, author string) string {
	t.Helper()
	f.messenger.authors[ts] = author
	f.handle(t, events.NewMessage{EventID: "ev-" + ts, Channel: helpChannel, MessageID: ts, AuthorID: author, Text: "help"})
	ticket, err := f.registry.GetByOriginal(helpChannel, ts)
	if err != nil {
		t.Fatalf("ticket not created: %v", err)
	}
	return ticket.TicketID
}

func TestTopLevelMessageCreatesTicket(t *testing.T) {
	f := newRouterFixture(t)
	f.createTicket(t, "1.1", "U_USER")

	// redelivery of the same event is dropped
	f.handle(t, events.NewMessage{EventID: "ev-1.1", Channel: helpChannel, MessageID: "1.1", AuthorID: "U_USER"})
	if f.registry.Len() != 1 {
		t.Fatalf("expected one ticket, got %d", f.registry.Len())
	}
	if f.metrics.EventCount("inbound.duplicate") != 1 {
		t.Fatalf("duplicate delivery not counted")
	}
}

func TestIgnoredMessages(t *testing.T) {
	f := newRouterFixture(t)
	f.handle(t, events.NewMessage{EventID: "a", Channel: "C_OTHER", MessageID: "1.1", AuthorID: "U_USER"})
	f.handle(t, events.NewMessage{EventID: "b", Channel: helpChannel, MessageID: "1.2", AuthorID: "U_USER", Subtype: "channel_join"})
	f.handle(t, events.NewMessage{EventID: "c", Channel: helpChannel, MessageID: "1.3", AuthorID: "U_BOT", FromBot: true})
	if f.registry.Len() != 0 {
		t.Fatalf("no tickets expected, got %d", f.registry.Len())
	}

	f.handle(t, events.NewMessage{EventID: "d", Channel: helpChannel, MessageID: "1.4", AuthorID: "U_USER", Subtype: "file_share"})
	if f.registry.Len() != 1 {
		t.Fatalf("file share should create a ticket")
	}
}

func TestConcurrentCreatesForOneSource(t *testing.T) {
	f := newRouterFixture(t)
	var results []<-chan error
	for i := 0; i < 8; i++ {
		results = append(results, f.router.Handle(context.Background(), events.NewMessage{
			EventID: "ev-" + strconv.Itoa(i), Channel: helpChannel, MessageID: "5.5", AuthorID: "U_USER",
		}))
	}
	for _, ch := range results {
		if err := <-ch; err != nil {
			t.Fatalf("Handle returned error: %v", err)
		}
	}
	if f.registry.Len() != 1 {
		t.Fatalf("expected exactly one ticket, got %d", f.registry.Len())
	}
}

func TestThreadReplyByStaffClaims(t *testing.T) {
	f := newRouterFixture(t)
	ticketID := f.createTicket(t, "1.1", "U_USER")

	f.handle(t, events.NewMessage{EventID: "r1", Channel: helpChannel, MessageID: "1.2", AuthorID: "U_USER", IsThreadReply: true, ThreadRootID: "1.1"})
	f.handle(t, events.NewMessage{EventID: "r2", Channel: helpChannel, MessageID: "1.3", AuthorID: "U_STAFF", IsThreadReply: true, ThreadRootID: "1.1"})

	ticket, _ := f.registry.Get(ticketID)
	if len(ticket.Claimers) != 1 || ticket.Claimers[0] != "U_STAFF" {
		t.Fatalf("unexpected claimers %v", ticket.Claimers)
	}
}

func TestUnauthorizedResolveLeavesStateUnchanged(t *testing.T) {
	f := newRouterFixture(t)
	ticketID := f.createTicket(t, "1.1", "U_USER")

	f.handle(t, events.ReactionAdded{EventID: "x1", Emoji: "white_check_mark", Channel: helpChannel, MessageID: "1.1", UserID: "U_STRANGER"})
	f.handle(t, events.ButtonClicked{ActionID: "mark_resolved", Channel: ticketsChannel, MessageID: ticketID, UserID: "U_STRANGER", ActionTs: "2.0"})

	if _, err := f.registry.Get(ticketID); err != nil {
		t.Fatalf("ticket should still exist: %v", err)
	}
	if f.board.Len() != 0 {
		t.Fatalf("log should be empty, got %d", f.board.Len())
	}
}

func TestAuthorMayResolveByReaction(t *testing.T) {
	f := newRouterFixture(t)
	ticketID := f.createTicket(t, "1.1", "U_USER")

	// the author may not use the staff buttons
	f.handle(t, events.ButtonClicked{ActionID: "mark_resolved", Channel: ticketsChannel, MessageID: ticketID, UserID: "U_USER", ActionTs: "2.0"})
	if f.registry.Len() != 1 {
		t.Fatalf("author button resolve should be dropped")
	}

	f.handle(t, events.ReactionAdded{EventID: "x1", Emoji: "white_check_mark", Channel: helpChannel, MessageID: "1.1", UserID: "U_USER"})
	if f.registry.Len() != 0 || f.board.Len() != 1 {
		t.Fatalf("author reaction should resolve: tickets=%d log=%d", f.registry.Len(), f.board.Len())
	}
}

func TestButtonsAfterResolveAreNoOps(t *testing.T) {
	f := newRouterFixture(t)
	ticketID := f.createTicket(t, "1.1", "U_USER")

	f.handle(t, events.ButtonClicked{ActionID: "not_sure", Channel: ticketsChannel, MessageID: ticketID, UserID: "U_STAFF", ActionTs: "2.0"})
	ticket, _ := f.registry.Get(ticketID)
	if len(ticket.NotSure) != 1 {
		t.Fatalf("expected not sure mark, got %+v", ticket)
	}

	f.handle(t, events.ButtonClicked{ActionID: "mark_resolved", Channel: ticketsChannel, MessageID: ticketID, UserID: "U_STAFF", ActionTs: "2.1"})
	f.handle(t, events.ButtonClicked{ActionID: "mark_resolved", Channel: ticketsChannel, MessageID: ticketID, UserID: "U_STAFF", ActionTs: "2.2"})
	f.handle(t, events.ButtonClicked{ActionID: "not_sure", Channel: ticketsChannel, MessageID: ticketID, UserID: "U_STAFF", ActionTs: "2.3"})
	if f.board.Len() != 1 {
		t.Fatalf("resolve must be recorded once, got %d", f.board.Len())
	}
}

func TestHomeOpenedPublishes(t *testing.T) {
	f := newRouterFixture(t)
	f.handle(t, events.HomeOpened{EventID: "h1", UserID: "U_STAFF"})
	if len(f.messenger.homes) != 1 || f.messenger.homes[0] != "U_STAFF" {
		t.Fatalf("home not published: %v", f.messenger.homes)
	}
}

func TestSaturatedShardDropsInsteadOfBlocking(t *testing.T) {
	ser := serializer.New(1, 0, nil)
	t.Cleanup(ser.Close)
	metrics := observability.NewMetrics()
	r := New(Dependencies{
		Config:         Config{HelpChannel: helpChannel, TicketsChannel: ticketsChannel},
		Dedup:          NewMemoryDeduplicator(time.Minute),
		Serializer:     ser,
		Registry:       registry.New(),
		Metrics:        metrics,
		EnqueueTimeout: 20 * time.Millisecond,
	})

	release := make(chan struct{})
	started := make(chan struct{})
	busy, err := ser.Submit(context.Background(), "busy", func(context.Context) error {
		close(started)
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	<-started
	defer func() {
		close(release)
		<-busy
	}()

	begin := time.Now()
	result := r.Handle(context.Background(), events.NewMessage{EventID: "ev-9", Channel: helpChannel, MessageID: "9.9", AuthorID: "U_USER", Text: "help"})
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Fatalf("Handle blocked for %s on a full shard", elapsed)
	}
	if err := <-result; !errors.Is(err, serializer.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	if metrics.EventCount("op.create.dropped") != 1 {
		t.Fatalf("dropped event not counted")
	}
}
