package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/blocks"
	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/events"
	"github.com/spec-kit/helpdesk-bot/internal/leaderboard"
	"github.com/spec-kit/helpdesk-bot/internal/registry"
	apperrors "github.com/spec-kit/helpdesk-bot/pkg/util/errorutil"
)

// ResolvedEmoji marks a resolved source message.
const ResolvedEmoji = "white_check_mark"

// FileUploadText stands in for the text of a bare file upload.
const FileUploadText = "[Image/File uploaded]"

// TicketService drives the ticket lifecycle. Callers must run the methods
// for one source message through the serializer so that at most one of
// them touches a ticket at a time.
type TicketService struct {
	tickets     *registry.Registry
	leaderboard *leaderboard.Aggregator
	messenger   Messenger
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	cfg         TicketConfig
	now         func() time.Time
}

// TicketConfig names the channels and links the lifecycle works with.
type TicketConfig struct {
	HelpChannel    string
	TicketsChannel string
	FAQURL         string
	Links          blocks.Links
	CallTimeout    time.Duration
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	Registry    *registry.Registry
	Leaderboard *leaderboard.Aggregator
	Messenger   Messenger
	Dispatcher  events.Dispatcher
	Logger      *zap.Logger
	Config      TicketConfig
	Clock       func() time.Time
}

// ResolveOptions tweak the resolve side effects.
type ResolveOptions struct {
	// FromReaction re-applies the completion reaction after the commit.
	FromReaction bool
	// AI drops the follow-up invitation from the acknowledgment.
	AI bool
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	cfg := deps.Config
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	return &TicketService{
		tickets:     deps.Registry,
		leaderboard: deps.Leaderboard,
		messenger:   deps.Messenger,
		dispatcher:  deps.Dispatcher,
		logger:      logger.Named("tickets"),
		cfg:         cfg,
		now:         clock,
	}
}

// Create mirrors a help channel message into the queue. When the source
// already has a ticket, that ticket is returned with a DUPLICATE_SOURCE
// error and nothing is posted.
func (s *TicketService) Create(ctx context.Context, msg events.NewMessage) (domain.Ticket, error) {
	if existing, err := s.tickets.GetByOriginal(msg.Channel, msg.MessageID); err == nil {
		return existing, apperrors.NewDuplicateSource(existing.TicketID, map[string]any{"original_ts": msg.MessageID})
	}

	draft := domain.Ticket{OriginalChannel: msg.Channel, OriginalMessageID: msg.MessageID}
	callCtx, cancel := s.callContext(ctx)
	ticketID, err := s.messenger.PostMessage(callCtx, s.cfg.TicketsChannel, Message{
		Text:   blocks.TicketFallbackText,
		Blocks: blocks.Ticket(s.cfg.Links, draft),
	})
	cancel()
	if err != nil {
		return domain.Ticket{}, apperrors.NewCollaboratorFailure("post_queue_message", err)
	}

	ticket, err := s.tickets.Create(msg.Channel, msg.MessageID, ticketID)
	if err != nil {
		if apperrors.IsDuplicateSource(err) {
			s.deleteQueueMessage(ctx, ticketID)
		}
		return ticket, err
	}
	s.logger.Info("ticket created",
		zap.String("ticket_id", ticket.TicketID),
		zap.String("original_ts", ticket.OriginalMessageID))

	s.postOnboarding(ctx, msg)
	s.publish(ctx, events.NewEvent(events.EventTicketCreated, ticket.TicketID, msg.AuthorID, events.TicketCreatedPayload{
		OriginalChannel:   ticket.OriginalChannel,
		OriginalMessageID: ticket.OriginalMessageID,
	}))
	return ticket, nil
}

// Claim adds userID to the claimers and re-renders the queue message.
func (s *TicketService) Claim(ctx context.Context, ticketID, userID string) (domain.Ticket, error) {
	ticket, changed, err := s.tickets.Mutate(ticketID, func(t *domain.Ticket) bool {
		return t.Claim(userID)
	})
	if err != nil {
		return domain.Ticket{}, err
	}
	s.render(ctx, ticket)
	s.publish(ctx, events.NewEvent(events.EventTicketClaimed, ticket.TicketID, userID, changedPayload(ticket, changed)))
	return ticket, nil
}

// MarkUncertain adds userID to the not-sure set and re-renders.
func (s *TicketService) MarkUncertain(ctx context.Context, ticketID, userID string) (domain.Ticket, error) {
	ticket, changed, err := s.tickets.Mutate(ticketID, func(t *domain.Ticket) bool {
		return t.MarkUncertain(userID)
	})
	if err != nil {
		return domain.Ticket{}, err
	}
	s.render(ctx, ticket)
	s.publish(ctx, events.NewEvent(events.EventTicketMarkedUncertain, ticket.TicketID, userID, changedPayload(ticket, changed)))
	return ticket, nil
}

// AssignTo notifies assignee about the ticket. Assignment is advisory and
// leaves the ticket untouched.
func (s *TicketService) AssignTo(ctx context.Context, ticketID, actorID, assigneeID string) error {
	if assigneeID == "" {
		return apperrors.NewValidationError("assignee required", nil)
	}
	ticket, err := s.tickets.Get(ticketID)
	if err != nil {
		return err
	}

	text := fmt.Sprintf("You have been assigned a ticket from <#%s>. Please check it out & claim it by replying.\n<%s|View Ticket>",
		s.cfg.TicketsChannel, s.cfg.Links.Permalink(s.cfg.TicketsChannel, ticket.TicketID))
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	if _, err := s.messenger.PostMessage(callCtx, assigneeID, Message{Text: text}); err != nil {
		return apperrors.NewCollaboratorFailure("assign_dm", err)
	}

	s.logger.Info("ticket assigned",
		zap.String("ticket_id", ticket.TicketID),
		zap.String("actor_id", actorID),
		zap.String("assignee_id", assigneeID))
	s.publish(ctx, events.NewEvent(events.EventTicketAssigned, ticket.TicketID, actorID, events.TicketAssignedPayload{AssigneeID: assigneeID}))
	return nil
}

// Resolve closes the ticket. Acknowledging the source and deleting the
// queue message are best effort; removing the ticket and crediting the
// resolver always happen once the ticket is found.
func (s *TicketService) Resolve(ctx context.Context, ticketID, resolverID string, opts ResolveOptions) (domain.ResolutionRecord, error) {
	ticket, err := s.tickets.Get(ticketID)
	if err != nil {
		return domain.ResolutionRecord{}, err
	}
	log := s.logger.With(zap.String("ticket_id", ticket.TicketID), zap.String("resolver_id", resolverID))

	if s.sourceExists(ctx, ticket, log) {
		s.acknowledge(ctx, ticket, opts, log)
	}
	s.deleteQueueMessage(ctx, ticket.TicketID)

	if _, err := s.tickets.Delete(ticket.TicketID); err != nil {
		return domain.ResolutionRecord{}, err
	}
	record := s.leaderboard.Record(resolverID, s.now())
	log.Info("ticket resolved", zap.Bool("from_reaction", opts.FromReaction))

	if opts.FromReaction {
		callCtx, cancel := s.callContext(ctx)
		if err := s.messenger.AddReaction(callCtx, ticket.OriginalChannel, ticket.OriginalMessageID, ResolvedEmoji); err != nil {
			log.Debug("completion reaction not reapplied", zap.Error(err))
		}
		cancel()
	}

	s.publish(ctx, events.NewEvent(events.EventTicketResolved, ticket.TicketID, resolverID, events.TicketResolvedPayload{
		OriginalChannel:   ticket.OriginalChannel,
		OriginalMessageID: ticket.OriginalMessageID,
		ResolvedAtMs:      record.TimestampMs,
	}))
	return record, nil
}

// Render re-posts the queue message for the stored ticket.
func (s *TicketService) Render(ctx context.Context, ticketID string) error {
	ticket, err := s.tickets.Get(ticketID)
	if err != nil {
		return err
	}
	return s.render(ctx, ticket)
}

func (s *TicketService) render(ctx context.Context, ticket domain.Ticket) error {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	err := s.messenger.UpdateMessage(callCtx, s.cfg.TicketsChannel, ticket.TicketID, Message{
		Text:   blocks.TicketFallbackText,
		Blocks: blocks.Ticket(s.cfg.Links, ticket),
	})
	if err != nil {
		s.logger.Warn("queue message render failed",
			zap.String("ticket_id", ticket.TicketID),
			zap.Error(err))
		return apperrors.NewCollaboratorFailure("update_queue_message", err)
	}
	return nil
}

func (s *TicketService) postOnboarding(ctx context.Context, msg events.NewMessage) {
	faq := "make sure to read the FAQ to see if it answers your question!"
	if s.cfg.FAQURL != "" {
		faq = fmt.Sprintf("make sure to read the <%s|FAQ> to see if it answers your question!", s.cfg.FAQURL)
	}
	replies := []string{
		"woah... a new ticket?? someone will be here to help you soon... " + faq,
		"if you have discovered the solution to your issue, react with a :white_check_mark: to mark it as solved!",
	}
	for _, text := range replies {
		callCtx, cancel := s.callContext(ctx)
		_, err := s.messenger.PostMessage(callCtx, msg.Channel, Message{Text: text, ThreadTS: msg.MessageID})
		cancel()
		if err != nil {
			s.logger.Warn("onboarding reply failed",
				zap.String("original_ts", msg.MessageID),
				zap.Error(err))
		}
	}
}

func (s *TicketService) sourceExists(ctx context.Context, ticket domain.Ticket, log *zap.Logger) bool {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	source, err := s.messenger.MessageAt(callCtx, ticket.OriginalChannel, ticket.OriginalMessageID)
	if err != nil {
		log.Warn("source message check failed; resolving anyway", zap.Error(err))
		return false
	}
	if source == nil {
		log.Warn("source message no longer exists; resolving anyway")
		return false
	}
	return true
}

func (s *TicketService) acknowledge(ctx context.Context, ticket domain.Ticket, opts ResolveOptions, log *zap.Logger) {
	text := fmt.Sprintf(":white_check_mark: This ticket has been marked as resolved. Please send a new message in <#%s> to create a new ticket if you have another question.",
		s.cfg.HelpChannel)
	if !opts.AI {
		text += " You're welcome to continue asking follow-up questions in this thread!"
	}

	callCtx, cancel := s.callContext(ctx)
	_, err := s.messenger.PostMessage(callCtx, ticket.OriginalChannel, Message{Text: text, ThreadTS: ticket.OriginalMessageID})
	cancel()
	if err != nil {
		log.Warn("resolution reply failed", zap.Error(err))
	}

	callCtx, cancel = s.callContext(ctx)
	err = s.messenger.AddReaction(callCtx, ticket.OriginalChannel, ticket.OriginalMessageID, ResolvedEmoji)
	cancel()
	if err != nil {
		log.Warn("resolution reaction failed", zap.Error(err))
	}
}

func (s *TicketService) deleteQueueMessage(ctx context.Context, ticketID string) {
	callCtx, cancel := s.callContext(ctx)
	defer cancel()
	if err := s.messenger.DeleteMessage(callCtx, s.cfg.TicketsChannel, ticketID); err != nil {
		s.logger.Warn("queue message delete failed",
			zap.String("ticket_id", ticketID),
			zap.Error(err))
	}
}

func (s *TicketService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func (s *TicketService) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.CallTimeout)
}

func changedPayload(ticket domain.Ticket, changed bool) events.TicketChangedPayload {
	return events.TicketChangedPayload{
		Changed:  changed,
		Claimers: ticket.Claimers,
		NotSure:  ticket.NotSure,
	}
}
