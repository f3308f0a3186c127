// Package router turns inbound platform events into lifecycle operations.
// Each event is deduplicated, checked against the authorization gate and
// queued on the serializer under its source message, so operations on one
// ticket apply in the order the router accepted them.
package router

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/auth"
	"github.com/spec-kit/helpdesk-bot/internal/blocks"
	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/events"
	"github.com/spec-kit/helpdesk-bot/internal/observability"
	"github.com/spec-kit/helpdesk-bot/internal/registry"
	"github.com/spec-kit/helpdesk-bot/internal/serializer"
	"github.com/spec-kit/helpdesk-bot/internal/service"
	apperrors "github.com/spec-kit/helpdesk-bot/pkg/util/errorutil"
)

// Lifecycle is the set of ticket operations the router drives.
type Lifecycle interface {
	Create(ctx context.Context, msg events.NewMessage) (domain.Ticket, error)
	Claim(ctx context.Context, ticketID, userID string) (domain.Ticket, error)
	MarkUncertain(ctx context.Context, ticketID, userID string) (domain.Ticket, error)
	AssignTo(ctx context.Context, ticketID, actorID, assigneeID string) error
	Resolve(ctx context.Context, ticketID, resolverID string, opts service.ResolveOptions) (domain.ResolutionRecord, error)
}

// HomePublisher renders the app home for a user.
type HomePublisher interface {
	Publish(ctx context.Context, userID string) error
}

// Config names the channels the router listens to.
type Config struct {
	HelpChannel    string
	TicketsChannel string
}

// Dependencies bundles router collaborators.
type Dependencies struct {
	Config     Config
	Dedup      Deduplicator
	Gate       *auth.Gate
	Serializer *serializer.Serializer
	Registry   *registry.Registry
	Lifecycle  Lifecycle
	Home       HomePublisher
	Metrics    *observability.Metrics
	Logger     *zap.Logger

	// EnqueueTimeout bounds how long Handle waits for shard queue space.
	EnqueueTimeout time.Duration
}

// Router dispatches inbound events.
type Router struct {
	cfg        Config
	dedup      Deduplicator
	gate       *auth.Gate
	serializer *serializer.Serializer
	tickets    *registry.Registry
	lifecycle  Lifecycle
	home       HomePublisher
	metrics    *observability.Metrics
	logger     *zap.Logger
	enqueueIn  time.Duration
}

// New builds a router.
func New(deps Dependencies) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	enqueueIn := deps.EnqueueTimeout
	if enqueueIn <= 0 {
		enqueueIn = 2 * time.Second
	}
	return &Router{
		cfg:        deps.Config,
		dedup:      deps.Dedup,
		gate:       deps.Gate,
		serializer: deps.Serializer,
		tickets:    deps.Registry,
		lifecycle:  deps.Lifecycle,
		home:       deps.Home,
		metrics:    deps.Metrics,
		logger:     logger.Named("router"),
		enqueueIn:  enqueueIn,
	}
}

// Handle accepts an event. Acceptance (dedup, membership gate, queueing)
// happens before Handle returns; the work itself runs on the serializer.
// The returned channel yields the outcome once, nil for dropped events.
// Outcomes are also logged, so callers may ignore the channel.
func (r *Router) Handle(ctx context.Context, ev events.Inbound) <-chan error {
	// work must outlive request scoped contexts
	ctx = context.WithoutCancel(ctx)

	if !r.firstSeen(ctx, ev.DedupKey()) {
		r.metrics.RecordEvent("inbound.duplicate")
		return finished(nil)
	}

	switch e := ev.(type) {
	case events.NewMessage:
		return r.handleMessage(ctx, e)
	case events.ReactionAdded:
		return r.handleReaction(ctx, e)
	case events.ButtonClicked:
		return r.handleButton(ctx, e)
	case events.HomeOpened:
		return r.handleHome(ctx, e)
	default:
		r.metrics.RecordEvent("inbound.ignored")
		return finished(nil)
	}
}

func (r *Router) handleMessage(ctx context.Context, e events.NewMessage) <-chan error {
	if e.Channel != r.cfg.HelpChannel || e.FromBot || e.AuthorID == "" {
		return finished(nil)
	}

	if !e.IsThreadReply {
		if e.Subtype != "" && e.Subtype != "file_share" {
			return finished(nil)
		}
		if e.Text == "" && e.Subtype == "file_share" {
			e.Text = service.FileUploadText
		}
		r.metrics.RecordEvent("message.create")
		return r.submit(ctx, e.MessageID, "create", func(ctx context.Context) error {
			ticket, err := r.lifecycle.Create(ctx, e)
			if apperrors.IsDuplicateSource(err) {
				r.logger.Info("source already has a ticket", zap.String("ticket_id", ticket.TicketID))
				return nil
			}
			return err
		})
	}

	if e.Subtype != "" || e.ThreadRootID == "" || e.ThreadRootID == e.MessageID {
		return finished(nil)
	}
	if !r.gate.IsAuthorized(ctx, e.AuthorID, auth.ActionClaim, nil) {
		r.metrics.RecordEvent("claim.unauthorized")
		return finished(nil)
	}
	r.metrics.RecordEvent("message.claim")
	return r.submit(ctx, e.ThreadRootID, "claim", func(ctx context.Context) error {
		ticket, err := r.tickets.GetByOriginal(e.Channel, e.ThreadRootID)
		if err != nil {
			return err
		}
		_, err = r.lifecycle.Claim(ctx, ticket.TicketID, e.AuthorID)
		return err
	})
}

func (r *Router) handleReaction(ctx context.Context, e events.ReactionAdded) <-chan error {
	if e.Emoji != service.ResolvedEmoji || e.Channel != r.cfg.HelpChannel || e.UserID == "" {
		return finished(nil)
	}
	r.metrics.RecordEvent("reaction.resolve")
	return r.submit(ctx, e.MessageID, "resolve_reaction", func(ctx context.Context) error {
		ticket, err := r.tickets.GetByOriginal(e.Channel, e.MessageID)
		if err != nil {
			return err
		}
		source := &auth.SourceRef{Channel: e.Channel, MessageID: e.MessageID}
		if !r.gate.IsAuthorized(ctx, e.UserID, auth.ActionResolve, source) {
			r.metrics.RecordEvent("reaction.unauthorized")
			return nil
		}
		_, err = r.lifecycle.Resolve(ctx, ticket.TicketID, e.UserID, service.ResolveOptions{FromReaction: true})
		return err
	})
}

func (r *Router) handleButton(ctx context.Context, e events.ButtonClicked) <-chan error {
	var action auth.Action
	switch e.ActionID {
	case blocks.ActionMarkResolved:
		action = auth.ActionResolve
	case blocks.ActionNotSure:
		action = auth.ActionMarkUncertain
	case blocks.ActionAssignUser:
		action = auth.ActionAssign
	default:
		r.metrics.RecordEvent("inbound.ignored")
		return finished(nil)
	}

	// buttons only live on queue messages; resolving from one is staff only
	if !r.gate.IsAuthorized(ctx, e.UserID, action, nil) {
		r.metrics.RecordEvent("button.unauthorized")
		return finished(nil)
	}
	ticket, err := r.tickets.Get(e.MessageID)
	if err != nil {
		r.logger.Debug("button on unknown ticket", zap.String("ticket_id", e.MessageID))
		return finished(nil)
	}
	r.metrics.RecordEvent("button." + e.ActionID)

	return r.submit(ctx, ticket.OriginalMessageID, e.ActionID, func(ctx context.Context) error {
		var err error
		switch e.ActionID {
		case blocks.ActionMarkResolved:
			_, err = r.lifecycle.Resolve(ctx, ticket.TicketID, e.UserID, service.ResolveOptions{})
		case blocks.ActionNotSure:
			_, err = r.lifecycle.MarkUncertain(ctx, ticket.TicketID, e.UserID)
		case blocks.ActionAssignUser:
			err = r.lifecycle.AssignTo(ctx, ticket.TicketID, e.UserID, e.SelectedUser)
		}
		return err
	})
}

func (r *Router) handleHome(ctx context.Context, e events.HomeOpened) <-chan error {
	if r.home == nil || e.UserID == "" {
		return finished(nil)
	}
	r.metrics.RecordEvent("home.opened")
	done := make(chan error, 1)
	go func() {
		err := r.home.Publish(ctx, e.UserID)
		if err != nil {
			r.logger.Warn("home publish failed", zap.String("user_id", e.UserID), zap.Error(err))
		}
		done <- err
	}()
	return done
}

// submit queues fn under the source message key. NOT_FOUND outcomes are
// benign and reported as nil.
func (r *Router) submit(ctx context.Context, sourceID, op string, fn serializer.Task) <-chan error {
	log := r.logger.With(zap.String("op", op), zap.String("original_ts", sourceID))
	result, err := r.serializer.SubmitWithin(ctx, SourceKey(sourceID), fn, r.enqueueIn)
	if err != nil {
		r.metrics.RecordEvent("op." + op + ".dropped")
		log.Error("event not accepted", zap.Error(err))
		return finished(err)
	}

	out := make(chan error, 1)
	go func() {
		err := <-result
		switch {
		case err == nil:
		case apperrors.IsNotFound(err):
			log.Debug("event for missing ticket ignored", zap.Error(err))
			err = nil
		default:
			r.metrics.RecordEvent("op." + op + ".failed")
			log.Error("event handling failed", zap.Error(err))
		}
		out <- err
	}()
	return out
}

func (r *Router) firstSeen(ctx context.Context, key string) bool {
	if r.dedup == nil || key == "" {
		return true
	}
	fresh, err := r.dedup.FirstSeen(ctx, key)
	if err != nil {
		r.logger.Warn("dedup check failed; handling event", zap.String("key", key), zap.Error(err))
		return true
	}
	return fresh
}

// SourceKey is the serializer key for everything touching the ticket of a
// source message.
func SourceKey(originalMessageID string) string {
	return "src:" + originalMessageID
}

func finished(err error) <-chan error {
	ch := make(chan error, 1)
	ch <- err
	return ch
}
