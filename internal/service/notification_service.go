package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/events"
	"github.com/spec-kit/helpdesk-bot/internal/observability"
)

// SnapshotTrigger schedules an asynchronous save of all state.
type SnapshotTrigger interface {
	Trigger()
}

// NotificationService reacts to domain events: it logs them, counts them
// and requests a snapshot whenever persisted state changed.
type NotificationService struct {
	dispatcher events.Dispatcher
	trigger    SnapshotTrigger
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, trigger SnapshotTrigger, metrics *observability.Metrics, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		trigger:    trigger,
		metrics:    metrics,
		logger:     logger.Named("notifications"),
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	for _, eventType := range events.MutatingEvents {
		n.dispatcher.Subscribe(eventType, n.handleStateChanged)
	}
	n.dispatcher.Subscribe(events.EventTicketAssigned, n.handleTicketAssigned)
}

func (n *NotificationService) handleStateChanged(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("ticket_id", event.TicketID),
		zap.String("actor_id", event.ActorID),
		zap.Any("payload", event.Payload))
	n.metrics.RecordEvent("domain." + string(event.Type))
	if n.trigger != nil {
		n.trigger.Trigger()
	}
	return nil
}

func (n *NotificationService) handleTicketAssigned(ctx context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.String("event_id", event.ID),
		zap.String("ticket_id", event.TicketID),
		zap.String("actor_id", event.ActorID),
		zap.Any("payload", event.Payload))
	n.metrics.RecordEvent("domain." + string(event.Type))
	return nil
}
