package service

import (
	"context"
	"testing"

	"github.com/spec-kit/helpdesk-bot/internal/events"
	"github.com/spec-kit/helpdesk-bot/internal/observability"
)

type countingTrigger struct{ n int }

func (c *countingTrigger) Trigger() { c.n++ }

func TestNotificationsTriggerSnapshotOnMutation(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(nil)
	trigger := &countingTrigger{}
	metrics := observability.NewMetrics()
	NewNotificationService(dispatcher, trigger, metrics, nil).RegisterHandlers()

	ctx := context.Background()
	_ = dispatcher.Publish(ctx, events.NewEvent(events.EventTicketClaimed, "T1", "U1", nil))
	_ = dispatcher.Publish(ctx, events.NewEvent(events.EventTicketResolved, "T1", "U1", nil))
	_ = dispatcher.Publish(ctx, events.NewEvent(events.EventTicketAssigned, "T1", "U1", nil))

	if trigger.n != 2 {
		t.Fatalf("expected 2 snapshot triggers, got %d", trigger.n)
	}
	if metrics.EventCount("domain.ticket_assigned") != 1 {
		t.Fatalf("assigned event not counted")
	}
}
