package events

import (
	"context"
	"errors"
	"testing"
)

func TestDispatcherContinuesAfterHandlerError(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	var calls []string
	d.Subscribe(EventTicketClaimed, func(ctx context.Context, e Event) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	d.Subscribe(EventTicketClaimed, func(ctx context.Context, e Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventTicketResolved, func(ctx context.Context, e Event) error {
		calls = append(calls, "other")
		return nil
	})

	if err := d.Publish(context.Background(), NewEvent(EventTicketClaimed, "T1", "U1", nil)); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("unexpected handler calls: %v", calls)
	}
}

func TestDispatcherRecoversHandlerPanic(t *testing.T) {
	d := NewInMemoryDispatcher(nil)
	reached := false
	d.Subscribe(EventTicketResolved, func(ctx context.Context, e Event) error {
		panic("boom")
	})
	d.Subscribe(EventTicketResolved, func(ctx context.Context, e Event) error {
		reached = true
		return nil
	})

	if err := d.Publish(context.Background(), NewEvent(EventTicketResolved, "T1", "U1", nil)); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if !reached {
		t.Fatalf("handler after a panicking one should still run")
	}
}

func TestNewEventStampsIdentity(t *testing.T) {
	a := NewEvent(EventTicketCreated, "T1", "U1", nil)
	b := NewEvent(EventTicketCreated, "T1", "U1", nil)
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct ids, got %q and %q", a.ID, b.ID)
	}
	if a.Timestamp.IsZero() {
		t.Fatalf("expected timestamp")
	}
}

func TestDedupKeys(t *testing.T) {
	withID := NewMessage{EventID: "Ev1", Channel: "C1", MessageID: "1.1"}
	if withID.DedupKey() != "Ev1" {
		t.Fatalf("event id should be the key, got %q", withID.DedupKey())
	}
	derived := ReactionAdded{Channel: "C1", MessageID: "1.1", Emoji: "white_check_mark", UserID: "U1"}
	other := derived
	other.UserID = "U2"
	if derived.DedupKey() == other.DedupKey() {
		t.Fatalf("different users must not share a key")
	}
	click := ButtonClicked{ActionID: "not_sure", MessageID: "2.2", ActionTs: "3.3", UserID: "U1"}
	if click.DedupKey() != "action:not_sure:2.2:3.3:U1" {
		t.Fatalf("unexpected click key %q", click.DedupKey())
	}
}
