package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/slack-go/slack"

	"github.com/spec-kit/helpdesk-bot/internal/leaderboard"
	"github.com/spec-kit/helpdesk-bot/internal/registry"
)

func newHomeFixture() (*HomeService, *fakeMessenger, *registry.Registry, *leaderboard.Aggregator) {
	messenger := newFakeMessenger()
	reg := registry.New()
	board := leaderboard.New()
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	home := NewHomeService(HomeDependencies{
		Registry:      reg,
		Leaderboard:   board,
		Messenger:     messenger,
		RosterChannel: "C_STAFF",
		Clock:         func() time.Time { return now },
	})
	return home, messenger, reg, board
}

func blockTexts(view []slack.Block) string {
	var b strings.Builder
	for _, block := range view {
		switch v := block.(type) {
		case *slack.SectionBlock:
			b.WriteString(v.Text.Text)
		case *slack.HeaderBlock:
			b.WriteString(v.Text.Text)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func TestHomeStaffView(t *testing.T) {
	home, messenger, reg, board := newHomeFixture()
	messenger.members["C_STAFF"] = []string{"U1"}
	if _, err := reg.Create("C1", "1.1", "2.2"); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	board.Record("U1", time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	board.Record("U2", time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))

	if err := home.Publish(context.Background(), "U1"); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	text := blockTexts(messenger.homes["U1"])
	if !strings.Contains(text, "unclaimed tickets: (1)") {
		t.Fatalf("missing unclaimed count in %q", text)
	}
	if !strings.Contains(text, "most solved tickets today:*\n:dart: <@U1> with *1* ticket") {
		t.Fatalf("missing today leader in %q", text)
	}

	data := home.Data()
	if len(data.Today) != 1 || len(data.AllTime) != 2 {
		t.Fatalf("unexpected windows today=%v all=%v", data.Today, data.AllTime)
	}
}

func TestHomeRestrictedView(t *testing.T) {
	home, messenger, _, _ := newHomeFixture()
	messenger.members["C_STAFF"] = []string{"U1"}
	if err := home.Publish(context.Background(), "U5"); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if !strings.Contains(blockTexts(messenger.homes["U5"]), "aren't a helper") {
		t.Fatalf("non-staff should see the restricted view")
	}

	messenger.membersErr = errors.New("timeout")
	if err := home.Publish(context.Background(), "U1"); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	if !strings.Contains(blockTexts(messenger.homes["U1"]), "aren't a helper") {
		t.Fatalf("roster failure should fall back to the restricted view")
	}
}
