package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/events"
	"github.com/spec-kit/helpdesk-bot/internal/leaderboard"
	"github.com/spec-kit/helpdesk-bot/internal/membership"
	"github.com/spec-kit/helpdesk-bot/internal/serializer"
	"github.com/spec-kit/helpdesk-bot/internal/service"
)

type postRecorder struct {
	mu    sync.Mutex
	posts []string
	err   error
}

func (p *postRecorder) PostMessage(ctx context.Context, channelID string, msg service.Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.posts = append(p.posts, channelID+":"+msg.Text)
	return "1.1", nil
}

func (p *postRecorder) UpdateMessage(ctx context.Context, channelID, ts string, msg service.Message) error {
	return nil
}
func (p *postRecorder) DeleteMessage(ctx context.Context, channelID, ts string) error { return nil }
func (p *postRecorder) AddReaction(ctx context.Context, channelID, ts, emoji string) error {
	return nil
}
func (p *postRecorder) MessageAt(ctx context.Context, channelID, ts string) (*service.PostedMessage, error) {
	return nil, nil
}
func (p *postRecorder) ChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	return nil, nil
}
func (p *postRecorder) PublishHome(ctx context.Context, userID string, blocks []slack.Block) error {
	return nil
}

func TestBroadcastResetsRollingButKeepsLog(t *testing.T) {
	ser := serializer.New(2, 4, nil)
	defer ser.Close()
	board := leaderboard.New()
	now := time.Now()
	board.Record("U1", now)
	board.Record("U2", now)
	board.Record("U1", now)
	messenger := &postRecorder{}
	dispatcher := events.NewInMemoryDispatcher(nil)
	var resets int
	dispatcher.Subscribe(events.EventLeaderboardReset, func(ctx context.Context, e events.Event) error {
		resets++
		return nil
	})

	b := NewBroadcaster(ser, board, messenger, dispatcher, "C_TICKETS", time.Second, nil)
	if err := b.Broadcast(context.Background()); err != nil {
		t.Fatalf("Broadcast returned error: %v", err)
	}
	if len(messenger.posts) != 1 {
		t.Fatalf("expected one post, got %v", messenger.posts)
	}
	post := messenger.posts[0]
	if !strings.HasPrefix(post, "C_TICKETS:Todays top 10 for ticket closes:\n1 - <@U1> resolved *2* today!\n2 - <@U2>") {
		t.Fatalf("unexpected broadcast %q", post)
	}
	if len(board.Rolling()) != 0 {
		t.Fatalf("rolling should be empty after broadcast")
	}
	if all := board.Rank(nil); len(all) != 2 || all[0].Count != 2 {
		t.Fatalf("log ranking must survive the reset, got %+v", all)
	}
	if resets != 1 {
		t.Fatalf("expected reset event")
	}
}

func TestBroadcastPostFailureStillResets(t *testing.T) {
	ser := serializer.New(1, 1, nil)
	defer ser.Close()
	board := leaderboard.New()
	board.Record("U1", time.Now())
	b := NewBroadcaster(ser, board, &postRecorder{err: errors.New("rate_limited")}, nil, "C", time.Second, nil)

	if err := b.Broadcast(context.Background()); err == nil {
		t.Fatalf("expected post error")
	}
	if len(board.Rolling()) != 0 {
		t.Fatalf("reset should stand after a failed post")
	}
}

type staticFetcher struct {
	ids []string
	err error
}

func (s staticFetcher) ChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	return s.ids, s.err
}

func TestMembershipRefreshJob(t *testing.T) {
	cache := membership.NewCache()
	job := MembershipRefreshJob(cache, staticFetcher{ids: []string{"U1", "U2"}}, "C", time.Hour, time.Second, zapNop())
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !cache.Contains("U2") {
		t.Fatalf("roster not loaded")
	}

	failing := MembershipRefreshJob(cache, staticFetcher{err: errors.New("timeout")}, "C", time.Hour, time.Second, zapNop())
	if err := failing.Run(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if !cache.Contains("U1") {
		t.Fatalf("failed refresh must keep the previous roster")
	}
}

func TestPoolRunsAtStartAndStops(t *testing.T) {
	var runs int32
	pool := NewPool(nil)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Go(ctx, Job{
		Name:       "count",
		Interval:   time.Hour,
		RunAtStart: true,
		Run: func(ctx context.Context) error {
			atomic.AddInt32(&runs, 1)
			return nil
		},
	})

	deadline := time.Now().Add(5 * time.Second)
	for atomic.LoadInt32(&runs) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	pool.Wait()
	if atomic.LoadInt32(&runs) != 1 {
		t.Fatalf("expected one run, got %d", runs)
	}
}

func zapNop() *zap.Logger { return zap.NewNop() }
