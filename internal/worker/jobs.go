package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
	"github.com/spec-kit/helpdesk-bot/internal/events"
	"github.com/spec-kit/helpdesk-bot/internal/leaderboard"
	"github.com/spec-kit/helpdesk-bot/internal/membership"
	"github.com/spec-kit/helpdesk-bot/internal/serializer"
	"github.com/spec-kit/helpdesk-bot/internal/service"
)

// MembershipRefreshJob reloads the staff roster into cache. A failed
// fetch keeps the previous roster.
func MembershipRefreshJob(cache *membership.Cache, fetcher membership.Fetcher, channelID string, interval, timeout time.Duration, logger *zap.Logger) Job {
	return Job{
		Name:       "membership_refresh",
		Interval:   interval,
		RunAtStart: true,
		Run: func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			n, err := cache.Refresh(callCtx, fetcher, channelID)
			if err != nil {
				return err
			}
			logger.Info("staff roster refreshed", zap.Int("members", n))
			return nil
		},
	}
}

// Saver writes a snapshot now.
type Saver interface {
	SaveNow(ctx context.Context) error
}

// SnapshotJob saves state periodically as a backup to event driven saves.
func SnapshotJob(saver Saver, interval time.Duration) Job {
	return Job{
		Name:     "snapshot",
		Interval: interval,
		Run:      saver.SaveNow,
	}
}

// Broadcaster posts the rolling leaderboard to the queue channel and
// resets it.
type Broadcaster struct {
	serializer  *serializer.Serializer
	leaderboard *leaderboard.Aggregator
	messenger   service.Messenger
	dispatcher  events.Dispatcher
	channelID   string
	timeout     time.Duration
	logger      *zap.Logger
}

// NewBroadcaster builds a broadcaster posting to channelID.
func NewBroadcaster(ser *serializer.Serializer, board *leaderboard.Aggregator, messenger service.Messenger, dispatcher events.Dispatcher, channelID string, timeout time.Duration, logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		serializer:  ser,
		leaderboard: board,
		messenger:   messenger,
		dispatcher:  dispatcher,
		channelID:   channelID,
		timeout:     timeout,
		logger:      logger.Named("broadcast"),
	}
}

// Broadcast takes the rolling ranking and resets it in one serialized
// step, then posts the ranking. A failed post does not undo the reset.
func (b *Broadcaster) Broadcast(ctx context.Context) error {
	var final []domain.LeaderboardEntry
	err := b.serializer.Global(ctx, func(ctx context.Context) error {
		final = b.leaderboard.ResetRollingDaily()
		return nil
	})
	if err != nil {
		return err
	}
	if b.dispatcher != nil {
		_ = b.dispatcher.Publish(ctx, events.NewEvent(events.EventLeaderboardReset, "", "", events.LeaderboardResetPayload{Entries: len(final)}))
	}

	callCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if _, err := b.messenger.PostMessage(callCtx, b.channelID, service.Message{Text: leaderboard.FormatBroadcast(final)}); err != nil {
		b.logger.Warn("leaderboard post failed", zap.Int("entries", len(final)), zap.Error(err))
		return err
	}
	b.logger.Info("leaderboard broadcast", zap.Int("entries", len(final)))
	return nil
}

// Job schedules the broadcast.
func (b *Broadcaster) Job(interval time.Duration) Job {
	return Job{
		Name:     "leaderboard_broadcast",
		Interval: interval,
		Run:      b.Broadcast,
	}
}
