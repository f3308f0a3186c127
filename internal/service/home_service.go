package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/blocks"
	"github.com/spec-kit/helpdesk-bot/internal/leaderboard"
	"github.com/spec-kit/helpdesk-bot/internal/registry"
)

// HomeService publishes the app home tab.
type HomeService struct {
	tickets       *registry.Registry
	leaderboard   *leaderboard.Aggregator
	messenger     Messenger
	rosterChannel string
	links         blocks.Links
	callTimeout   time.Duration
	location      *time.Location
	now           func() time.Time
	logger        *zap.Logger
}

// HomeDependencies bundles collaborators for the home service.
type HomeDependencies struct {
	Registry      *registry.Registry
	Leaderboard   *leaderboard.Aggregator
	Messenger     Messenger
	RosterChannel string
	Links         blocks.Links
	CallTimeout   time.Duration
	Location      *time.Location
	Clock         func() time.Time
	Logger        *zap.Logger
}

// NewHomeService constructs the service.
func NewHomeService(deps HomeDependencies) *HomeService {
	h := &HomeService{
		tickets:       deps.Registry,
		leaderboard:   deps.Leaderboard,
		messenger:     deps.Messenger,
		rosterChannel: deps.RosterChannel,
		links:         deps.Links,
		callTimeout:   deps.CallTimeout,
		location:      deps.Location,
		now:           deps.Clock,
		logger:        deps.Logger,
	}
	if h.callTimeout <= 0 {
		h.callTimeout = 10 * time.Second
	}
	if h.location == nil {
		h.location = time.UTC
	}
	if h.now == nil {
		h.now = time.Now
	}
	if h.logger == nil {
		h.logger = zap.NewNop()
	}
	return h
}

// Publish renders the home tab for userID. Roster membership is fetched
// live; when that fails the restricted view is shown.
func (h *HomeService) Publish(ctx context.Context, userID string) error {
	view := blocks.RestrictedHome()
	if h.isStaff(ctx, userID) {
		view = blocks.StaffHome(h.links, h.Data())
	}

	callCtx, cancel := context.WithTimeout(ctx, h.callTimeout)
	defer cancel()
	return h.messenger.PublishHome(callCtx, userID, view)
}

// Data gathers leaderboards and unclaimed tickets for the staff view.
func (h *HomeService) Data() blocks.HomeData {
	now := h.now().In(h.location)
	today := leaderboard.StartOfDay(now)
	week := leaderboard.SevenDaysAgo(now)
	return blocks.HomeData{
		Today:     h.leaderboard.Rank(&today),
		Week:      h.leaderboard.Rank(&week),
		AllTime:   h.leaderboard.Rank(nil),
		Unclaimed: h.tickets.Unclaimed(),
	}
}

func (h *HomeService) isStaff(ctx context.Context, userID string) bool {
	callCtx, cancel := context.WithTimeout(ctx, h.callTimeout)
	defer cancel()
	members, err := h.messenger.ChannelMembers(callCtx, h.rosterChannel)
	if err != nil {
		h.logger.Warn("staff roster check failed", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	for _, id := range members {
		if id == userID {
			return true
		}
	}
	return false
}
