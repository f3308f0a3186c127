package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-bot/internal/api/dto"
	"github.com/spec-kit/helpdesk-bot/internal/leaderboard"
	"github.com/spec-kit/helpdesk-bot/internal/observability"
	"github.com/spec-kit/helpdesk-bot/internal/registry"
	apperrors "github.com/spec-kit/helpdesk-bot/pkg/util/errorutil"
)

// Leaderboard windows accepted by the operator API.
const (
	WindowToday   = "today"
	WindowWeek    = "week"
	WindowAll     = "all"
	WindowRolling = "rolling"
)

// Saver forces a snapshot write.
type Saver interface {
	SaveNow(ctx context.Context) error
}

// AdminDependencies wires the operator endpoints.
type AdminDependencies struct {
	Registry    *registry.Registry
	Leaderboard *leaderboard.Aggregator
	Saver       Saver
	Metrics     *observability.Metrics
	Location    *time.Location
	Clock       func() time.Time
}

// AdminHandler exposes read-only bot state and a manual save to operators.
type AdminHandler struct {
	deps AdminDependencies
}

// NewAdminHandler constructs handler.
func NewAdminHandler(deps AdminDependencies) *AdminHandler {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	return &AdminHandler{deps: deps}
}

// ListTickets GET /admin/tickets.
func (h *AdminHandler) ListTickets(c *fiber.Ctx) error {
	status := c.Query("status")
	tickets := h.deps.Registry.List()
	resp := make([]dto.TicketResponse, 0, len(tickets))
	for _, t := range tickets {
		if status != "" && string(t.Status()) != status {
			continue
		}
		resp = append(resp, dto.ToTicketResponse(t))
	}
	return c.JSON(fiber.Map{"data": resp})
}

// Leaderboard GET /admin/leaderboard?window=.
func (h *AdminHandler) Leaderboard(c *fiber.Ctx) error {
	window := c.Query("window", WindowToday)
	now := h.deps.Clock().In(h.deps.Location)

	board := h.deps.Leaderboard
	switch window {
	case WindowToday:
		since := leaderboard.StartOfDay(now)
		return c.JSON(fiber.Map{"data": dto.ToLeaderboardResponse(window, board.Rank(&since))})
	case WindowWeek:
		since := leaderboard.SevenDaysAgo(now)
		return c.JSON(fiber.Map{"data": dto.ToLeaderboardResponse(window, board.Rank(&since))})
	case WindowAll:
		return c.JSON(fiber.Map{"data": dto.ToLeaderboardResponse(window, board.Rank(nil))})
	case WindowRolling:
		return c.JSON(fiber.Map{"data": dto.ToLeaderboardResponse(window, board.Rolling())})
	default:
		return apperrors.NewValidationError("unknown leaderboard window", map[string]any{"window": window})
	}
}

// Snapshot POST /admin/snapshot.
func (h *AdminHandler) Snapshot(c *fiber.Ctx) error {
	if err := h.deps.Saver.SaveNow(c.UserContext()); err != nil {
		return apperrors.NewCollaboratorFailure("snapshot save", err)
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"data": dto.SnapshotResponse{
		Tickets:     h.deps.Registry.Len(),
		Resolutions: h.deps.Leaderboard.Len(),
	}})
}

// Metrics GET /admin/metrics.
func (h *AdminHandler) Metrics(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"data": h.deps.Metrics.Snapshot()})
}
