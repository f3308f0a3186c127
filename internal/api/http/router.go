package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/helpdesk-bot/internal/api/http/handlers"
	"github.com/spec-kit/helpdesk-bot/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Slack          *handlers.SlackHandler
	Admin          *handlers.AdminHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes. The Slack intake routes are only
// registered when a handler is configured.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	if cfg.Slack != nil {
		slackGroup := app.Group("/slack")
		slackGroup.Post("/events", cfg.Slack.Events)
		slackGroup.Post("/interactions", cfg.Slack.Interactions)
	}

	admin := app.Group("/admin", cfg.AuthMiddleware.Handle, auth.RequireOperator())
	admin.Get("/tickets", cfg.Admin.ListTickets)
	admin.Get("/leaderboard", cfg.Admin.Leaderboard)
	admin.Post("/snapshot", cfg.Admin.Snapshot)
	admin.Get("/metrics", cfg.Admin.Metrics)
}
