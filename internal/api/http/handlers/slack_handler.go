package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/events"
	"github.com/spec-kit/helpdesk-bot/internal/slackbot"
	apperrors "github.com/spec-kit/helpdesk-bot/pkg/util/errorutil"
)

// EventHandler accepts translated platform events.
type EventHandler interface {
	Handle(ctx context.Context, ev events.Inbound) <-chan error
}

// SlackHandler is the Events API and interactivity intake over HTTP.
// Requests are verified with the signing secret and acknowledged as soon
// as the router has accepted them.
type SlackHandler struct {
	signingSecret string
	router        EventHandler
	logger        *zap.Logger
}

// NewSlackHandler constructs handler.
func NewSlackHandler(signingSecret string, router EventHandler, logger *zap.Logger) *SlackHandler {
	return &SlackHandler{signingSecret: signingSecret, router: router, logger: logger.Named("slack_http")}
}

// Events POST /slack/events.
func (h *SlackHandler) Events(c *fiber.Ctx) error {
	body := c.Body()
	if err := h.verify(c, body); err != nil {
		return err
	}

	ev, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		return apperrors.NewValidationError("invalid event payload", nil)
	}

	if ev.Type == slackevents.URLVerification {
		var challenge slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			return apperrors.NewValidationError("invalid challenge", nil)
		}
		c.Set(fiber.HeaderContentType, fiber.MIMETextPlain)
		return c.SendString(challenge.Challenge)
	}

	if inbound, ok := slackbot.FromEventsAPI(ev); ok {
		h.router.Handle(c.UserContext(), inbound)
	}
	return c.SendStatus(fiber.StatusOK)
}

// Interactions POST /slack/interactions.
func (h *SlackHandler) Interactions(c *fiber.Ctx) error {
	if err := h.verify(c, c.Body()); err != nil {
		return err
	}

	var callback slack.InteractionCallback
	if err := json.Unmarshal([]byte(c.FormValue("payload")), &callback); err != nil {
		return apperrors.NewValidationError("invalid interaction payload", nil)
	}
	for _, inbound := range slackbot.FromInteraction(callback) {
		h.router.Handle(c.UserContext(), inbound)
	}
	return c.SendStatus(fiber.StatusOK)
}

func (h *SlackHandler) verify(c *fiber.Ctx, body []byte) error {
	header := http.Header{}
	header.Set("X-Slack-Signature", c.Get("X-Slack-Signature"))
	header.Set("X-Slack-Request-Timestamp", c.Get("X-Slack-Request-Timestamp"))

	verifier, err := slack.NewSecretsVerifier(header, h.signingSecret)
	if err != nil {
		return apperrors.NewUnauthorized("missing or stale signature")
	}
	if _, err := verifier.Write(body); err != nil {
		return apperrors.NewInternalError(err)
	}
	if err := verifier.Ensure(); err != nil {
		h.logger.Info("rejected unsigned slack request", zap.Error(err))
		return apperrors.NewUnauthorized("invalid signature")
	}
	return nil
}
