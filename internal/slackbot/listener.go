package slackbot

import (
	"context"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/events"
)

// Handler accepts translated events.
type Handler interface {
	Handle(ctx context.Context, ev events.Inbound) <-chan error
}

// Listener receives events over Socket Mode.
type Listener struct {
	socket  *socketmode.Client
	handler Handler
	logger  *zap.Logger
}

// NewListener wraps api in a Socket Mode client. api must carry an app
// level token.
func NewListener(api *slack.Client, handler Handler, debug bool, logger *zap.Logger) *Listener {
	return &Listener{
		socket:  socketmode.New(api, socketmode.OptionDebug(debug)),
		handler: handler,
		logger:  logger.Named("socketmode"),
	}
}

// Run blocks until ctx is canceled or the connection fails for good.
func (l *Listener) Run(ctx context.Context) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-l.socket.Events:
				if !ok {
					return
				}
				l.handleEvent(ctx, evt)
			}
		}
	}()
	return l.socket.RunContext(ctx)
}

func (l *Listener) handleEvent(ctx context.Context, evt socketmode.Event) {
	switch evt.Type {
	case socketmode.EventTypeConnecting:
		l.logger.Info("connecting to socket mode")

	case socketmode.EventTypeConnected:
		l.logger.Info("connected to socket mode")

	case socketmode.EventTypeConnectionError:
		l.logger.Warn("socket mode connection error", zap.Any("data", evt.Data))

	case socketmode.EventTypeEventsAPI:
		apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
		if !ok {
			return
		}
		if evt.Request != nil {
			l.socket.Ack(*evt.Request)
		}
		if inbound, ok := FromEventsAPI(apiEvent); ok {
			l.handler.Handle(ctx, inbound)
		}

	case socketmode.EventTypeInteractive:
		callback, ok := evt.Data.(slack.InteractionCallback)
		if !ok {
			return
		}
		if evt.Request != nil {
			l.socket.Ack(*evt.Request)
		}
		for _, inbound := range FromInteraction(callback) {
			l.handler.Handle(ctx, inbound)
		}
	}
}
