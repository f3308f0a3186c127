// Package slackbot adapts slack-go to the bot: outbound calls for the
// lifecycle services and Socket Mode intake for the router.
package slackbot

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-bot/internal/config"
	"github.com/spec-kit/helpdesk-bot/internal/service"
)

const membersPageSize = 200

// Client implements service.Messenger, membership.Fetcher and
// auth.AuthorLookup over the Slack Web API. Callers bound each call with
// a context deadline.
type Client struct {
	api    *slack.Client
	logger *zap.Logger
}

// NewClient builds a Web API client from the bot (and optional app) token.
func NewClient(cfg config.SlackConfig, debug bool, logger *zap.Logger) *Client {
	opts := []slack.Option{slack.OptionDebug(debug)}
	if cfg.AppToken != "" {
		opts = append(opts, slack.OptionAppLevelToken(cfg.AppToken))
	}
	return &Client{api: slack.New(cfg.BotToken, opts...), logger: logger.Named("slack")}
}

// API exposes the underlying client for Socket Mode.
func (c *Client) API() *slack.Client {
	return c.api
}

func (c *Client) PostMessage(ctx context.Context, channelID string, msg service.Message) (string, error) {
	_, ts, err := c.api.PostMessageContext(ctx, channelID, msgOptions(msg)...)
	if err != nil {
		return "", fmt.Errorf("chat.postMessage %s: %w", channelID, err)
	}
	return ts, nil
}

func (c *Client) UpdateMessage(ctx context.Context, channelID, ts string, msg service.Message) error {
	if _, _, _, err := c.api.UpdateMessageContext(ctx, channelID, ts, msgOptions(msg)...); err != nil {
		return fmt.Errorf("chat.update %s/%s: %w", channelID, ts, err)
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, ts string) error {
	if _, _, err := c.api.DeleteMessageContext(ctx, channelID, ts); err != nil {
		return fmt.Errorf("chat.delete %s/%s: %w", channelID, ts, err)
	}
	return nil
}

func (c *Client) AddReaction(ctx context.Context, channelID, ts, emoji string) error {
	if err := c.api.AddReactionContext(ctx, emoji, slack.NewRefToMessage(channelID, ts)); err != nil {
		return fmt.Errorf("reactions.add %s/%s: %w", channelID, ts, err)
	}
	return nil
}

// MessageAt reads one message from channel history. A nil message means
// the message is gone.
func (c *Client) MessageAt(ctx context.Context, channelID, ts string) (*service.PostedMessage, error) {
	resp, err := c.api.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Latest:    ts,
		Inclusive: true,
		Limit:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("conversations.history %s/%s: %w", channelID, ts, err)
	}
	if len(resp.Messages) == 0 || resp.Messages[0].Timestamp != ts {
		return nil, nil
	}
	msg := resp.Messages[0]
	return &service.PostedMessage{Timestamp: msg.Timestamp, UserID: msg.User, Text: msg.Text}, nil
}

// MessageAuthor returns the author of a message, or "" when it is gone.
func (c *Client) MessageAuthor(ctx context.Context, channelID, ts string) (string, error) {
	msg, err := c.MessageAt(ctx, channelID, ts)
	if err != nil || msg == nil {
		return "", err
	}
	return msg.UserID, nil
}

// ChannelMembers pages through the full member list.
func (c *Client) ChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	var (
		members []string
		cursor  string
	)
	for {
		page, next, err := c.api.GetUsersInConversationContext(ctx, &slack.GetUsersInConversationParameters{
			ChannelID: channelID,
			Cursor:    cursor,
			Limit:     membersPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("conversations.members %s: %w", channelID, err)
		}
		members = append(members, page...)
		if next == "" {
			return members, nil
		}
		cursor = next
	}
}

func (c *Client) PublishHome(ctx context.Context, userID string, blocks []slack.Block) error {
	view := slack.HomeTabViewRequest{
		Type:   slack.VTHomeTab,
		Blocks: slack.Blocks{BlockSet: blocks},
	}
	if _, err := c.api.PublishViewContext(ctx, userID, view, ""); err != nil {
		return fmt.Errorf("views.publish %s: %w", userID, err)
	}
	return nil
}

func msgOptions(msg service.Message) []slack.MsgOption {
	opts := []slack.MsgOption{slack.MsgOptionText(msg.Text, false)}
	if len(msg.Blocks) > 0 {
		opts = append(opts, slack.MsgOptionBlocks(msg.Blocks...))
	}
	if msg.ThreadTS != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ThreadTS))
	}
	return opts
}
