package service

import (
	"context"

	"github.com/slack-go/slack"
)

// Message is an outbound chat message. ThreadTS posts it as a reply.
type Message struct {
	Text     string
	ThreadTS string
	Blocks   []slack.Block
}

// PostedMessage is a message read back from channel history.
type PostedMessage struct {
	Timestamp string
	UserID    string
	Text      string
}

// Messenger is the messaging platform as seen by the lifecycle services.
// Every call may fail; callers decide whether a failure matters.
type Messenger interface {
	PostMessage(ctx context.Context, channelID string, msg Message) (string, error)
	UpdateMessage(ctx context.Context, channelID, ts string, msg Message) error
	DeleteMessage(ctx context.Context, channelID, ts string) error
	AddReaction(ctx context.Context, channelID, ts, emoji string) error
	// MessageAt returns nil when the message no longer exists.
	MessageAt(ctx context.Context, channelID, ts string) (*PostedMessage, error)
	ChannelMembers(ctx context.Context, channelID string) ([]string, error)
	PublishHome(ctx context.Context, userID string, blocks []slack.Block) error
}
