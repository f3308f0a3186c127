package events

// Inbound platform events consumed by the router. The Slack adapters
// translate socket mode envelopes and HTTP callbacks into these.

// Inbound is implemented by every platform event the router accepts.
type Inbound interface {
	// DedupKey identifies the delivery so redeliveries can be dropped.
	DedupKey() string
}

// NewMessage is a message posted in a channel the bot can see.
type NewMessage struct {
	EventID       string
	Channel       string
	MessageID     string
	AuthorID      string
	Text          string
	Subtype       string
	IsThreadReply bool
	ThreadRootID  string
	// FromBot is set for messages posted by an app, this bot included.
	FromBot bool
}

func (e NewMessage) DedupKey() string {
	if e.EventID != "" {
		return e.EventID
	}
	return "message:" + e.Channel + ":" + e.MessageID
}

// ReactionAdded is an emoji reaction added to a message.
type ReactionAdded struct {
	EventID   string
	Emoji     string
	Channel   string
	MessageID string
	UserID    string
}

func (e ReactionAdded) DedupKey() string {
	if e.EventID != "" {
		return e.EventID
	}
	return "reaction:" + e.Channel + ":" + e.MessageID + ":" + e.Emoji + ":" + e.UserID
}

// ButtonClicked is an interactive action on a queue message.
type ButtonClicked struct {
	ActionID     string
	Channel      string
	MessageID    string
	UserID       string
	SelectedUser string
	ActionTs     string
}

func (e ButtonClicked) DedupKey() string {
	return "action:" + e.ActionID + ":" + e.MessageID + ":" + e.ActionTs + ":" + e.UserID
}

// HomeOpened fires when a user opens the app home tab.
type HomeOpened struct {
	EventID string
	UserID  string
}

func (e HomeOpened) DedupKey() string {
	if e.EventID != "" {
		return e.EventID
	}
	return "home:" + e.UserID
}
