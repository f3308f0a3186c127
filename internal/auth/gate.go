package auth

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Action names a lifecycle action that needs authorization.
type Action string

const (
	ActionClaim         Action = "claim"
	ActionMarkUncertain Action = "mark_uncertain"
	ActionAssign        Action = "assign"
	ActionResolve       Action = "resolve"
)

// MemberChecker answers staff membership from the cached roster.
type MemberChecker interface {
	Contains(userID string) bool
}

// AuthorLookup finds the author of a source message.
type AuthorLookup interface {
	MessageAuthor(ctx context.Context, channelID, messageID string) (string, error)
}

// SourceRef identifies the source message an action refers to.
type SourceRef struct {
	Channel   string
	MessageID string
}

// Gate decides whether a user may perform a lifecycle action. Staff
// channel members may do everything; the source author may also resolve.
type Gate struct {
	members     MemberChecker
	authors     AuthorLookup
	callTimeout time.Duration
	logger      *zap.Logger
}

// NewGate builds a gate. authors may be nil, in which case resolve is
// membership-only. Each author lookup is bounded by callTimeout.
func NewGate(members MemberChecker, authors AuthorLookup, callTimeout time.Duration, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &Gate{members: members, authors: authors, callTimeout: callTimeout, logger: logger}
}

// IsMember reports cached staff membership without any lookup.
func (g *Gate) IsMember(userID string) bool {
	return g.members.Contains(userID)
}

// IsAuthorized applies the policy. Denials are logged at info and are
// never reported to the acting user.
func (g *Gate) IsAuthorized(ctx context.Context, userID string, action Action, source *SourceRef) bool {
	if userID == "" {
		return false
	}
	if g.members.Contains(userID) {
		return true
	}
	if action == ActionResolve && source != nil && g.isAuthor(ctx, userID, *source) {
		return true
	}
	g.logger.Info("unauthorized action dropped",
		zap.String("user_id", userID),
		zap.String("action", string(action)))
	return false
}

func (g *Gate) isAuthor(ctx context.Context, userID string, source SourceRef) bool {
	if g.authors == nil {
		return false
	}
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()
	author, err := g.authors.MessageAuthor(callCtx, source.Channel, source.MessageID)
	if err != nil {
		g.logger.Warn("author lookup failed; falling back to membership",
			zap.String("channel", source.Channel),
			zap.String("message_ts", source.MessageID),
			zap.Error(err))
		return false
	}
	return author != "" && author == userID
}
