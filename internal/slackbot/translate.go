package slackbot

import (
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"

	"github.com/spec-kit/helpdesk-bot/internal/events"
)

// FromEventsAPI converts an Events API callback into a router event.
// Unsupported events report false.
func FromEventsAPI(ev slackevents.EventsAPIEvent) (events.Inbound, bool) {
	if ev.Type != slackevents.CallbackEvent {
		return nil, false
	}
	var eventID string
	if cb, ok := ev.Data.(*slackevents.EventsAPICallbackEvent); ok && cb != nil {
		eventID = cb.EventID
	}

	switch inner := ev.InnerEvent.Data.(type) {
	case *slackevents.MessageEvent:
		return events.NewMessage{
			EventID:       eventID,
			Channel:       inner.Channel,
			MessageID:     inner.TimeStamp,
			AuthorID:      inner.User,
			Text:          inner.Text,
			Subtype:       inner.SubType,
			IsThreadReply: inner.ThreadTimeStamp != "" && inner.ThreadTimeStamp != inner.TimeStamp,
			ThreadRootID:  inner.ThreadTimeStamp,
			FromBot:       inner.BotID != "" || inner.SubType == "bot_message",
		}, true
	case *slackevents.ReactionAddedEvent:
		return events.ReactionAdded{
			EventID:   eventID,
			Emoji:     inner.Reaction,
			Channel:   inner.Item.Channel,
			MessageID: inner.Item.Timestamp,
			UserID:    inner.User,
		}, true
	case *slackevents.AppHomeOpenedEvent:
		if inner.Tab != "" && inner.Tab != "home" {
			return nil, false
		}
		return events.HomeOpened{EventID: eventID, UserID: inner.User}, true
	default:
		return nil, false
	}
}

// FromInteraction converts block actions on a message into router events.
func FromInteraction(cb slack.InteractionCallback) []events.Inbound {
	if cb.Type != slack.InteractionTypeBlockActions {
		return nil
	}
	messageID := cb.Message.Timestamp
	if messageID == "" {
		messageID = cb.Container.MessageTs
	}
	channelID := cb.Channel.ID
	if channelID == "" {
		channelID = cb.Container.ChannelID
	}

	out := make([]events.Inbound, 0, len(cb.ActionCallback.BlockActions))
	for _, action := range cb.ActionCallback.BlockActions {
		if action == nil {
			continue
		}
		out = append(out, events.ButtonClicked{
			ActionID:     action.ActionID,
			Channel:      channelID,
			MessageID:    messageID,
			UserID:       cb.User.ID,
			SelectedUser: action.SelectedUser,
			ActionTs:     action.ActionTs,
		})
	}
	return out
}
