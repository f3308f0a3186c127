// Package blocks builds the Block Kit payloads the bot posts: the queue
// message for a ticket and the app home views.
package blocks

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"github.com/spec-kit/helpdesk-bot/internal/domain"
)

// Action ids carried by the queue message elements.
const (
	ActionMarkResolved = "mark_resolved"
	ActionNotSure      = "not_sure"
	ActionAssignUser   = "assign_user"
)

// Links builds human-facing permalinks for a workspace.
type Links struct {
	WorkspaceDomain string
}

// Permalink returns the archive link for a message. The domain may be a
// bare workspace name or a full host.
func (l Links) Permalink(channelID, ts string) string {
	host := l.WorkspaceDomain
	if host == "" {
		host = "yourworkspace"
	}
	if !strings.Contains(host, ".") {
		host += ".slack.com"
	}
	return fmt.Sprintf("https://%s/archives/%s/p%s", host, channelID, strings.Replace(ts, ".", "", 1))
}

// Ticket renders the queue message: header, action row and a link back to
// the source thread.
func Ticket(links Links, ticket domain.Ticket) []slack.Block {
	resolve := slack.NewButtonBlockElement(ActionMarkResolved, "claim_button",
		slack.NewTextBlockObject(slack.PlainTextType, "Mark Resolved", true, false)).
		WithStyle(slack.StylePrimary)
	notSure := slack.NewButtonBlockElement(ActionNotSure, "not_sure_button",
		slack.NewTextBlockObject(slack.PlainTextType, "Seen, Not Sure", true, false)).
		WithStyle(slack.StyleDanger)
	assign := slack.NewOptionsSelectBlockElement(slack.OptTypeUser,
		slack.NewTextBlockObject(slack.PlainTextType, "Assign (will DM assignee)", true, false),
		ActionAssignUser)

	link := fmt.Sprintf("<%s|View Thread>", links.Permalink(ticket.OriginalChannel, ticket.OriginalMessageID))
	return []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, "*"+ticket.HeaderText()+"*", false, false),
			nil, nil,
		),
		slack.NewActionBlock("", resolve, notSure, assign),
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, link, false, false),
			nil, nil,
		),
	}
}

// TicketFallbackText is the notification text for queue messages.
const TicketFallbackText = "Open to view message"

// HomeData is what the staff home view shows.
type HomeData struct {
	Today     []domain.LeaderboardEntry
	Week      []domain.LeaderboardEntry
	AllTime   []domain.LeaderboardEntry
	Unclaimed []domain.Ticket
}

const (
	homeTitle        = "Helpdesk"
	homeTopCount     = 5
	homeUnclaimedMax = 10
)

// RestrictedHome is shown to users outside the staff roster.
func RestrictedHome() []slack.Block {
	return []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, homeTitle, true, false)),
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType,
				"there's no tickets here, because you aren't a helper! no stress!", false, false),
			nil, nil,
		),
	}
}

// StaffHome renders leaders, the all-time top five and unclaimed tickets.
func StaffHome(links Links, data HomeData) []slack.Block {
	out := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, homeTitle, true, false)),
		markdownSection("welcome back, here's what's happening"),
		slack.NewDividerBlock(),
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "leaderboard", true, false)),
		markdownSection("*most solved tickets today:*\n" + formatLeader(data.Today, ":dart:")),
		markdownSection("*most solved tickets in past 7d:*\n" + formatLeader(data.Week, ":fire:")),
		markdownSection("*most solved tickets (all time):*\n" + formatLeader(data.AllTime, ":crown:")),
		slack.NewDividerBlock(),
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType, "top 5 of all time", true, false)),
		markdownSection(formatTop(data.AllTime, homeTopCount)),
		slack.NewDividerBlock(),
		slack.NewHeaderBlock(slack.NewTextBlockObject(slack.PlainTextType,
			fmt.Sprintf("unclaimed tickets: (%d)", len(data.Unclaimed)), true, false)),
	}

	if len(data.Unclaimed) == 0 {
		return append(out, markdownSection("all tickets are claimed! yay :3"))
	}

	lines := make([]string, 0, homeUnclaimedMax)
	for i, ticket := range data.Unclaimed {
		if i == homeUnclaimedMax {
			break
		}
		lines = append(lines, fmt.Sprintf("• <%s|poke at ticket>",
			links.Permalink(ticket.OriginalChannel, ticket.OriginalMessageID)))
	}
	text := strings.Join(lines, "\n")
	if extra := len(data.Unclaimed) - homeUnclaimedMax; extra > 0 {
		text += fmt.Sprintf("\n_...and %d more_", extra)
	}
	return append(out, markdownSection(text))
}

func markdownSection(text string) *slack.SectionBlock {
	return slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, text, false, false), nil, nil)
}

func formatLeader(entries []domain.LeaderboardEntry, emoji string) string {
	if len(entries) == 0 {
		return "_No one yet!_"
	}
	top := entries[0]
	plural := "s"
	if top.Count == 1 {
		plural = ""
	}
	return fmt.Sprintf("%s <@%s> with *%d* ticket%s", emoji, top.UserID, top.Count, plural)
}

func formatTop(entries []domain.LeaderboardEntry, n int) string {
	if len(entries) == 0 {
		return "_No resolutions yet_"
	}
	if len(entries) > n {
		entries = entries[:n]
	}
	lines := make([]string, 0, len(entries))
	for i, entry := range entries {
		lines = append(lines, fmt.Sprintf("%d. <@%s> - %d", i+1, entry.UserID, entry.Count))
	}
	return strings.Join(lines, "\n")
}
