// Package notify delivers staff notifications for filed lost-item reports.
// Discord is the only sink: a message is posted to a configured ops channel
// so the lost-and-found desk sees new reports as they arrive.
package notify

import (
	"fmt"

	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/mquintal/lostline/pkg/lostline/bot"
)

// Discord posts filed-report alerts to a Discord channel. It implements
// bot.Notifier. Delivery errors are logged, never surfaced to the intake
// conversation.
type Discord struct {
	session   *discordgo.Session
	channelID string
	logger    *slog.Logger
}

// NewDiscord opens a Discord session with the given bot token.
func NewDiscord(token, channelID string, logger *slog.Logger) (*Discord, error) {
	if logger == nil {
		logger = slog.Default()
	}

	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	// Outbound-only: no gateway intents needed beyond the default.
	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("opening discord session: %w", err)
	}

	return &Discord{
		session:   session,
		channelID: channelID,
		logger:    logger.With("component", "notify.discord"),
	}, nil
}

// ReportFiled posts the new report to the ops channel. Runs in its own
// goroutine so the webhook reply is never blocked on Discord.
func (d *Discord) ReportFiled(identity string, report *bot.LostItemReport) {
	go func() {
		embed := &discordgo.MessageEmbed{
			Title: "New lost-item report " + report.ReferenceNumber,
			Color: 0xE67E22,
			Fields: []*discordgo.MessageEmbedField{
				{Name: "Description", Value: orDash(report.Description)},
				{Name: "Reporter", Value: orDash(report.Name), Inline: true},
				{Name: "Phone", Value: orDash(report.Phone), Inline: true},
				{Name: "Location", Value: orDash(report.Location), Inline: true},
				{Name: "Time lost", Value: orDash(report.TimeLost), Inline: true},
				{Name: "Images", Value: fmt.Sprintf("%d", len(report.Images)), Inline: true},
			},
			Footer: &discordgo.MessageEmbedFooter{Text: "session " + identity},
		}
		if _, err := d.session.ChannelMessageSendEmbed(d.channelID, embed); err != nil {
			d.logger.Error("failed to post report notification",
				"reference", report.ReferenceNumber, "error", err)
		}
	}()
}

// Close shuts down the Discord session.
func (d *Discord) Close() error {
	return d.session.Close()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
