package discord

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/olclarke/hermes/internal/player"
)

// ChannelNotifier posts playback status messages to the text channel a
// command originated from. Delivery is best effort; a failed send is
// logged and otherwise ignored.
type ChannelNotifier struct {
	session   *discordgo.Session
	channelID string
}

var _ player.Notifier = (*ChannelNotifier)(nil)

// NewChannelNotifier creates a notifier posting to channelID.
func NewChannelNotifier(session *discordgo.Session, channelID string) *ChannelNotifier {
	return &ChannelNotifier{session: session, channelID: channelID}
}

// Notify implements [player.Notifier].
func (n *ChannelNotifier) Notify(_ context.Context, msg string) {
	if _, err := n.session.ChannelMessageSend(n.channelID, msg); err != nil {
		slog.Warn("discord: status message send failed",
			"channel_id", n.channelID, "err", err)
	}
}
