// Package commands implements the Hermes slash command handlers: music
// playback controls, quote management with narrated playback, and the
// guild's quote-user roster.
package commands

import (
	"errors"

	"github.com/bwmarrin/discordgo"

	"github.com/olclarke/hermes/internal/discord"
	"github.com/olclarke/hermes/internal/player"
)

var errNotInVoice = errors.New("you need to be in a voice channel for that")

// optionMap indexes interaction options by name. For subcommands, pass the
// subcommand's nested options.
func optionMap(opts []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(opts))
	for _, o := range opts {
		m[o.Name] = o
	}
	return m
}

// subOptions returns the options nested under the invoked subcommand, or the
// top-level options for commands without subcommands.
func subOptions(data discordgo.ApplicationCommandInteractionData) []*discordgo.ApplicationCommandInteractionDataOption {
	if len(data.Options) > 0 && data.Options[0].Type == discordgo.ApplicationCommandOptionSubCommand {
		return data.Options[0].Options
	}
	return data.Options
}

// requester returns the invoking user's display name.
func requester(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User.Username
	}
	return "unknown"
}

// origin resolves the invoking user's voice channel and builds the playback
// origin with a notifier bound to the command's text channel. It fails with
// errNotInVoice when the user is not in voice.
func origin(s *discordgo.Session, i *discordgo.InteractionCreate) (player.Origin, error) {
	if i.Member == nil || i.Member.User == nil {
		return player.Origin{}, errNotInVoice
	}
	vs, err := s.State.VoiceState(i.GuildID, i.Member.User.ID)
	if err != nil || vs == nil || vs.ChannelID == "" {
		return player.Origin{}, errNotInVoice
	}
	return player.Origin{
		VoiceChannelID: vs.ChannelID,
		Requester:      requester(i),
		Notify:         discord.NewChannelNotifier(s, i.ChannelID),
	}, nil
}
