package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/olclarke/hermes/internal/discord"
	"github.com/olclarke/hermes/internal/player"
	"github.com/olclarke/hermes/internal/store"
)

// queueDisplayLimit caps how many upcoming items /queue shows.
const queueDisplayLimit = 10

// PlaybackCommands handles the music playback slash commands.
type PlaybackCommands struct {
	registry *player.Registry
	settings store.SettingsStore
}

// NewPlaybackCommands creates a PlaybackCommands handler.
func NewPlaybackCommands(registry *player.Registry, settings store.SettingsStore) *PlaybackCommands {
	return &PlaybackCommands{registry: registry, settings: settings}
}

// Register registers all playback commands with the router.
func (pc *PlaybackCommands) Register(router *discord.CommandRouter) {
	router.RegisterCommand("play", &discordgo.ApplicationCommand{
		Name:        "play",
		Description: "Queue a song or playlist from a URL or search terms",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "query",
				Description: "URL, playlist URL, or search terms",
				Type:        discordgo.ApplicationCommandOptionString,
				Required:    true,
			},
			{
				Name:        "next",
				Description: "Play ahead of everything already queued",
				Type:        discordgo.ApplicationCommandOptionBoolean,
			},
		},
	}, pc.handlePlay)

	simple := []struct {
		name, desc string
		handler    discord.HandlerFunc
	}{
		{"pause", "Pause the current song", pc.handlePause},
		{"resume", "Resume a paused song", pc.handleResume},
		{"skip", "Skip the current song", pc.handleSkip},
		{"shuffle", "Shuffle the queued songs", pc.handleShuffle},
		{"clear", "Drop everything from the queue", pc.handleClear},
		{"queue", "Show the upcoming songs", pc.handleQueue},
		{"nowplaying", "Show what is playing right now", pc.handleNowPlaying},
		{"disconnect", "Disconnect the bot from voice", pc.handleDisconnect},
	}
	for _, c := range simple {
		router.RegisterCommand(c.name, &discordgo.ApplicationCommand{
			Name:        c.name,
			Description: c.desc,
		}, c.handler)
	}

	router.RegisterCommand("volume", &discordgo.ApplicationCommand{
		Name:        "volume",
		Description: "Set playback volume",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Name:        "music",
				Description: "Set the music volume",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options:     []*discordgo.ApplicationCommandOption{volumeValueOption()},
			},
			{
				Name:        "quote",
				Description: "Set the quote narration volume",
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Options:     []*discordgo.ApplicationCommandOption{volumeValueOption()},
			},
		},
	}, func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		discord.RespondEphemeral(s, i, "Please use a subcommand: `/volume music` or `/volume quote`.")
	})
	router.RegisterHandler("volume/music", pc.handleVolumeMusic)
	router.RegisterHandler("volume/quote", pc.handleVolumeQuote)
}

func volumeValueOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Name:        "value",
		Description: "Volume between 0.0 and 1.0",
		Type:        discordgo.ApplicationCommandOptionNumber,
		Required:    true,
		MinValue:    ptr(0.0),
		MaxValue:    1.0,
	}
}

func ptr[T any](v T) *T { return &v }

func (pc *PlaybackCommands) handlePlay(s *discordgo.Session, i *discordgo.InteractionCreate) {
	org, err := origin(s, i)
	if err != nil {
		discord.RespondError(s, i, err)
		return
	}

	opts := optionMap(subOptions(i.ApplicationCommandData()))
	query := opts["query"].StringValue()
	playNext := false
	if o, ok := opts["next"]; ok {
		playNext = o.BoolValue()
	}

	// Resolution may take a moment; acknowledge now and follow up.
	discord.DeferReply(s, i)
	if err := pc.registry.Play(context.Background(), i.GuildID, org, query, playNext); err != nil {
		discord.FollowUp(s, i, fmt.Sprintf("Error: %v", err))
		return
	}
	discord.FollowUp(s, i, "Done.")
}

func (pc *PlaybackCommands) handlePause(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pc.respondControl(s, i, "Paused.", pc.registry.Pause(i.GuildID))
}

func (pc *PlaybackCommands) handleResume(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pc.respondControl(s, i, "Resumed.", pc.registry.Resume(i.GuildID))
}

func (pc *PlaybackCommands) handleSkip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pc.respondControl(s, i, "Skipped.", pc.registry.Skip(i.GuildID))
}

func (pc *PlaybackCommands) handleShuffle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pc.respondControl(s, i, "Queue shuffled.", pc.registry.Shuffle(i.GuildID))
}

func (pc *PlaybackCommands) handleClear(s *discordgo.Session, i *discordgo.InteractionCreate) {
	n, err := pc.registry.Clear(i.GuildID)
	pc.respondControl(s, i, fmt.Sprintf("Dropped %d songs from the queue.", n), err)
}

func (pc *PlaybackCommands) handleDisconnect(s *discordgo.Session, i *discordgo.InteractionCreate) {
	pc.registry.Disconnect(i.GuildID)
	discord.RespondEphemeral(s, i, "Disconnected.")
}

func (pc *PlaybackCommands) handleQueue(s *discordgo.Session, i *discordgo.InteractionCreate) {
	upcoming, err := pc.registry.Upcoming(i.GuildID, queueDisplayLimit)
	if err != nil {
		pc.respondControl(s, i, "", err)
		return
	}
	if len(upcoming) == 0 {
		discord.RespondEphemeral(s, i, "The queue is empty.")
		return
	}

	var b strings.Builder
	for n, req := range upcoming {
		title := req.Title
		if title == "" {
			title = req.Locator
		}
		fmt.Fprintf(&b, "%d. `%s` (%s)\n", n+1, title, req.Requester)
	}
	discord.RespondEmbed(s, i, &discordgo.MessageEmbed{
		Title:       "Upcoming",
		Description: b.String(),
	})
}

func (pc *PlaybackCommands) handleNowPlaying(s *discordgo.Session, i *discordgo.InteractionCreate) {
	src, err := pc.registry.NowPlaying(i.GuildID)
	if err != nil {
		pc.respondControl(s, i, "", err)
		return
	}
	if src == nil {
		discord.RespondEphemeral(s, i, "Nothing is playing.")
		return
	}
	discord.RespondEphemeral(s, i,
		fmt.Sprintf("**Now Playing:** `%s` requested by `%s`", src.Title, src.Requester))
}

func (pc *PlaybackCommands) handleVolumeMusic(s *discordgo.Session, i *discordgo.InteractionCreate) {
	v := optionMap(subOptions(i.ApplicationCommandData()))["value"].FloatValue()
	if err := pc.settings.SetMusicVolume(context.Background(), i.GuildID, v); err != nil {
		discord.RespondError(s, i, err)
		return
	}
	// Apply to the active stream too so the change is audible immediately.
	if err := pc.registry.SetVolume(i.GuildID, v); err != nil && !errors.Is(err, player.ErrNoSession) {
		discord.RespondError(s, i, err)
		return
	}
	discord.RespondEphemeral(s, i, fmt.Sprintf("Music volume set to %.2f.", v))
}

func (pc *PlaybackCommands) handleVolumeQuote(s *discordgo.Session, i *discordgo.InteractionCreate) {
	v := optionMap(subOptions(i.ApplicationCommandData()))["value"].FloatValue()
	if err := pc.settings.SetQuoteVolume(context.Background(), i.GuildID, v); err != nil {
		discord.RespondError(s, i, err)
		return
	}
	discord.RespondEphemeral(s, i, fmt.Sprintf("Quote volume set to %.2f.", v))
}

// respondControl maps control operation outcomes to user-facing replies.
func (pc *PlaybackCommands) respondControl(s *discordgo.Session, i *discordgo.InteractionCreate, okMsg string, err error) {
	switch {
	case errors.Is(err, player.ErrNoSession):
		discord.RespondEphemeral(s, i, "The bot is not connected to a voice channel.")
	case errors.Is(err, player.ErrNotPlaying):
		discord.RespondEphemeral(s, i, "Nothing is playing.")
	case err != nil:
		discord.RespondError(s, i, err)
	default:
		discord.RespondEphemeral(s, i, okMsg)
	}
}
