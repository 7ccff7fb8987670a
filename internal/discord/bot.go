// Package discord provides the Discord bot layer for Hermes. It owns the
// discordgo.Session lifecycle, routes slash command interactions to
// registered handlers, and watches voice state updates so a forcibly
// disconnected bot cleans up its playback session.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bwmarrin/discordgo"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token.
	Token string

	// GuildID, when non-empty, scopes slash command registration to one
	// guild. Empty registers commands globally.
	GuildID string

	// OnForcedDisconnect is invoked with the guild ID whenever the bot is
	// removed from a voice channel by something other than itself (kicked,
	// moved then dropped, channel deleted). May be nil.
	OnForcedDisconnect func(guildID string)
}

// Bot owns the Discord gateway connection and routes interactions to
// registered command handlers.
type Bot struct {
	mu        sync.RWMutex
	session   *discordgo.Session
	router    *CommandRouter
	guildID   string
	commands  []*discordgo.ApplicationCommand
	connected atomic.Bool
	closeOnce sync.Once
}

// New creates a Bot, connects to Discord, and registers the gateway
// handlers.
func New(_ context.Context, cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates

	b := &Bot{
		session: session,
		router:  NewCommandRouter(),
		guildID: cfg.GuildID,
	}

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		b.router.Handle(s, i)
	})
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Ready) {
		b.connected.Store(true)
	})
	session.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		b.connected.Store(false)
	})
	session.AddHandler(func(s *discordgo.Session, vsu *discordgo.VoiceStateUpdate) {
		// Only the bot's own departure from voice matters here. Teardown
		// initiated by the bot itself is idempotent, so reacting to its
		// own planned disconnects is harmless.
		if s.State.User == nil || vsu.UserID != s.State.User.ID {
			return
		}
		if vsu.ChannelID != "" {
			return
		}
		slog.Info("bot removed from voice channel", "guild_id", vsu.GuildID)
		if cfg.OnForcedDisconnect != nil {
			cfg.OnForcedDisconnect(vsu.GuildID)
		}
	})

	if err := session.Open(); err != nil {
		return nil, fmt.Errorf("discord: open session: %w", err)
	}

	return b, nil
}

// Session returns the underlying discordgo session for subsystems that need
// direct Discord API access, such as the voice sink.
func (b *Bot) Session() *discordgo.Session {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session
}

// Router returns the command router for registering handlers.
func (b *Bot) Router() *CommandRouter {
	return b.router
}

// Connected reports whether the gateway session is currently up. Used by
// the readiness probe.
func (b *Bot) Connected() bool {
	return b.connected.Load()
}

// Run registers slash commands with the Discord API and blocks until ctx is
// cancelled.
func (b *Bot) Run(ctx context.Context) error {
	b.mu.RLock()
	appID := b.session.State.User.ID
	b.mu.RUnlock()

	cmds := b.router.ApplicationCommands()
	if len(cmds) > 0 {
		registered, err := b.session.ApplicationCommandBulkOverwrite(appID, b.guildID, cmds)
		if err != nil {
			return fmt.Errorf("discord: register commands: %w", err)
		}
		b.mu.Lock()
		b.commands = registered
		b.mu.Unlock()
		slog.Info("discord commands registered", "count", len(registered))
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close disconnects from Discord and unregisters commands.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if b.session != nil && len(b.commands) > 0 {
			appID := b.session.State.User.ID
			for _, cmd := range b.commands {
				if err := b.session.ApplicationCommandDelete(appID, b.guildID, cmd.ID); err != nil {
					slog.Warn("discord: failed to delete command", "name", cmd.Name, "err", err)
				}
			}
		}

		if b.session != nil {
			if err := b.session.Close(); err != nil {
				closeErr = fmt.Errorf("discord: close session: %w", err)
			}
		}

		slog.Info("discord bot closed")
	})
	return closeErr
}
