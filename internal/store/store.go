// Package store defines the persistence model for Hermes: per-guild playback
// settings, registered users, their quotes, and references to synthesized
// narration files. Implementations live in sub-packages; consumers depend on
// the narrow [SettingsStore] and [Repository] interfaces so tests can swap in
// in-memory fakes.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested user, quote, or file reference
// does not exist.
var ErrNotFound = errors.New("store: not found")

// Default volumes applied to guilds that have never saved settings.
const (
	DefaultMusicVolume = 0.05
	DefaultQuoteVolume = 0.2
)

// GuildSettings holds a guild's persisted playback preferences.
type GuildSettings struct {
	GuildID     string
	MusicVolume float64
	QuoteVolume float64
}

// User is a quote attribution target registered within a guild. Users are
// guild-scoped; the same person in two guilds is two rows.
type User struct {
	ID       int64
	GuildID  string
	Username string
}

// Quote is a memorable line attributed to a user. UserID is -1 when the
// attributed user has since been removed.
type Quote struct {
	ID        int64
	GuildID   string
	UserID    int64
	Body      string
	CreatedAt time.Time
}

// SettingsStore reads and writes per-guild volume settings. Reads fall back
// to [DefaultMusicVolume] and [DefaultQuoteVolume] for guilds without a row;
// writes upsert.
type SettingsStore interface {
	MusicVolume(ctx context.Context, guildID string) (float64, error)
	QuoteVolume(ctx context.Context, guildID string) (float64, error)
	SetMusicVolume(ctx context.Context, guildID string, v float64) error
	SetQuoteVolume(ctx context.Context, guildID string, v float64) error
}

// Repository is the user/quote/narration persistence surface.
type Repository interface {
	// AddUser registers username in the guild and returns its id.
	AddUser(ctx context.Context, guildID, username string) (int64, error)

	// RemoveUser deletes the user and detaches their quotes by setting the
	// quotes' user id to -1. The quotes themselves survive.
	RemoveUser(ctx context.Context, guildID string, userID int64) error

	// Users lists all users registered in the guild.
	Users(ctx context.Context, guildID string) ([]User, error)

	// FindUser resolves name to a guild user, tolerating misspellings.
	// Returns [ErrNotFound] when no registered name is close enough.
	FindUser(ctx context.Context, guildID, name string) (User, error)

	// AddQuote stores body attributed to userID and returns the quote id.
	AddQuote(ctx context.Context, guildID string, userID int64, body string) (int64, error)

	// RemoveQuote deletes the quote and any narration file reference.
	RemoveQuote(ctx context.Context, guildID string, quoteID int64) error

	// Quote fetches one quote by id within the guild.
	Quote(ctx context.Context, guildID string, quoteID int64) (Quote, error)

	// Quotes lists the guild's quotes ordered by id.
	Quotes(ctx context.Context, guildID string) ([]Quote, error)

	// QuotesByUser lists the quotes attributed to userID.
	QuotesByUser(ctx context.Context, guildID string, userID int64) ([]Quote, error)

	// RandomQuote returns a uniformly random quote from the guild, or
	// [ErrNotFound] when the guild has none.
	RandomQuote(ctx context.Context, guildID string) (Quote, error)

	// MissingTTS lists the guild's quotes that have no narration file
	// reference yet. Used by the speech worker's startup reconciliation.
	MissingTTS(ctx context.Context, guildID string) ([]Quote, error)

	// AddTTSFile records that quoteID's narration is stored under fileName.
	// Recording the same reference twice is a no-op.
	AddTTSFile(ctx context.Context, quoteID int64, fileName string) error

	// TTSFile returns the narration file name recorded for quoteID, or
	// [ErrNotFound].
	TTSFile(ctx context.Context, quoteID int64) (string, error)

	// GuildIDs lists every guild that has settings, users, or quotes.
	GuildIDs(ctx context.Context) ([]string, error)
}
