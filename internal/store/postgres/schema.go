// Package postgres provides the PostgreSQL-backed implementation of the
// Hermes persistence layer ([store.SettingsStore] and [store.Repository]).
//
// All operations share a single [pgxpool.Pool]; connections are checked out
// per call through pool.Query/Exec and never held across operations.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer st.Close()
//
//	vol, _ := st.MusicVolume(ctx, guildID)
//	quotes, _ := st.MissingTTS(ctx, guildID)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlGuildSettings = `
CREATE TABLE IF NOT EXISTS guild_settings (
    guild_id      TEXT              PRIMARY KEY,
    volume_music  DOUBLE PRECISION  NOT NULL DEFAULT 0.05,
    volume_quote  DOUBLE PRECISION  NOT NULL DEFAULT 0.2
);
`

const ddlUsers = `
CREATE TABLE IF NOT EXISTS users (
    id        BIGSERIAL  PRIMARY KEY,
    guild_id  TEXT       NOT NULL,
    username  TEXT       NOT NULL,
    UNIQUE (guild_id, username)
);

CREATE INDEX IF NOT EXISTS idx_users_guild_id ON users (guild_id);
`

const ddlQuotes = `
CREATE TABLE IF NOT EXISTS quotes (
    id          BIGSERIAL    PRIMARY KEY,
    guild_id    TEXT         NOT NULL,
    user_id     BIGINT       NOT NULL,
    body        TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_quotes_guild_id ON quotes (guild_id);
CREATE INDEX IF NOT EXISTS idx_quotes_guild_user ON quotes (guild_id, user_id);
`

const ddlTTSFiles = `
CREATE TABLE IF NOT EXISTS tts_files (
    quote_id   BIGINT  PRIMARY KEY REFERENCES quotes (id) ON DELETE CASCADE,
    file_name  TEXT    NOT NULL
);
`

// Migrate creates all required tables and indexes. Every statement is
// idempotent, so running it on an already migrated database is safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{ddlGuildSettings, ddlUsers, ddlQuotes, ddlTTSFiles} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("postgres store: migrate: %w", err)
		}
	}
	return nil
}
