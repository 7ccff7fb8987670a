package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/antzucaro/matchr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/olclarke/hermes/internal/store"
)

// Compile-time interface checks.
var (
	_ store.SettingsStore = (*Store)(nil)
	_ store.Repository    = (*Store)(nil)
)

// findUserThreshold is the minimum Jaro-Winkler similarity for a fuzzy
// username match. Below it, FindUser reports [store.ErrNotFound] rather than
// guessing.
const findUserThreshold = 0.8

// Store is the PostgreSQL-backed persistence layer. It holds a single
// [pgxpool.Pool]; all methods check a connection out per call and are safe
// for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, verifies it with a ping, and
// runs [Migrate] so all required tables exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity, used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// ─── SettingsStore ────────────────────────────────────────────────────────────

// MusicVolume implements [store.SettingsStore].
func (s *Store) MusicVolume(ctx context.Context, guildID string) (float64, error) {
	return s.volume(ctx, guildID, "volume_music", store.DefaultMusicVolume)
}

// QuoteVolume implements [store.SettingsStore].
func (s *Store) QuoteVolume(ctx context.Context, guildID string) (float64, error) {
	return s.volume(ctx, guildID, "volume_quote", store.DefaultQuoteVolume)
}

func (s *Store) volume(ctx context.Context, guildID, column string, def float64) (float64, error) {
	// column is one of two compile-time constants, never user input.
	q := fmt.Sprintf("SELECT %s FROM guild_settings WHERE guild_id = $1", column)

	var v float64
	err := s.pool.QueryRow(ctx, q, guildID).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres store: get %s: %w", column, err)
	}
	return v, nil
}

// SetMusicVolume implements [store.SettingsStore].
func (s *Store) SetMusicVolume(ctx context.Context, guildID string, v float64) error {
	const q = `
		INSERT INTO guild_settings (guild_id, volume_music)
		VALUES ($1, $2)
		ON CONFLICT (guild_id) DO UPDATE SET volume_music = EXCLUDED.volume_music`

	if _, err := s.pool.Exec(ctx, q, guildID, v); err != nil {
		return fmt.Errorf("postgres store: set music volume: %w", err)
	}
	return nil
}

// SetQuoteVolume implements [store.SettingsStore].
func (s *Store) SetQuoteVolume(ctx context.Context, guildID string, v float64) error {
	const q = `
		INSERT INTO guild_settings (guild_id, volume_quote)
		VALUES ($1, $2)
		ON CONFLICT (guild_id) DO UPDATE SET volume_quote = EXCLUDED.volume_quote`

	if _, err := s.pool.Exec(ctx, q, guildID, v); err != nil {
		return fmt.Errorf("postgres store: set quote volume: %w", err)
	}
	return nil
}

// ─── Users ────────────────────────────────────────────────────────────────────

// AddUser implements [store.Repository].
func (s *Store) AddUser(ctx context.Context, guildID, username string) (int64, error) {
	const q = `
		INSERT INTO users (guild_id, username)
		VALUES ($1, $2)
		RETURNING id`

	var id int64
	if err := s.pool.QueryRow(ctx, q, guildID, username).Scan(&id); err != nil {
		return 0, fmt.Errorf("postgres store: add user: %w", err)
	}
	return id, nil
}

// RemoveUser implements [store.Repository]. Detaching quotes and deleting
// the user happen in one transaction so a crash never strands quotes
// pointing at a deleted user.
func (s *Store) RemoveUser(ctx context.Context, guildID string, userID int64) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres store: remove user: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE quotes SET user_id = -1 WHERE guild_id = $1 AND user_id = $2`,
		guildID, userID); err != nil {
		return fmt.Errorf("postgres store: remove user: detach quotes: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM users WHERE guild_id = $1 AND id = $2`,
		guildID, userID)
	if err != nil {
		return fmt.Errorf("postgres store: remove user: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres store: remove user: commit: %w", err)
	}
	return nil
}

// Users implements [store.Repository].
func (s *Store) Users(ctx context.Context, guildID string) ([]store.User, error) {
	const q = `
		SELECT id, guild_id, username
		FROM   users
		WHERE  guild_id = $1
		ORDER  BY username`

	rows, err := s.pool.Query(ctx, q, guildID)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list users: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.User, error) {
		var u store.User
		err := row.Scan(&u.ID, &u.GuildID, &u.Username)
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: list users: %w", err)
	}
	return users, nil
}

// FindUser implements [store.Repository]. Candidate names are compared with
// Jaro-Winkler similarity so "jhon" still finds "john"; an exact
// case-insensitive match always wins.
func (s *Store) FindUser(ctx context.Context, guildID, name string) (store.User, error) {
	users, err := s.Users(ctx, guildID)
	if err != nil {
		return store.User{}, err
	}

	needle := strings.ToLower(strings.TrimSpace(name))
	var (
		best      store.User
		bestScore float64
	)
	for _, u := range users {
		candidate := strings.ToLower(u.Username)
		if candidate == needle {
			return u, nil
		}
		if score := matchr.JaroWinkler(needle, candidate, false); score > bestScore {
			best, bestScore = u, score
		}
	}
	if bestScore < findUserThreshold {
		return store.User{}, store.ErrNotFound
	}
	return best, nil
}

// ─── Quotes ───────────────────────────────────────────────────────────────────

// AddQuote implements [store.Repository].
func (s *Store) AddQuote(ctx context.Context, guildID string, userID int64, body string) (int64, error) {
	const q = `
		INSERT INTO quotes (guild_id, user_id, body)
		VALUES ($1, $2, $3)
		RETURNING id`

	var id int64
	if err := s.pool.QueryRow(ctx, q, guildID, userID, body).Scan(&id); err != nil {
		return 0, fmt.Errorf("postgres store: add quote: %w", err)
	}
	return id, nil
}

// RemoveQuote implements [store.Repository]. The tts_files row, if any,
// follows via ON DELETE CASCADE.
func (s *Store) RemoveQuote(ctx context.Context, guildID string, quoteID int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM quotes WHERE guild_id = $1 AND id = $2`,
		guildID, quoteID)
	if err != nil {
		return fmt.Errorf("postgres store: remove quote: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Quote implements [store.Repository].
func (s *Store) Quote(ctx context.Context, guildID string, quoteID int64) (store.Quote, error) {
	const q = `
		SELECT id, guild_id, user_id, body, created_at
		FROM   quotes
		WHERE  guild_id = $1 AND id = $2`

	return s.scanQuote(s.pool.QueryRow(ctx, q, guildID, quoteID), "get quote")
}

// Quotes implements [store.Repository].
func (s *Store) Quotes(ctx context.Context, guildID string) ([]store.Quote, error) {
	const q = `
		SELECT id, guild_id, user_id, body, created_at
		FROM   quotes
		WHERE  guild_id = $1
		ORDER  BY id`

	return s.queryQuotes(ctx, "list quotes", q, guildID)
}

// QuotesByUser implements [store.Repository].
func (s *Store) QuotesByUser(ctx context.Context, guildID string, userID int64) ([]store.Quote, error) {
	const q = `
		SELECT id, guild_id, user_id, body, created_at
		FROM   quotes
		WHERE  guild_id = $1 AND user_id = $2
		ORDER  BY id`

	return s.queryQuotes(ctx, "list user quotes", q, guildID, userID)
}

// RandomQuote implements [store.Repository].
func (s *Store) RandomQuote(ctx context.Context, guildID string) (store.Quote, error) {
	const q = `
		SELECT id, guild_id, user_id, body, created_at
		FROM   quotes
		WHERE  guild_id = $1
		ORDER  BY random()
		LIMIT  1`

	return s.scanQuote(s.pool.QueryRow(ctx, q, guildID), "random quote")
}

// MissingTTS implements [store.Repository].
func (s *Store) MissingTTS(ctx context.Context, guildID string) ([]store.Quote, error) {
	const q = `
		SELECT q.id, q.guild_id, q.user_id, q.body, q.created_at
		FROM   quotes AS q
		LEFT   JOIN tts_files AS t ON t.quote_id = q.id
		WHERE  q.guild_id = $1 AND t.quote_id IS NULL
		ORDER  BY q.id`

	return s.queryQuotes(ctx, "missing tts", q, guildID)
}

// AddTTSFile implements [store.Repository]. ON CONFLICT DO NOTHING makes the
// at-least-once speech pipeline's duplicate completions harmless.
func (s *Store) AddTTSFile(ctx context.Context, quoteID int64, fileName string) error {
	const q = `
		INSERT INTO tts_files (quote_id, file_name)
		VALUES ($1, $2)
		ON CONFLICT (quote_id) DO NOTHING`

	if _, err := s.pool.Exec(ctx, q, quoteID, fileName); err != nil {
		return fmt.Errorf("postgres store: add tts file: %w", err)
	}
	return nil
}

// TTSFile implements [store.Repository].
func (s *Store) TTSFile(ctx context.Context, quoteID int64) (string, error) {
	const q = `SELECT file_name FROM tts_files WHERE quote_id = $1`

	var name string
	err := s.pool.QueryRow(ctx, q, quoteID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("postgres store: get tts file: %w", err)
	}
	return name, nil
}

// GuildIDs implements [store.Repository].
func (s *Store) GuildIDs(ctx context.Context) ([]string, error) {
	const q = `
		SELECT guild_id FROM guild_settings
		UNION
		SELECT guild_id FROM users
		UNION
		SELECT guild_id FROM quotes`

	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("postgres store: list guilds: %w", err)
	}
	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: list guilds: %w", err)
	}
	return ids, nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func (s *Store) scanQuote(row pgx.Row, verb string) (store.Quote, error) {
	var q store.Quote
	err := row.Scan(&q.ID, &q.GuildID, &q.UserID, &q.Body, &q.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Quote{}, store.ErrNotFound
	}
	if err != nil {
		return store.Quote{}, fmt.Errorf("postgres store: %s: %w", verb, err)
	}
	return q, nil
}

func (s *Store) queryQuotes(ctx context.Context, verb, query string, args ...any) ([]store.Quote, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: %s: %w", verb, err)
	}
	quotes, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Quote, error) {
		var q store.Quote
		err := row.Scan(&q.ID, &q.GuildID, &q.UserID, &q.Body, &q.CreatedAt)
		return q, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: %s: %w", verb, err)
	}
	return quotes, nil
}
