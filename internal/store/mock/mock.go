// Package mock provides an in-memory implementation of [store.SettingsStore]
// and [store.Repository] for use in unit tests. All methods are safe for
// concurrent use.
package mock

import (
	"context"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/olclarke/hermes/internal/store"
)

var (
	_ store.SettingsStore = (*Store)(nil)
	_ store.Repository    = (*Store)(nil)
)

// Store is an in-memory stand-in for the PostgreSQL store.
//
// Err, when set, is returned by every method, which lets tests exercise
// repository failure paths.
type Store struct {
	mu sync.Mutex

	Err error

	settings map[string]store.GuildSettings
	users    map[int64]store.User
	quotes   map[int64]store.Quote
	ttsFiles map[int64]string

	nextUserID  int64
	nextQuoteID int64
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		settings: make(map[string]store.GuildSettings),
		users:    make(map[int64]store.User),
		quotes:   make(map[int64]store.Quote),
		ttsFiles: make(map[int64]string),
	}
}

func (s *Store) MusicVolume(_ context.Context, guildID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	if gs, ok := s.settings[guildID]; ok {
		return gs.MusicVolume, nil
	}
	return store.DefaultMusicVolume, nil
}

func (s *Store) QuoteVolume(_ context.Context, guildID string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	if gs, ok := s.settings[guildID]; ok {
		return gs.QuoteVolume, nil
	}
	return store.DefaultQuoteVolume, nil
}

func (s *Store) SetMusicVolume(_ context.Context, guildID string, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	gs := s.settingsLocked(guildID)
	gs.MusicVolume = v
	s.settings[guildID] = gs
	return nil
}

func (s *Store) SetQuoteVolume(_ context.Context, guildID string, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	gs := s.settingsLocked(guildID)
	gs.QuoteVolume = v
	s.settings[guildID] = gs
	return nil
}

func (s *Store) settingsLocked(guildID string) store.GuildSettings {
	if gs, ok := s.settings[guildID]; ok {
		return gs
	}
	return store.GuildSettings{
		GuildID:     guildID,
		MusicVolume: store.DefaultMusicVolume,
		QuoteVolume: store.DefaultQuoteVolume,
	}
}

func (s *Store) AddUser(_ context.Context, guildID, username string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	s.nextUserID++
	s.users[s.nextUserID] = store.User{ID: s.nextUserID, GuildID: guildID, Username: username}
	return s.nextUserID, nil
}

func (s *Store) RemoveUser(_ context.Context, guildID string, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	u, ok := s.users[userID]
	if !ok || u.GuildID != guildID {
		return store.ErrNotFound
	}
	delete(s.users, userID)
	for id, q := range s.quotes {
		if q.GuildID == guildID && q.UserID == userID {
			q.UserID = -1
			s.quotes[id] = q
		}
	}
	return nil
}

func (s *Store) Users(_ context.Context, guildID string) ([]store.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var users []store.User
	for _, u := range s.users {
		if u.GuildID == guildID {
			users = append(users, u)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

// FindUser matches by exact name only; fuzzy behavior belongs to the real
// store and its own tests.
func (s *Store) FindUser(ctx context.Context, guildID, name string) (store.User, error) {
	users, err := s.Users(ctx, guildID)
	if err != nil {
		return store.User{}, err
	}
	for _, u := range users {
		if strings.EqualFold(u.Username, name) {
			return u, nil
		}
	}
	return store.User{}, store.ErrNotFound
}

func (s *Store) AddQuote(_ context.Context, guildID string, userID int64, body string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return 0, s.Err
	}
	s.nextQuoteID++
	s.quotes[s.nextQuoteID] = store.Quote{
		ID:        s.nextQuoteID,
		GuildID:   guildID,
		UserID:    userID,
		Body:      body,
		CreatedAt: time.Now(),
	}
	return s.nextQuoteID, nil
}

func (s *Store) RemoveQuote(_ context.Context, guildID string, quoteID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	q, ok := s.quotes[quoteID]
	if !ok || q.GuildID != guildID {
		return store.ErrNotFound
	}
	delete(s.quotes, quoteID)
	delete(s.ttsFiles, quoteID)
	return nil
}

func (s *Store) Quote(_ context.Context, guildID string, quoteID int64) (store.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return store.Quote{}, s.Err
	}
	q, ok := s.quotes[quoteID]
	if !ok || q.GuildID != guildID {
		return store.Quote{}, store.ErrNotFound
	}
	return q, nil
}

func (s *Store) Quotes(_ context.Context, guildID string) ([]store.Quote, error) {
	return s.quotesWhere(func(q store.Quote) bool { return q.GuildID == guildID })
}

func (s *Store) QuotesByUser(_ context.Context, guildID string, userID int64) ([]store.Quote, error) {
	return s.quotesWhere(func(q store.Quote) bool {
		return q.GuildID == guildID && q.UserID == userID
	})
}

func (s *Store) RandomQuote(ctx context.Context, guildID string) (store.Quote, error) {
	quotes, err := s.Quotes(ctx, guildID)
	if err != nil {
		return store.Quote{}, err
	}
	if len(quotes) == 0 {
		return store.Quote{}, store.ErrNotFound
	}
	return quotes[rand.IntN(len(quotes))], nil
}

func (s *Store) MissingTTS(_ context.Context, guildID string) ([]store.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var quotes []store.Quote
	for _, q := range s.quotes {
		if q.GuildID != guildID {
			continue
		}
		if _, ok := s.ttsFiles[q.ID]; !ok {
			quotes = append(quotes, q)
		}
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].ID < quotes[j].ID })
	return quotes, nil
}

func (s *Store) AddTTSFile(_ context.Context, quoteID int64, fileName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.ttsFiles[quoteID]; !ok {
		s.ttsFiles[quoteID] = fileName
	}
	return nil
}

func (s *Store) TTSFile(_ context.Context, quoteID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}
	name, ok := s.ttsFiles[quoteID]
	if !ok {
		return "", store.ErrNotFound
	}
	return name, nil
}

func (s *Store) GuildIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	seen := make(map[string]struct{})
	for g := range s.settings {
		seen[g] = struct{}{}
	}
	for _, u := range s.users {
		seen[u.GuildID] = struct{}{}
	}
	for _, q := range s.quotes {
		seen[q.GuildID] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for g := range seen {
		ids = append(ids, g)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Store) quotesWhere(keep func(store.Quote) bool) ([]store.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var quotes []store.Quote
	for _, q := range s.quotes {
		if keep(q) {
			quotes = append(quotes, q)
		}
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].ID < quotes[j].ID })
	return quotes, nil
}
