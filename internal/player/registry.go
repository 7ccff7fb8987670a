package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/olclarke/hermes/internal/observe"
	"github.com/olclarke/hermes/pkg/audio"
	"github.com/olclarke/hermes/pkg/resolver"
)

// ErrNoSession is returned by control operations for guilds that have no
// live playback session.
var ErrNoSession = errors.New("player: no active session for guild")

// ErrNotPlaying is returned by operations that need an in-flight item when
// the session is idle.
var ErrNotPlaying = errors.New("player: nothing is playing")

// Origin carries the context a command originated from: where to connect
// and where to send status messages.
type Origin struct {
	// VoiceChannelID is the voice channel to join when a session has to be
	// created.
	VoiceChannelID string

	// Requester identifies the user issuing the command.
	Requester string

	// Notify receives best-effort status messages.
	Notify Notifier
}

// RegistryConfig holds the shared collaborators handed to every session.
type RegistryConfig struct {
	Sink     audio.Sink
	Resolver resolver.Resolver
	Settings Settings
	Metrics  *observe.Metrics

	// IdleTimeout is passed through to sessions; <= 0 uses
	// [DefaultIdleTimeout].
	IdleTimeout time.Duration

	// QueueCapacity bounds each session's queue; <= 0 means unbounded.
	QueueCapacity int
}

// Registry maps guilds to their playback sessions and is the public entry
// point for all playback operations. All methods are safe for concurrent
// use; concurrent GetOrCreate calls for one guild yield a single session.
type Registry struct {
	cfg RegistryConfig

	// flight collapses concurrent creates per guild. The map mutex is
	// never held across sink connection, so one guild's slow voice join
	// cannot stall any other guild's operations.
	flight singleflight.Group

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	return &Registry{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// GetOrCreate returns the guild's session, creating and starting one if
// none exists. Creation connects the audio sink to origin's voice channel;
// a connection failure leaves nothing registered.
//
// Creation is single-flighted per guild: two racing creates for one guild
// never both join voice, while the connect itself runs outside the map
// mutex so other guilds stay fully responsive during a slow voice join.
func (r *Registry) GetOrCreate(ctx context.Context, guildID string, origin Origin) (*Session, error) {
	if s := r.Get(guildID); s != nil {
		return s, nil
	}

	// Waiters share the winner's connect result, including its error: a
	// failed join leaves nothing registered and the next call retries.
	v, err, _ := r.flight.Do(guildID, func() (any, error) {
		if s := r.Get(guildID); s != nil {
			return s, nil
		}

		handle, err := r.cfg.Sink.Connect(ctx, guildID, origin.VoiceChannelID)
		if err != nil {
			return nil, fmt.Errorf("player: connect audio sink for guild %s: %w", guildID, err)
		}

		s := NewSession(ctx, SessionConfig{
			GuildID:       guildID,
			Handle:        handle,
			Resolver:      r.cfg.Resolver,
			Settings:      r.cfg.Settings,
			Metrics:       r.cfg.Metrics,
			IdleTimeout:   r.cfg.IdleTimeout,
			QueueCapacity: r.cfg.QueueCapacity,
			OnTerminate:   r.Remove,
		})

		r.mu.Lock()
		r.sessions[guildID] = s
		r.mu.Unlock()

		if r.cfg.Metrics != nil {
			r.cfg.Metrics.ActiveSessions.Add(ctx, 1)
		}
		slog.Info("playback session created", "guild_id", guildID, "channel_id", origin.VoiceChannelID)
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Session), nil
}

// Get returns the guild's session, or nil when none exists.
func (r *Registry) Get(guildID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[guildID]
}

// Exists reports whether the guild has a live session.
func (r *Registry) Exists(guildID string) bool {
	return r.Get(guildID) != nil
}

// Remove drops the guild's registry entry. Idempotent: duplicate teardown
// signals (idle timeout racing a forced disconnect) are safe.
func (r *Registry) Remove(guildID string) {
	r.mu.Lock()
	s, ok := r.sessions[guildID]
	delete(r.sessions, guildID)
	r.mu.Unlock()

	if ok && r.cfg.Metrics != nil {
		ctx := context.Background()
		r.cfg.Metrics.ActiveSessions.Add(ctx, -1)
		// Terminated sessions close their queue before unregistering, so
		// anything still counted queued will never play and must be
		// settled here.
		if n := s.Queue().Len(); n > 0 {
			r.cfg.Metrics.QueuedItems.Add(ctx, int64(-n))
		}
	}
}

// Play resolves locator and enqueues the results on the guild's session,
// creating the session if needed. playNext inserts a single item ahead of
// everything already queued; playlists always append in order.
func (r *Registry) Play(ctx context.Context, guildID string, origin Origin, locator string, playNext bool) error {
	s, err := r.GetOrCreate(ctx, guildID, origin)
	if err != nil {
		return err
	}

	res, err := r.cfg.Resolver.ResolveQuick(ctx, locator)
	if err != nil {
		if errors.Is(err, resolver.ErrNotFound) {
			origin.notify(ctx, fmt.Sprintf("Nothing found for `%s`.", locator))
			return nil
		}
		return fmt.Errorf("player: resolve %q: %w", locator, err)
	}

	if res.IsPlaylist() {
		for _, d := range res.Playlist {
			req := Request{
				GuildID:   guildID,
				Locator:   d.WebURL,
				Title:     d.Title,
				Kind:      KindStream,
				Requester: origin.Requester,
				Notify:    origin.Notify,
			}
			if err := s.Queue().Put(ctx, req); err != nil {
				return fmt.Errorf("player: enqueue playlist entry: %w", err)
			}
			if r.cfg.Metrics != nil {
				r.cfg.Metrics.QueuedItems.Add(ctx, 1)
			}
		}
		origin.notify(ctx, fmt.Sprintf("Adding %d songs to the queue.", len(res.Playlist)))
		return nil
	}

	d := res.Single
	req := Request{
		GuildID:   guildID,
		Locator:   d.WebURL,
		Title:     d.Title,
		Kind:      KindStream,
		Requester: origin.Requester,
		Notify:    origin.Notify,
	}
	if playNext {
		err = s.Queue().PutFront(ctx, req)
	} else {
		err = s.Queue().Put(ctx, req)
	}
	if err != nil {
		return fmt.Errorf("player: enqueue: %w", err)
	}
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.QueuedItems.Add(ctx, 1)
	}
	origin.notify(ctx, fmt.Sprintf("Adding `%s` to the queue.", d.Title))
	return nil
}

// PlayFile enqueues a local artifact (quote narration) for playback,
// creating the session if needed.
func (r *Registry) PlayFile(ctx context.Context, guildID string, origin Origin, path, title string) error {
	s, err := r.GetOrCreate(ctx, guildID, origin)
	if err != nil {
		return err
	}
	req := Request{
		GuildID:   guildID,
		Locator:   path,
		Title:     title,
		Kind:      KindFile,
		Requester: origin.Requester,
		Notify:    origin.Notify,
	}
	if err := s.Queue().Put(ctx, req); err != nil {
		return fmt.Errorf("player: enqueue file: %w", err)
	}
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.QueuedItems.Add(ctx, 1)
	}
	return nil
}

// Pause suspends the guild's active stream.
func (r *Registry) Pause(guildID string) error {
	s := r.Get(guildID)
	if s == nil {
		return ErrNoSession
	}
	if s.Current() == nil {
		return ErrNotPlaying
	}
	s.SetPaused(true)
	return nil
}

// Resume resumes a paused stream.
func (r *Registry) Resume(guildID string) error {
	s := r.Get(guildID)
	if s == nil {
		return ErrNoSession
	}
	s.SetPaused(false)
	return nil
}

// Skip stops the guild's current item so the loop moves to the next one.
func (r *Registry) Skip(guildID string) error {
	s := r.Get(guildID)
	if s == nil {
		return ErrNoSession
	}
	if s.Current() == nil {
		return ErrNotPlaying
	}
	s.Skip()
	return nil
}

// Shuffle randomly permutes the guild's not-yet-played items.
func (r *Registry) Shuffle(guildID string) error {
	s := r.Get(guildID)
	if s == nil {
		return ErrNoSession
	}
	s.Queue().Shuffle()
	return nil
}

// Clear discards all queued (not-yet-played) items and returns the count.
func (r *Registry) Clear(guildID string) (int, error) {
	s := r.Get(guildID)
	if s == nil {
		return 0, ErrNoSession
	}
	n := s.Queue().Clear()
	if n > 0 && r.cfg.Metrics != nil {
		r.cfg.Metrics.QueuedItems.Add(context.Background(), int64(-n))
	}
	return n, nil
}

// SetVolume applies the volume to the active stream immediately. Persisting
// it for future items goes through the settings store.
func (r *Registry) SetVolume(guildID string, v float64) error {
	s := r.Get(guildID)
	if s == nil {
		return ErrNoSession
	}
	s.SetVolume(v)
	return nil
}

// NowPlaying returns the guild's active source, or nil.
func (r *Registry) NowPlaying(guildID string) (*audio.Source, error) {
	s := r.Get(guildID)
	if s == nil {
		return nil, ErrNoSession
	}
	return s.Current(), nil
}

// Upcoming returns up to n queued requests for display.
func (r *Registry) Upcoming(guildID string, n int) ([]Request, error) {
	s := r.Get(guildID)
	if s == nil {
		return nil, ErrNoSession
	}
	return s.Queue().Peek(n), nil
}

// Disconnect terminates the guild's session and waits for teardown.
// Idempotent: disconnecting a guild without a session is a no-op.
func (r *Registry) Disconnect(guildID string) {
	s := r.Get(guildID)
	if s == nil {
		return
	}
	s.Terminate()
}

// Shutdown terminates all sessions, used during process shutdown.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	for _, s := range sessions {
		s.Terminate()
	}
}

// notify delivers a best-effort status message through the origin.
func (o Origin) notify(ctx context.Context, msg string) {
	if o.Notify == nil {
		return
	}
	o.Notify.Notify(ctx, msg)
}
