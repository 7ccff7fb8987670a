package player

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/olclarke/hermes/internal/observe"
	"github.com/olclarke/hermes/pkg/audio"
	"github.com/olclarke/hermes/pkg/resolver"
)

// DefaultIdleTimeout is how long a session waits on an empty queue before
// tearing itself down.
const DefaultIdleTimeout = 300 * time.Second

// State is the current phase of a session's supervising loop.
type State int32

const (
	// StateIdle means the loop is waiting for the next queued request.
	StateIdle State = iota

	// StateResolving means a request has been dequeued and is being
	// resolved into a playable stream. This step may fail.
	StateResolving

	// StatePlaying means a stream is live on the audio sink.
	StatePlaying

	// StateDraining means playback has ended and the source is being
	// released.
	StateDraining

	// StateTerminated is terminal: the loop has exited and the session has
	// been removed from its registry.
	StateTerminated
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StatePlaying:
		return "playing"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Settings reads per-guild volume settings. Volumes are read at the moment
// an item starts playing, so setting changes apply from the next item on.
type Settings interface {
	MusicVolume(ctx context.Context, guildID string) (float64, error)
	QuoteVolume(ctx context.Context, guildID string) (float64, error)
}

// SessionConfig holds the collaborators for one [Session].
type SessionConfig struct {
	GuildID  string
	Handle   audio.Handle
	Resolver resolver.Resolver
	Settings Settings
	Metrics  *observe.Metrics

	// IdleTimeout overrides [DefaultIdleTimeout] when > 0.
	IdleTimeout time.Duration

	// QueueCapacity bounds the request queue; <= 0 means unbounded.
	QueueCapacity int

	// OnTerminate is invoked exactly once when the loop exits, after the
	// audio sink has been released. The registry uses it to drop its entry.
	OnTerminate func(guildID string)
}

// Session is the playback state machine for one guild. All mutation of
// playback state happens on the session's own loop goroutine; external
// callers interact only through the queue and the control methods, all of
// which are safe for concurrent use.
type Session struct {
	guildID  string
	queue    *Queue[Request]
	handle   audio.Handle
	res      resolver.Resolver
	settings Settings
	metrics  *observe.Metrics

	idleTimeout time.Duration
	onTerminate func(string)

	state atomic.Int32

	mu      sync.Mutex
	current *audio.Source

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession creates a session and starts its supervising loop. The loop
// runs until the idle timeout expires with an empty queue, ctx is
// cancelled, or [Session.Terminate] is called.
func NewSession(ctx context.Context, cfg SessionConfig) *Session {
	idle := cfg.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if ctx.Done() != nil {
		// Propagate parent cancellation without tying loop lifetime to a
		// short-lived request context.
		go func() {
			select {
			case <-ctx.Done():
				cancel()
			case <-loopCtx.Done():
			}
		}()
	}

	s := &Session{
		guildID:     cfg.GuildID,
		queue:       NewQueue[Request](cfg.QueueCapacity),
		handle:      cfg.Handle,
		res:         cfg.Resolver,
		settings:    cfg.Settings,
		metrics:     cfg.Metrics,
		idleTimeout: idle,
		onTerminate: cfg.OnTerminate,
		cancel:      cancel,
		done:        make(chan struct{}),
	}

	go s.run(loopCtx)
	return s
}

// GuildID returns the guild this session belongs to.
func (s *Session) GuildID() string { return s.guildID }

// State returns the loop's current phase.
func (s *Session) State() State { return State(s.state.Load()) }

// Queue exposes the session's request queue for enqueueing and display.
func (s *Session) Queue() *Queue[Request] { return s.queue }

// Current returns the source now playing, or nil.
func (s *Session) Current() *audio.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Skip interrupts the currently playing item. The loop proceeds to the next
// queued request; skipping while nothing plays is a no-op.
func (s *Session) Skip() {
	s.handle.Stop()
}

// SetPaused pauses or resumes the active stream.
func (s *Session) SetPaused(paused bool) {
	s.handle.SetPaused(paused)
}

// SetVolume applies v (clamped to [0,1]) to the currently playing source,
// if any. Persisting the setting for future items is the caller's concern.
func (s *Session) SetVolume(v float64) {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur != nil {
		cur.SetVolume(v)
	}
}

// Terminate requests loop shutdown and blocks until the loop has released
// the audio sink and notified the registry. Safe to call more than once.
func (s *Session) Terminate() {
	s.cancel()
	<-s.done
}

// Done returns a channel closed when the loop has fully terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

// run is the supervising loop. It owns all session state transitions.
func (s *Session) run(ctx context.Context) {
	defer s.terminate()

	for {
		s.state.Store(int32(StateIdle))

		waitCtx, cancel := context.WithTimeout(ctx, s.idleTimeout)
		req, err := s.queue.Get(waitCtx)
		cancel()
		if err != nil {
			// Idle timeout with an empty queue, explicit terminate, or
			// parent shutdown — all end the loop.
			if ctx.Err() == nil {
				slog.Info("session idle timeout, disconnecting", "guild_id", s.guildID)
			}
			return
		}
		if s.metrics != nil {
			s.metrics.QueuedItems.Add(ctx, -1)
		}

		s.state.Store(int32(StateResolving))
		src, err := s.resolve(ctx, req)
		if err != nil {
			// A single bad item never stalls the guild's queue: notify,
			// drop, move on.
			slog.Warn("resolution failed, dropping item",
				"guild_id", s.guildID, "locator", req.Locator, "err", err)
			if s.metrics != nil {
				s.metrics.ResolveErrors.Add(ctx, 1)
			}
			s.notify(ctx, req, fmt.Sprintf("There was an error processing `%s`, skipping it.", req.Locator))
			continue
		}

		// Teardown may have raced the resolution; never start playing a
		// stream that termination already disowned.
		if ctx.Err() != nil {
			_ = src.Close()
			return
		}

		s.play(ctx, req, src)
	}
}

// play streams one resolved source and blocks until it finishes. The source
// is released on every exit path.
func (s *Session) play(ctx context.Context, req Request, src *audio.Source) {
	defer func() {
		s.state.Store(int32(StateDraining))
		if err := src.Close(); err != nil {
			slog.Warn("source cleanup", "guild_id", s.guildID, "title", src.Title, "err", err)
		}
		s.mu.Lock()
		s.current = nil
		s.mu.Unlock()
	}()

	s.mu.Lock()
	s.current = src
	s.mu.Unlock()
	s.state.Store(int32(StatePlaying))

	start := time.Now()
	playDone := make(chan error, 1)
	if err := s.handle.Play(ctx, src, func(err error) { playDone <- err }); err != nil {
		slog.Warn("playback start failed", "guild_id", s.guildID, "title", src.Title, "err", err)
		s.metrics.RecordPlaybackItem(ctx, req.Kind.String(), "error")
		s.notify(ctx, req, fmt.Sprintf("The bot met some resistance playing `%s`.", src.Title))
		return
	}

	s.notify(ctx, req, fmt.Sprintf("**Now Playing:** `%s` requested by `%s`", src.Title, src.Requester))

	var playErr error
	select {
	case playErr = <-playDone:
	case <-ctx.Done():
		s.handle.Stop()
		playErr = <-playDone
	}

	status := "ok"
	if playErr != nil {
		status = "error"
		slog.Warn("playback ended with error", "guild_id", s.guildID, "title", src.Title, "err", playErr)
		s.notify(ctx, req, fmt.Sprintf("Playback of `%s` failed.", src.Title))
	}
	if s.metrics != nil {
		s.metrics.PlaybackDuration.Record(ctx, time.Since(start).Seconds())
	}
	s.metrics.RecordPlaybackItem(ctx, req.Kind.String(), status)
}

// resolve turns a request into a playable source, reading the guild's
// current volume setting for the request's kind.
func (s *Session) resolve(ctx context.Context, req Request) (*audio.Source, error) {
	vol := s.volumeFor(ctx, req)

	if req.Kind == KindFile {
		title := req.Title
		if title == "" {
			title = req.Locator
		}
		return audio.NewSource(title, req.Locator, req.Locator, req.Requester, vol), nil
	}

	start := time.Now()
	desc, err := s.res.ResolveFull(ctx, req.Locator)
	if s.metrics != nil {
		s.metrics.ResolveDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}
	return audio.NewSource(desc.Title, req.Locator, desc.StreamURL, req.Requester, vol), nil
}

// volumeFor reads the current per-guild volume for the request kind,
// falling back to full volume when settings are unavailable.
func (s *Session) volumeFor(ctx context.Context, req Request) float64 {
	if s.settings == nil {
		return 1
	}
	var (
		vol float64
		err error
	)
	if req.Kind == KindFile {
		vol, err = s.settings.QuoteVolume(ctx, req.GuildID)
	} else {
		vol, err = s.settings.MusicVolume(ctx, req.GuildID)
	}
	if err != nil {
		slog.Warn("volume lookup failed, using full volume", "guild_id", req.GuildID, "err", err)
		return 1
	}
	return vol
}

// notify delivers a best-effort status message for req.
func (s *Session) notify(ctx context.Context, req Request, msg string) {
	if req.Notify == nil {
		return
	}
	req.Notify.Notify(ctx, msg)
}

// terminate runs once when the loop exits: releases any in-flight source,
// disconnects the sink, and tells the registry to drop this session.
func (s *Session) terminate() {
	s.state.Store(int32(StateTerminated))
	s.cancel()
	s.queue.Close()

	s.mu.Lock()
	cur := s.current
	s.current = nil
	s.mu.Unlock()
	if cur != nil {
		_ = cur.Close()
	}

	if err := s.handle.Disconnect(); err != nil {
		slog.Warn("voice disconnect", "guild_id", s.guildID, "err", err)
	}

	if s.onTerminate != nil {
		s.onTerminate(s.guildID)
	}
	close(s.done)
	slog.Info("session terminated", "guild_id", s.guildID)
}
