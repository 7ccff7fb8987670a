// Package app wires all Hermes subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run executes the serving loops, and Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithRepository, WithSink, etc.). When an option is not provided, New
// creates real implementations from the config; when an audio sink is
// injected, New skips the Discord gateway entirely.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/olclarke/hermes/internal/config"
	"github.com/olclarke/hermes/internal/discord"
	"github.com/olclarke/hermes/internal/discord/commands"
	"github.com/olclarke/hermes/internal/health"
	"github.com/olclarke/hermes/internal/observe"
	"github.com/olclarke/hermes/internal/player"
	"github.com/olclarke/hermes/internal/speech"
	"github.com/olclarke/hermes/internal/store"
	storepg "github.com/olclarke/hermes/internal/store/postgres"
	"github.com/olclarke/hermes/pkg/audio"
	audiodiscord "github.com/olclarke/hermes/pkg/audio/discord"
	"github.com/olclarke/hermes/pkg/resolver"
	"github.com/olclarke/hermes/pkg/resolver/ytdlp"
	"github.com/olclarke/hermes/pkg/synth"
	"github.com/olclarke/hermes/pkg/synth/gtrans"
)

// drainTimeout bounds how long Shutdown waits for the speech worker to
// finish its backlog.
const drainTimeout = 30 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg *config.Config

	// Subsystems, initialised in New and torn down in Shutdown.
	repo     store.Repository
	settings store.SettingsStore
	synth    synth.Synthesizer
	resolver resolver.Resolver
	sink     audio.Sink
	metrics  *observe.Metrics
	registry *player.Registry
	worker   *speech.Worker
	bot      *discord.Bot
	httpSrv  *http.Server

	// closers are called in reverse order during Shutdown.
	closers []func() error

	// running is set once Run has started the worker loop. Shutdown only
	// waits for the drain when there is a loop to drain.
	running atomic.Bool

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithRepository injects a quote repository instead of connecting to
// PostgreSQL.
func WithRepository(r store.Repository) Option {
	return func(a *App) { a.repo = r }
}

// WithSettings injects a settings store instead of connecting to PostgreSQL.
func WithSettings(s store.SettingsStore) Option {
	return func(a *App) { a.settings = s }
}

// WithSynthesizer injects a speech synthesizer instead of the Google
// Translate backend.
func WithSynthesizer(s synth.Synthesizer) Option {
	return func(a *App) { a.synth = s }
}

// WithResolver injects a media resolver instead of yt-dlp.
func WithResolver(r resolver.Resolver) Option {
	return func(a *App) { a.resolver = r }
}

// WithSink injects an audio sink. When set, New does not connect to the
// Discord gateway; Run serves only the speech worker and the HTTP endpoints.
func WithSink(s audio.Sink) Option {
	return func(a *App) { a.sink = s }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: database connection and
// migration, telemetry setup, Discord gateway connection, and slash command
// routing. Commands are not registered with the Discord API until Run.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Store ─────────────────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// ── 2. Telemetry ─────────────────────────────────────────────────────
	if err := a.initTelemetry(ctx); err != nil {
		return nil, fmt.Errorf("app: init telemetry: %w", err)
	}

	// ── 3. Speech worker ─────────────────────────────────────────────────
	if err := a.initSpeech(); err != nil {
		return nil, fmt.Errorf("app: init speech: %w", err)
	}

	// ── 4. Discord gateway + playback registry ───────────────────────────
	if err := a.initPlayback(ctx); err != nil {
		return nil, fmt.Errorf("app: init playback: %w", err)
	}

	// ── 5. Slash commands ────────────────────────────────────────────────
	if a.bot != nil {
		router := a.bot.Router()
		commands.NewPlaybackCommands(a.registry, a.settings).Register(router)
		commands.NewQuoteCommands(a.repo, a.worker, a.registry, a.cfg.Speech.ArtifactDir).Register(router)
		commands.NewUserCommands(a.repo).Register(router)
	}

	// ── 6. HTTP endpoints ────────────────────────────────────────────────
	a.initHTTP()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initStore connects to PostgreSQL unless both store halves were injected.
func (a *App) initStore(ctx context.Context) error {
	if a.repo != nil && a.settings != nil {
		return nil
	}

	pg, err := storepg.NewStore(ctx, a.cfg.Database.DSN)
	if err != nil {
		return err
	}
	if a.repo == nil {
		a.repo = pg
	}
	if a.settings == nil {
		a.settings = pg
	}

	a.closers = append(a.closers, func() error {
		pg.Close()
		return nil
	})
	return nil
}

// initTelemetry sets up the OTel meter provider and the metrics set.
func (a *App) initTelemetry(ctx context.Context) error {
	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		return err
	}
	a.closers = append(a.closers, func() error {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdown(shutCtx)
	})

	a.metrics, err = observe.NewMetrics(otel.GetMeterProvider())
	return err
}

// initSpeech creates the synthesizer and the narration worker.
func (a *App) initSpeech() error {
	if a.synth == nil {
		a.synth = gtrans.New(gtrans.WithLanguage(a.cfg.Speech.Language))
	}

	worker, err := speech.NewWorker(speech.WorkerConfig{
		Synthesizer:   a.synth,
		Repository:    a.repo,
		Dir:           a.cfg.Speech.ArtifactDir,
		Metrics:       a.metrics,
		QueueCapacity: a.cfg.Speech.QueueCapacity,
	})
	if err != nil {
		return err
	}
	a.worker = worker
	return nil
}

// initPlayback connects the Discord gateway (unless a sink was injected)
// and builds the playback registry on top of it.
func (a *App) initPlayback(ctx context.Context) error {
	if a.resolver == nil {
		a.resolver = ytdlp.New()
	}

	if a.sink == nil {
		bot, err := discord.New(ctx, discord.Config{
			Token:   a.cfg.Discord.Token,
			GuildID: a.cfg.Discord.GuildID,
			// A kick from voice leaves the session without a working
			// handle; drop it so the next command reconnects cleanly.
			OnForcedDisconnect: func(guildID string) {
				if a.registry != nil {
					a.registry.Disconnect(guildID)
				}
			},
		})
		if err != nil {
			return err
		}
		a.bot = bot
		a.sink = audiodiscord.New(bot.Session())
		a.closers = append(a.closers, bot.Close)
	}

	a.registry = player.NewRegistry(player.RegistryConfig{
		Sink:          a.sink,
		Resolver:      a.resolver,
		Settings:      a.settings,
		Metrics:       a.metrics,
		IdleTimeout:   a.cfg.Player.IdleTimeout,
		QueueCapacity: a.cfg.Player.QueueCapacity,
	})
	return nil
}

// initHTTP builds the health and metrics HTTP server.
func (a *App) initHTTP() {
	checkers := []health.Checker{}
	if p, ok := a.repo.(health.Pinger); ok {
		checkers = append(checkers, health.Database(p))
	}
	if a.bot != nil {
		checkers = append(checkers, health.Gateway(a.bot.Connected))
	}

	mux := http.NewServeMux()
	health.New(checkers...).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())

	a.httpSrv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           observe.Middleware(a.metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the serving loops and blocks until ctx is cancelled or a
// subsystem fails: the speech worker, the HTTP server, and the Discord
// command registration + gateway watch. Run also requeues narration jobs
// for quotes whose artifact is missing.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	a.running.Store(true)
	g.Go(func() error {
		a.worker.Run(ctx)
		return nil
	})
	// Reconcile runs alongside the worker loop: with the consumer already
	// draining, a backlog larger than the queue capacity cannot wedge
	// startup.
	g.Go(func() error {
		if err := a.worker.Reconcile(ctx); err != nil {
			slog.Warn("narration reconcile failed", "err", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("http server listening", "addr", a.httpSrv.Addr)
		if err := a.httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return a.httpSrv.Shutdown(shutCtx)
	})

	if a.bot != nil {
		g.Go(func() error {
			return a.bot.Run(ctx)
		})
	}

	slog.Info("hermes running")
	return g.Wait()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems: playback sessions leave voice, the
// speech worker drains its backlog, then closers run in reverse-init order.
// It respects
// the context deadline: if ctx expires, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		a.registry.Shutdown()

		// Let queued narrations finish so restored quotes are playable
		// after restart, but never wait past the deadline.
		a.worker.Close()
		if a.running.Load() {
			drain, cancel := context.WithTimeout(ctx, drainTimeout)
			select {
			case <-a.worker.Done():
			case <-drain.Done():
				slog.Warn("speech worker drain timed out")
			}
			cancel()
		}

		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
