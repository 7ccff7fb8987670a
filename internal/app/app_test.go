package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/olclarke/hermes/internal/config"
	storemock "github.com/olclarke/hermes/internal/store/mock"
	audiomock "github.com/olclarke/hermes/pkg/audio/mock"
	resolvermock "github.com/olclarke/hermes/pkg/resolver/mock"
	synthmock "github.com/olclarke/hermes/pkg/synth/mock"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Server.ListenAddr = "127.0.0.1:0"
	cfg.Speech.ArtifactDir = t.TempDir()
	return cfg
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	repo := storemock.NewStore()
	a, err := New(context.Background(), testConfig(t),
		WithRepository(repo),
		WithSettings(repo),
		WithSynthesizer(&synthmock.Synthesizer{}),
		WithResolver(&resolvermock.Resolver{}),
		WithSink(&audiomock.Sink{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestNew_WithMocks(t *testing.T) {
	a := newTestApp(t)
	defer a.Shutdown(context.Background())

	if a.registry == nil {
		t.Error("registry not initialised")
	}
	if a.worker == nil {
		t.Error("speech worker not initialised")
	}
	if a.httpSrv == nil {
		t.Error("http server not initialised")
	}
	if a.bot != nil {
		t.Error("gateway connected despite injected sink")
	}
}

func TestApp_Shutdown(t *testing.T) {
	a := newTestApp(t)

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	// A second call is a no-op.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}

func TestApp_RunStartsWithNarrationBacklog(t *testing.T) {
	repo := storemock.NewStore()
	ctx := context.Background()

	var quoteIDs []int64
	for i := 0; i < 4; i++ {
		id, err := repo.AddQuote(ctx, "g1", 1, "restored quote")
		if err != nil {
			t.Fatalf("AddQuote: %v", err)
		}
		quoteIDs = append(quoteIDs, id)
	}

	// A narration backlog larger than the speech queue must not wedge
	// startup: the worker loop consumes while reconciliation submits.
	cfg := testConfig(t)
	cfg.Speech.QueueCapacity = 1
	a, err := New(ctx, cfg,
		WithRepository(repo),
		WithSettings(repo),
		WithSynthesizer(&synthmock.Synthesizer{}),
		WithResolver(&resolvermock.Resolver{}),
		WithSink(&audiomock.Sink{}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(runCtx) }()

	deadline := time.Now().Add(5 * time.Second)
	for _, id := range quoteIDs {
		for {
			if _, err := repo.TTSFile(ctx, id); err == nil {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("narration for quote %d never recorded", id)
			}
			time.Sleep(2 * time.Millisecond)
		}
	}

	cancel()
	select {
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if err := a.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	a := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- a.Run(ctx) }()

	// Give the loops a moment to start, then stop everything.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
}
