package player

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/olclarke/hermes/internal/observe"
	"github.com/olclarke/hermes/pkg/audio"
	"github.com/olclarke/hermes/pkg/resolver"
	resolvermock "github.com/olclarke/hermes/pkg/resolver/mock"

	audiomock "github.com/olclarke/hermes/pkg/audio/mock"
)

func newTestRegistry(t *testing.T, sink *audiomock.Sink, res *resolvermock.Resolver) *Registry {
	t.Helper()
	r := NewRegistry(RegistryConfig{
		Sink:     sink,
		Resolver: res,
		Settings: staticSettings{music: 0.05, quote: 0.2},
	})
	t.Cleanup(r.Shutdown)
	return r
}

func testOrigin(n Notifier) Origin {
	return Origin{VoiceChannelID: "voice-42", Requester: "tester", Notify: n}
}

func TestRegistryConcurrentGetOrCreateYieldsOneSession(t *testing.T) {
	sink := &audiomock.Sink{ConnectResult: &audiomock.Handle{AutoComplete: true}}
	r := newTestRegistry(t, sink, &resolvermock.Resolver{})

	const callers = 16
	sessions := make([]*Session, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.GetOrCreate(context.Background(), "guild-1", testOrigin(nil))
			if err != nil {
				t.Errorf("GetOrCreate: %v", err)
				return
			}
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	for i := 1; i < callers; i++ {
		if sessions[i] != sessions[0] {
			t.Fatalf("caller %d got a different session instance", i)
		}
	}
	if sink.CallCountConnect != 1 {
		t.Errorf("Connect called %d times, want 1", sink.CallCountConnect)
	}
}

func TestRegistrySlowConnectDoesNotBlockOtherGuilds(t *testing.T) {
	joining := make(chan struct{})
	release := make(chan struct{})
	var releaseOnce sync.Once
	releaseSlow := func() { releaseOnce.Do(func() { close(release) }) }

	sink := &audiomock.Sink{ConnectFunc: func(_ context.Context, guildID, _ string) (audio.Handle, error) {
		if guildID == "guild-slow" {
			close(joining)
			<-release
		}
		return &audiomock.Handle{AutoComplete: true}, nil
	}}
	r := newTestRegistry(t, sink, &resolvermock.Resolver{})
	t.Cleanup(releaseSlow)

	slowDone := make(chan struct{})
	go func() {
		defer close(slowDone)
		_, _ = r.GetOrCreate(context.Background(), "guild-slow", testOrigin(nil))
	}()
	select {
	case <-joining:
	case <-time.After(3 * time.Second):
		t.Fatal("slow guild never reached the sink")
	}

	// With guild-slow mid voice join, another guild's create must still go
	// through promptly.
	fast := make(chan error, 1)
	go func() {
		_, err := r.GetOrCreate(context.Background(), "guild-fast", testOrigin(nil))
		fast <- err
	}()
	select {
	case err := <-fast:
		if err != nil {
			t.Fatalf("GetOrCreate(guild-fast): %v", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("create for guild-fast stalled behind another guild's voice join")
	}
	if !r.Exists("guild-fast") {
		t.Error("guild-fast session not registered")
	}

	releaseSlow()
	<-slowDone
	if !r.Exists("guild-slow") {
		t.Error("guild-slow session not registered after its join completed")
	}
}

func queuedItemsGauge(t *testing.T, reader *sdkmetric.ManualReader) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "hermes.queued_items" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("queued_items carries %T, want Sum[int64]", m.Data)
			}
			var total int64
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
			return total
		}
	}
	return 0
}

func TestRegistryRemoveSettlesQueuedItemsGauge(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	resolving := make(chan struct{})
	var once sync.Once
	res := &resolvermock.Resolver{
		QuickResult: resolver.Result{Single: &resolver.Descriptor{
			Title:  "held",
			WebURL: "https://example.com/held",
		}},
		// Resolution lands only after teardown has cancelled the loop, so
		// the loop exits discarding the resolved source while the later
		// items are still queued.
		FullFunc: func(ctx context.Context, loc string) (*resolver.Descriptor, error) {
			once.Do(func() { close(resolving) })
			<-ctx.Done()
			return &resolver.Descriptor{Title: loc, StreamURL: "https://cdn/held"}, nil
		},
	}
	sink := &audiomock.Sink{ConnectResult: &audiomock.Handle{}}
	r := NewRegistry(RegistryConfig{
		Sink:     sink,
		Resolver: res,
		Settings: staticSettings{music: 0.05, quote: 0.2},
		Metrics:  metrics,
	})
	t.Cleanup(r.Shutdown)

	for i := 0; i < 3; i++ {
		if err := r.Play(context.Background(), "guild-1", testOrigin(nil), "held", false); err != nil {
			t.Fatalf("Play: %v", err)
		}
	}
	select {
	case <-resolving:
	case <-time.After(3 * time.Second):
		t.Fatal("resolution never started")
	}
	// The first item is off the queue and stuck resolving; the other two
	// stay behind it and will never play.
	s := r.Get("guild-1")
	waitUntil(t, 3*time.Second, func() bool { return s.Queue().Len() == 2 })

	r.Disconnect("guild-1")
	waitUntil(t, 3*time.Second, func() bool { return !r.Exists("guild-1") })

	if got := queuedItemsGauge(t, reader); got != 0 {
		t.Errorf("queued_items = %d after teardown, want 0", got)
	}
}

func TestRegistryConnectFailureRegistersNothing(t *testing.T) {
	sink := &audiomock.Sink{ConnectError: errors.New("voice gateway unreachable")}
	r := newTestRegistry(t, sink, &resolvermock.Resolver{})

	_, err := r.GetOrCreate(context.Background(), "guild-1", testOrigin(nil))
	if err == nil {
		t.Fatal("GetOrCreate succeeded despite connect failure")
	}
	if r.Exists("guild-1") {
		t.Error("failed create left a session registered")
	}
}

func TestRegistryPlayEnqueuesSingleResult(t *testing.T) {
	handle := &audiomock.Handle{AutoComplete: true}
	sink := &audiomock.Sink{ConnectResult: handle}
	res := &resolvermock.Resolver{
		QuickResult: resolver.Result{Single: &resolver.Descriptor{
			Title:  "Totally Real Song",
			WebURL: "https://example.com/watch?v=abc",
		}},
		FullFunc: func(_ context.Context, locator string) (*resolver.Descriptor, error) {
			return &resolver.Descriptor{Title: "Totally Real Song", StreamURL: "https://cdn/abc"}, nil
		},
	}
	r := newTestRegistry(t, sink, res)

	notifier := &recordingNotifier{}
	if err := r.Play(context.Background(), "guild-1", testOrigin(notifier), "totally real song", false); err != nil {
		t.Fatalf("Play: %v", err)
	}

	waitUntil(t, 3*time.Second, func() bool { return len(handle.Played()) == 1 })
	if got := handle.Played()[0].Title; got != "Totally Real Song" {
		t.Errorf("played %q, want %q", got, "Totally Real Song")
	}

	var queued bool
	for _, m := range notifier.messages() {
		if strings.Contains(m, "Totally Real Song") && strings.Contains(m, "queue") {
			queued = true
		}
	}
	if !queued {
		t.Errorf("no enqueue confirmation, got %v", notifier.messages())
	}
}

func TestRegistryPlayPlaylistAppendsAll(t *testing.T) {
	handle := &audiomock.Handle{AutoComplete: true}
	sink := &audiomock.Sink{ConnectResult: handle}
	res := &resolvermock.Resolver{
		QuickResult: resolver.Result{Playlist: []resolver.Descriptor{
			{Title: "one", WebURL: "https://example.com/1"},
			{Title: "two", WebURL: "https://example.com/2"},
			{Title: "three", WebURL: "https://example.com/3"},
		}},
		FullFunc: func(_ context.Context, locator string) (*resolver.Descriptor, error) {
			return &resolver.Descriptor{Title: locator, StreamURL: locator}, nil
		},
	}
	r := newTestRegistry(t, sink, res)

	notifier := &recordingNotifier{}
	if err := r.Play(context.Background(), "guild-1", testOrigin(notifier), "https://example.com/playlist", false); err != nil {
		t.Fatalf("Play: %v", err)
	}

	waitUntil(t, 3*time.Second, func() bool { return len(handle.Played()) == 3 })
	got := playedTitles(handle)
	want := []string{"https://example.com/1", "https://example.com/2", "https://example.com/3"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("played[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	var counted bool
	for _, m := range notifier.messages() {
		if strings.Contains(m, "3 songs") {
			counted = true
		}
	}
	if !counted {
		t.Errorf("no playlist count notification, got %v", notifier.messages())
	}
}

func TestRegistryPlayNothingFound(t *testing.T) {
	sink := &audiomock.Sink{ConnectResult: &audiomock.Handle{AutoComplete: true}}
	res := &resolvermock.Resolver{QuickError: resolver.ErrNotFound}
	r := newTestRegistry(t, sink, res)

	notifier := &recordingNotifier{}
	if err := r.Play(context.Background(), "guild-1", testOrigin(notifier), "gibberish", false); err != nil {
		t.Fatalf("Play with no results should not error, got %v", err)
	}

	var informed bool
	for _, m := range notifier.messages() {
		if strings.Contains(m, "Nothing found") {
			informed = true
		}
	}
	if !informed {
		t.Errorf("user not informed about empty results, got %v", notifier.messages())
	}
}

func TestRegistryControlsWithoutSession(t *testing.T) {
	r := newTestRegistry(t, &audiomock.Sink{}, &resolvermock.Resolver{})

	if err := r.Pause("guild-1"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Pause = %v, want ErrNoSession", err)
	}
	if err := r.Resume("guild-1"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Resume = %v, want ErrNoSession", err)
	}
	if err := r.Skip("guild-1"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Skip = %v, want ErrNoSession", err)
	}
	if err := r.Shuffle("guild-1"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Shuffle = %v, want ErrNoSession", err)
	}
	if _, err := r.Clear("guild-1"); !errors.Is(err, ErrNoSession) {
		t.Errorf("Clear = %v, want ErrNoSession", err)
	}
	if err := r.SetVolume("guild-1", 0.5); !errors.Is(err, ErrNoSession) {
		t.Errorf("SetVolume = %v, want ErrNoSession", err)
	}
	if _, err := r.NowPlaying("guild-1"); !errors.Is(err, ErrNoSession) {
		t.Errorf("NowPlaying = %v, want ErrNoSession", err)
	}
	if _, err := r.Upcoming("guild-1", 5); !errors.Is(err, ErrNoSession) {
		t.Errorf("Upcoming = %v, want ErrNoSession", err)
	}

	// Disconnecting a guild that never connected is a silent no-op.
	r.Disconnect("guild-1")
}

func TestRegistryPauseWithoutPlayback(t *testing.T) {
	sink := &audiomock.Sink{ConnectResult: &audiomock.Handle{}}
	r := newTestRegistry(t, sink, &resolvermock.Resolver{})

	if _, err := r.GetOrCreate(context.Background(), "guild-1", testOrigin(nil)); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if err := r.Pause("guild-1"); !errors.Is(err, ErrNotPlaying) {
		t.Errorf("Pause with empty queue = %v, want ErrNotPlaying", err)
	}
	if err := r.Skip("guild-1"); !errors.Is(err, ErrNotPlaying) {
		t.Errorf("Skip with empty queue = %v, want ErrNotPlaying", err)
	}
}

func TestRegistryDisconnectRemovesSession(t *testing.T) {
	handle := &audiomock.Handle{AutoComplete: true}
	sink := &audiomock.Sink{ConnectResult: handle}
	r := newTestRegistry(t, sink, &resolvermock.Resolver{})

	if _, err := r.GetOrCreate(context.Background(), "guild-1", testOrigin(nil)); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	r.Disconnect("guild-1")

	if r.Exists("guild-1") {
		t.Error("session still registered after Disconnect")
	}
	if got := handle.DisconnectCalls(); got != 1 {
		t.Errorf("handle disconnected %d times, want 1", got)
	}

	// Removing again stays quiet.
	r.Remove("guild-1")
	r.Disconnect("guild-1")
}

func TestRegistryShutdownTerminatesAllSessions(t *testing.T) {
	handle := &audiomock.Handle{AutoComplete: true}
	sink := &audiomock.Sink{ConnectResult: handle}
	r := newTestRegistry(t, sink, &resolvermock.Resolver{})

	guilds := []string{"guild-1", "guild-2", "guild-3"}
	for _, g := range guilds {
		if _, err := r.GetOrCreate(context.Background(), g, testOrigin(nil)); err != nil {
			t.Fatalf("GetOrCreate(%s): %v", g, err)
		}
	}

	r.Shutdown()

	for _, g := range guilds {
		if r.Exists(g) {
			t.Errorf("session %s still registered after Shutdown", g)
		}
	}
	if got := handle.DisconnectCalls(); got != len(guilds) {
		t.Errorf("handle disconnected %d times, want %d", got, len(guilds))
	}
}
