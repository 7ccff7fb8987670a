// Package mock provides in-memory mock implementations of the [audio.Sink]
// and [audio.Handle] interfaces for use in unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// that tests can assert on call counts and arguments, and they expose
// exported fields that the test can set to control return values.
//
// Typical usage:
//
//	handle := &mock.Handle{}
//	sink := &mock.Sink{ConnectResult: handle}
//	h, err := sink.Connect(ctx, "guild-1", "channel-42")
//	...
//	handle.CompleteCurrent(nil) // simulate natural end of playback
package mock

import (
	"context"
	"sync"

	"github.com/olclarke/hermes/pkg/audio"
)

// ─── Sink ─────────────────────────────────────────────────────────────────────

// Sink is a mock implementation of [audio.Sink].
// Set the exported Result fields before use; inspect the Call* fields after.
type Sink struct {
	mu sync.Mutex

	// ConnectResult is returned by [Sink.Connect]. Defaults to a new
	// [Handle] if left nil.
	ConnectResult audio.Handle

	// ConnectError is returned by [Sink.Connect]. When non-nil it takes
	// precedence over ConnectResult.
	ConnectError error

	// ConnectFunc, when set, replaces the canned-result behavior entirely.
	// Call recording still happens before it runs.
	ConnectFunc func(ctx context.Context, guildID, channelID string) (audio.Handle, error)

	// CallCountConnect records how many times Connect was called.
	CallCountConnect int

	// RecordedChannelIDs holds the channel IDs passed to Connect, in order.
	RecordedChannelIDs []string
}

var _ audio.Sink = (*Sink)(nil)

// Connect implements [audio.Sink].
func (s *Sink) Connect(ctx context.Context, guildID, channelID string) (audio.Handle, error) {
	s.mu.Lock()
	s.CallCountConnect++
	s.RecordedChannelIDs = append(s.RecordedChannelIDs, channelID)
	fn := s.ConnectFunc
	if fn == nil {
		defer s.mu.Unlock()
		if s.ConnectError != nil {
			return nil, s.ConnectError
		}
		if s.ConnectResult == nil {
			s.ConnectResult = &Handle{}
		}
		return s.ConnectResult, nil
	}
	s.mu.Unlock()
	return fn(ctx, guildID, channelID)
}

// ─── Handle ───────────────────────────────────────────────────────────────────

// Handle is a mock implementation of [audio.Handle]. Each Play records the
// source and holds it as the current stream until the test finishes it via
// [Handle.CompleteCurrent] or the engine calls [Handle.Stop].
type Handle struct {
	mu sync.Mutex

	// PlayError is returned by [Handle.Play] when non-nil.
	PlayError error

	// DisconnectError is returned by [Handle.Disconnect].
	DisconnectError error

	// AutoComplete makes Play finish each source immediately with a nil
	// error, which lets queue-drain tests run without driving completions
	// by hand.
	AutoComplete bool

	// PlayedSources holds every source passed to Play, in order.
	PlayedSources []*audio.Source

	// Paused holds the last state passed to SetPaused.
	Paused bool

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	// CallCountDisconnect records how many times Disconnect was called.
	CallCountDisconnect int

	disconnected bool
	current      func(error)
}

var _ audio.Handle = (*Handle)(nil)

// Play implements [audio.Handle].
func (h *Handle) Play(_ context.Context, src *audio.Source, onComplete func(error)) error {
	h.mu.Lock()
	if h.PlayError != nil {
		err := h.PlayError
		h.mu.Unlock()
		return err
	}
	h.PlayedSources = append(h.PlayedSources, src)
	auto := h.AutoComplete
	if !auto {
		h.current = onComplete
	}
	h.mu.Unlock()

	if auto && onComplete != nil {
		onComplete(nil)
	}
	return nil
}

// Played returns a snapshot of every source passed to Play so far.
func (h *Handle) Played() []*audio.Source {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*audio.Source(nil), h.PlayedSources...)
}

// StopCalls returns how many times Stop was called.
func (h *Handle) StopCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.CallCountStop
}

// DisconnectCalls returns how many times Disconnect was called.
func (h *Handle) DisconnectCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.CallCountDisconnect
}

// CompleteCurrent finishes the in-flight source with err, simulating the
// end of playback. It is a no-op when nothing is playing.
func (h *Handle) CompleteCurrent(err error) {
	h.mu.Lock()
	done := h.current
	h.current = nil
	h.mu.Unlock()
	if done != nil {
		done(err)
	}
}

// Stop implements [audio.Handle]; it terminates the current source with a
// nil error, matching the real sink's skip semantics.
func (h *Handle) Stop() {
	h.mu.Lock()
	h.CallCountStop++
	done := h.current
	h.current = nil
	h.mu.Unlock()
	if done != nil {
		done(nil)
	}
}

// SetPaused implements [audio.Handle]; it records the requested state.
func (h *Handle) SetPaused(paused bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Paused = paused
}

// IsConnected implements [audio.Handle].
func (h *Handle) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.disconnected
}

// Disconnect implements [audio.Handle].
func (h *Handle) Disconnect() error {
	h.Stop()
	h.mu.Lock()
	defer h.mu.Unlock()
	h.CallCountDisconnect++
	h.disconnected = true
	return h.DisconnectError
}
