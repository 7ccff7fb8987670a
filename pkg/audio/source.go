package audio

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
)

// Source is one resolved, playable audio stream. It carries the display
// metadata shown to users, the media locator handed to the sink, and a
// live-mutable volume that the sink reads per frame — so a volume change
// takes effect on the item that is currently streaming, not just the next.
//
// A Source must be released via [Source.Close] on every exit path (natural
// completion, skip, error, disconnect). Close is idempotent.
type Source struct {
	// Title is the human-readable name of the media item.
	Title string

	// Locator is the original URL or search string the item was requested with.
	Locator string

	// MediaURL is the directly streamable URL (or local file path) produced
	// by resolution. This is what the sink feeds to its decoder.
	MediaURL string

	// Requester identifies who asked for this item, for status messages.
	Requester string

	// volume holds the current volume in [0, 1] as float64 bits.
	volume atomic.Uint64

	mu       sync.Mutex
	cleanups []func() error
	closed   bool
}

// NewSource creates a Source with the given metadata and initial volume.
// Volume is clamped to [0, 1].
func NewSource(title, locator, mediaURL, requester string, volume float64) *Source {
	s := &Source{
		Title:     title,
		Locator:   locator,
		MediaURL:  mediaURL,
		Requester: requester,
	}
	s.SetVolume(volume)
	return s
}

// Volume returns the current volume in [0, 1].
func (s *Source) Volume() float64 {
	return math.Float64frombits(s.volume.Load())
}

// SetVolume updates the volume, clamped to [0, 1]. Sinks read the volume
// per frame, so the change is heard immediately on the active stream.
func (s *Source) SetVolume(v float64) {
	s.volume.Store(math.Float64bits(min(1, max(0, v))))
}

// OnClose registers a cleanup function to run when the source is released.
// Sinks use this to tie decoder processes to the source's lifetime.
// Cleanups run in reverse registration order.
func (s *Source) OnClose(fn func() error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		// Late registration after release: run immediately.
		_ = fn()
		return
	}
	s.cleanups = append(s.cleanups, fn)
	s.mu.Unlock()
}

// Close releases the source and runs all registered cleanups. It is safe to
// call from any goroutine and, after the first call, is a no-op.
func (s *Source) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cleanups := s.cleanups
	s.cleanups = nil
	s.mu.Unlock()

	var errs []error
	for i := len(cleanups) - 1; i >= 0; i-- {
		if err := cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
