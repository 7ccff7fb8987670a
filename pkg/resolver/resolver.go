// Package resolver defines the abstraction over media metadata resolution:
// turning a URL or free-text search into one or more playable descriptors.
//
// Two resolution depths are exposed, mirroring how expensive they are:
//
//   - [Resolver.ResolveQuick] — cheap lookup with no media processing. Used
//     when enqueueing, where only titles and web URLs are needed and a
//     playlist may expand to hundreds of entries.
//   - [Resolver.ResolveFull] — full extraction yielding a directly
//     streamable URL. Used by the playback loop immediately before playing,
//     because streaming URLs expire.
//
// Implementations are provided by adapter packages (e.g., resolver/ytdlp).
package resolver

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned (wrapped) when a locator matches no media.
// Callers treat it as a recoverable per-item failure, not a resolver fault.
var ErrNotFound = errors.New("no media found")

// Descriptor is the metadata for one resolved media item.
type Descriptor struct {
	// ID is the provider-specific media identifier.
	ID string

	// Title is the human-readable media title.
	Title string

	// WebURL is the canonical page URL for the item. Always set.
	WebURL string

	// StreamURL is the directly streamable media URL. Only set by full
	// resolution; empty on quick results.
	StreamURL string

	// Duration is the media length, when the provider reports one.
	Duration time.Duration
}

// Result is the outcome of a quick resolution: exactly one of Single or
// Playlist is set. The tagged form replaces inspecting provider responses
// for an optional entry list.
type Result struct {
	// Single is set when the locator resolved to one media item.
	Single *Descriptor

	// Playlist is set when the locator resolved to an ordered collection.
	Playlist []Descriptor
}

// IsPlaylist reports whether the result holds a playlist.
func (r Result) IsPlaylist() bool { return r.Playlist != nil }

// Resolver turns locators (URLs or search strings) into playable descriptors.
//
// Implementations must be safe for concurrent use: multiple guild playback
// loops resolve independently.
type Resolver interface {
	// ResolveQuick performs a cheap lookup without media processing.
	// A locator matching nothing returns an error wrapping [ErrNotFound].
	ResolveQuick(ctx context.Context, locator string) (Result, error)

	// ResolveFull performs a full extraction and returns a descriptor whose
	// StreamURL can be fed straight to an audio sink. A locator matching
	// nothing returns an error wrapping [ErrNotFound].
	ResolveFull(ctx context.Context, locator string) (*Descriptor, error)
}
