// Package audio defines the interfaces and types for voice-channel audio
// output within Hermes.
//
// The two primary abstractions are:
//
//   - [Sink] — joins a guild voice channel and returns a [Handle].
//   - [Handle] — represents the active voice connection for one guild,
//     streaming one [Source] at a time.
//
// Implementations are provided by platform-specific adapter packages
// (e.g., audio/discord). The interfaces are intentionally narrow so the
// playback engine stays decoupled from provider details.
//
// This package lives under pkg/ because external code (alternative voice
// platform adapters) is expected to implement [Sink] and [Handle].
package audio

import (
	"context"
)

// Sink is the entry point for a voice-channel provider. Implementations wrap
// provider-specific SDKs (Discord, …) and expose a uniform [Handle]
// abstraction.
//
// Implementations must be safe for concurrent use.
type Sink interface {
	// Connect joins the voice channel identified by channelID in the given
	// guild and returns an active [Handle]. The supplied ctx governs the
	// connection attempt only; once connected, the Handle remains alive
	// until [Handle.Disconnect] is called.
	//
	// Returns an error if the connection cannot be established (unknown
	// channel, gateway timeout, network error, etc.).
	Connect(ctx context.Context, guildID, channelID string) (Handle, error)
}

// Handle is an active voice connection for one guild. Exactly one [Source]
// may be playing at a time; starting a new Play while another is in flight
// is a caller error.
//
// Implementations must be safe for concurrent use — [Handle.Stop] in
// particular is called from goroutines other than the one that called Play.
type Handle interface {
	// Play begins streaming src to the voice channel and returns once
	// streaming has started. When playback ends — naturally, via [Handle.Stop],
	// or because the stream failed mid-flight — onComplete is invoked exactly
	// once with the terminal error (nil for natural completion and for Stop).
	//
	// Play does not take ownership of src; releasing the source remains the
	// caller's responsibility.
	Play(ctx context.Context, src *Source, onComplete func(error)) error

	// Stop interrupts the currently playing source, if any. It is a no-op
	// when nothing is playing and is safe to call repeatedly.
	Stop()

	// SetPaused suspends or resumes frame delivery for the active source.
	// Pausing does not release the source; a paused stream still counts as
	// playing. No-op when nothing is playing.
	SetPaused(paused bool)

	// IsConnected reports whether the underlying voice connection is still
	// established.
	IsConnected() bool

	// Disconnect stops any active playback and tears down the voice
	// connection. Safe to call more than once; subsequent calls are no-ops.
	Disconnect() error
}
