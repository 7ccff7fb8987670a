// Package synth defines the Synthesizer interface for text-to-speech
// backends used by the quote narration pipeline.
//
// Unlike a streaming voice pipeline, quote narration is batch work: one
// short text in, one complete MP3 artifact out. The interface is therefore
// a single blocking call; the speech worker provides the queueing and
// isolation around it.
package synth

import (
	"context"
	"errors"
)

// ErrUnavailable is returned (wrapped) when the synthesis backend cannot be
// reached. The speech worker classifies it as a network failure.
var ErrUnavailable = errors.New("synthesis backend unavailable")

// Synthesizer is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use, although the speech
// worker drives synthesis strictly one job at a time.
type Synthesizer interface {
	// Synthesize renders text into encoded audio bytes (MP3). Returns an
	// error wrapping [ErrUnavailable] when the backend cannot be reached.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
