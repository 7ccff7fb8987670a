// Package mock provides an in-memory mock implementation of
// [synth.Synthesizer] for use in unit tests.
package mock

import (
	"context"
	"sync"

	"github.com/olclarke/hermes/pkg/synth"
)

// Synthesizer is a mock implementation of [synth.Synthesizer].
// Set the exported fields before use; inspect the recorded calls after.
type Synthesizer struct {
	mu sync.Mutex

	// SynthesizeFunc, when set, handles each call. It takes precedence
	// over the static Result/Err fields.
	SynthesizeFunc func(ctx context.Context, text string) ([]byte, error)

	// Result and Err are returned when SynthesizeFunc is nil. Result
	// defaults to a small non-empty payload.
	Result []byte
	Err    error

	// RecordedTexts holds every text passed to Synthesize, in order.
	RecordedTexts []string
}

var _ synth.Synthesizer = (*Synthesizer)(nil)

// Synthesize implements [synth.Synthesizer].
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	s.mu.Lock()
	s.RecordedTexts = append(s.RecordedTexts, text)
	fn := s.SynthesizeFunc
	res, err := s.Result, s.Err
	s.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = []byte("mp3-bytes")
	}
	return res, nil
}

// CallCount returns how many times Synthesize was invoked.
func (s *Synthesizer) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.RecordedTexts)
}
