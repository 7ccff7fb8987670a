// Package gtrans provides a [synth.Synthesizer] backed by the Google
// Translate text-to-speech endpoint. It returns MP3 audio for short text
// fragments and needs no API key, which makes it a good fit for quote
// narration where utterances are a sentence or two.
//
// The endpoint caps input length per request, so longer texts are split on
// sentence boundaries and the resulting MP3 segments are concatenated.
// MP3 frames are self-contained, so simple concatenation plays correctly.
package gtrans

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/olclarke/hermes/pkg/synth"
)

// Compile-time interface assertion.
var _ synth.Synthesizer = (*Synthesizer)(nil)

const (
	defaultBaseURL  = "https://translate.google.com/translate_tts"
	defaultLanguage = "en"
	defaultTimeout  = 15 * time.Second

	// maxChunkLen is the longest text fragment sent in one request.
	// The endpoint rejects inputs beyond roughly 200 characters.
	maxChunkLen = 200
)

// Synthesizer implements [synth.Synthesizer] against the Translate TTS
// endpoint. Use [New] to construct one.
type Synthesizer struct {
	baseURL  string
	language string
	client   *http.Client
}

// Option is a functional option for configuring a Synthesizer.
type Option func(*Synthesizer)

// WithLanguage sets the BCP-47 language code for synthesis (e.g., "en",
// "en-au", "de"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(s *Synthesizer) { s.language = lang }
}

// WithBaseURL overrides the TTS endpoint. Used in tests to point at a
// local httptest server.
func WithBaseURL(u string) Option {
	return func(s *Synthesizer) { s.baseURL = u }
}

// WithTimeout bounds each HTTP request. Defaults to 15s.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) { s.client.Timeout = d }
}

// New creates a Translate-backed Synthesizer.
func New(opts ...Option) *Synthesizer {
	s := &Synthesizer{
		baseURL:  defaultBaseURL,
		language: defaultLanguage,
		client:   &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Synthesize renders text to MP3 bytes. Network and HTTP-level failures are
// wrapped with [synth.ErrUnavailable] so the worker can classify them.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("gtrans: empty text")
	}

	var out []byte
	for _, chunk := range splitChunks(text, maxChunkLen) {
		mp3, err := s.fetchChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		out = append(out, mp3...)
	}
	return out, nil
}

// fetchChunk requests synthesis of one bounded text fragment.
func (s *Synthesizer) fetchChunk(ctx context.Context, chunk string) ([]byte, error) {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", s.language)
	q.Set("q", chunk)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("gtrans: build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gtrans: request: %w: %w", synth.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gtrans: unexpected status %d: %w", resp.StatusCode, synth.ErrUnavailable)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gtrans: read response: %w: %w", synth.ErrUnavailable, err)
	}
	return body, nil
}

// splitChunks splits text into fragments no longer than limit, preferring
// sentence boundaries and falling back to word boundaries.
func splitChunks(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}

	var chunks []string
	var cur strings.Builder
	for _, word := range strings.Fields(text) {
		if cur.Len() > 0 && cur.Len()+1+len(word) > limit {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(word)

		if end := cur.Len(); end >= limit/2 && endsSentence(cur.String()) {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	return chunks
}

// endsSentence reports whether s ends with sentence-final punctuation.
func endsSentence(s string) bool {
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") || strings.HasSuffix(s, "?")
}
