package discord

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/olclarke/hermes/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Handle = (*Handle)(nil)

// Handle streams one [audio.Source] at a time to a Discord voice connection.
// The decode pipeline is ffmpeg → PCM → volume scale → Opus → OpusSend.
type Handle struct {
	vc *discordgo.VoiceConnection

	mu       sync.Mutex
	stop     context.CancelFunc // cancels the active stream, nil when idle
	paused   bool
	unpause  chan struct{} // closed on resume, replaced on pause
	closed   bool
	doneOnce sync.Once
}

func newHandle(vc *discordgo.VoiceConnection) *Handle {
	return &Handle{vc: vc}
}

// Play starts streaming src and returns once the decoder is running.
// onComplete fires exactly once when the stream ends; a nil error means
// natural completion or an explicit [Handle.Stop].
func (h *Handle) Play(ctx context.Context, src *audio.Source, onComplete func(error)) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return fmt.Errorf("discord: play %q: connection closed", src.Title)
	}
	if h.stop != nil {
		h.mu.Unlock()
		return fmt.Errorf("discord: play %q: another source is active", src.Title)
	}

	streamCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	h.stop = cancel
	h.mu.Unlock()

	cmd := exec.CommandContext(streamCtx, "ffmpeg",
		"-i", src.MediaURL,
		"-f", "s16le",
		"-ar", fmt.Sprint(sampleRate),
		"-ac", fmt.Sprint(channels),
		"-loglevel", "error",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		h.clearActive(cancel)
		return fmt.Errorf("discord: ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		h.clearActive(cancel)
		return fmt.Errorf("discord: start ffmpeg: %w", err)
	}

	// Tie decoder teardown to the source's lifetime so that releasing the
	// source on any exit path also reaps the ffmpeg process.
	src.OnClose(func() error {
		cancel()
		return nil
	})

	go h.stream(streamCtx, cancel, cmd, stdout, src, onComplete)
	return nil
}

// stream pumps PCM frames from ffmpeg into the voice connection until the
// media ends, the stream context is cancelled, or an encode/send fails.
func (h *Handle) stream(ctx context.Context, cancel context.CancelFunc, cmd *exec.Cmd, pcm io.Reader, src *audio.Source, onComplete func(error)) {
	var streamErr error
	defer func() {
		cancel()
		_ = cmd.Wait()
		if err := h.vc.Speaking(false); err != nil {
			slog.Debug("discord: clear speaking state", "err", err)
		}
		h.clearActive(cancel)
		if onComplete != nil {
			onComplete(streamErr)
		}
	}()

	if err := h.vc.Speaking(true); err != nil {
		streamErr = fmt.Errorf("discord: set speaking state: %w", err)
		return
	}

	enc, err := newOpusEncoder()
	if err != nil {
		streamErr = err
		return
	}

	buf := make([]byte, frameBytes)
	for {
		if _, err := io.ReadFull(pcm, buf); err != nil {
			// EOF (and a trailing partial frame) is natural completion.
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && ctx.Err() == nil {
				streamErr = fmt.Errorf("discord: read pcm: %w", err)
			}
			return
		}

		applyVolume(buf, src.Volume())

		packet, err := enc.encode(buf)
		if err != nil {
			streamErr = err
			return
		}

		if err := h.awaitResume(ctx); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case h.vc.OpusSend <- packet:
		}
	}
}

// awaitResume blocks while the handle is paused. Returns ctx.Err() if the
// stream is cancelled during the wait.
func (h *Handle) awaitResume(ctx context.Context) error {
	for {
		h.mu.Lock()
		if !h.paused {
			h.mu.Unlock()
			return nil
		}
		wait := h.unpause
		h.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-wait:
		}
	}
}

// SetPaused suspends or resumes frame delivery for the active stream.
func (h *Handle) SetPaused(paused bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.paused == paused {
		return
	}
	h.paused = paused
	if paused {
		h.unpause = make(chan struct{})
	} else if h.unpause != nil {
		close(h.unpause)
		h.unpause = nil
	}
}

// clearActive resets the active-stream slot. The playback engine plays one
// source at a time and waits for onComplete before the next Play, so the
// slot always belongs to the stream being torn down.
func (h *Handle) clearActive(cancel context.CancelFunc) {
	cancel()
	h.mu.Lock()
	h.stop = nil
	h.mu.Unlock()
}

// Stop interrupts the active stream, if any.
func (h *Handle) Stop() {
	h.mu.Lock()
	stop := h.stop
	h.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// IsConnected reports whether the voice connection is still established.
func (h *Handle) IsConnected() bool {
	h.vc.RLock()
	defer h.vc.RUnlock()
	return h.vc.Ready
}

// Disconnect stops playback and leaves the voice channel. Safe to call
// more than once.
func (h *Handle) Disconnect() error {
	h.Stop()
	var err error
	h.doneOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		err = h.vc.Disconnect()
	})
	return err
}

// applyVolume scales interleaved little-endian int16 samples in place.
func applyVolume(pcm []byte, vol float64) {
	if vol >= 1 {
		return
	}
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(pcm[i]) | int16(pcm[i+1])<<8
		s = int16(float64(s) * vol)
		pcm[i] = byte(s)
		pcm[i+1] = byte(s >> 8)
	}
}
