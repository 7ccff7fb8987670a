// Package discord provides an [audio.Sink] implementation backed by Discord
// voice channels via the bwmarrin/discordgo library. It bridges arbitrary
// media URLs (or local files) to Discord's Opus voice transport: ffmpeg
// decodes the media to 48 kHz stereo PCM, per-frame volume is applied, and
// frames are Opus-encoded with gopus before being handed to discordgo.
//
// The sink requires an active *discordgo.Session (owned by the bot layer).
// Each call to [Sink.Connect] joins the requested voice channel and returns
// a [Handle] that plays one source at a time.
package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/olclarke/hermes/pkg/audio"
)

// Compile-time interface assertion.
var _ audio.Sink = (*Sink)(nil)

// Sink implements [audio.Sink] using discordgo voice connections.
// It is safe for concurrent use.
type Sink struct {
	session *discordgo.Session
}

// New creates a Discord Sink for the given session.
func New(session *discordgo.Session) *Sink {
	return &Sink{session: session}
}

// Connect joins the voice channel identified by channelID and returns an
// active [audio.Handle]. The supplied ctx governs the join attempt only;
// once connected, the Handle lives until [audio.Handle.Disconnect].
func (s *Sink) Connect(ctx context.Context, guildID, channelID string) (audio.Handle, error) {
	type joinResult struct {
		vc  *discordgo.VoiceConnection
		err error
	}

	// ChannelVoiceJoin blocks until the voice gateway handshake completes
	// and has no context parameter, so the wait is bounded here instead.
	res := make(chan joinResult, 1)
	go func() {
		vc, err := s.session.ChannelVoiceJoin(guildID, channelID, false, true)
		res <- joinResult{vc: vc, err: err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			// Reap the late join so the connection does not leak.
			if r := <-res; r.err == nil && r.vc != nil {
				_ = r.vc.Disconnect()
			}
		}()
		return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, ctx.Err())
	case r := <-res:
		if r.err != nil {
			return nil, fmt.Errorf("discord: join voice channel %q: %w", channelID, r.err)
		}
		return newHandle(r.vc), nil
	}
}
