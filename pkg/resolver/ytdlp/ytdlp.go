// Package ytdlp implements [resolver.Resolver] on top of the yt-dlp binary
// (via lrstanley/go-ytdlp) with a scraping fallback for quick searches
// (ppalone/ytsearch).
//
// Quick resolution never touches media formats: playlists are expanded with
// --flat-playlist and plain searches go through the lightweight search
// scraper. Full resolution asks yt-dlp for the best audio format and returns
// the short-lived streaming URL, so it must be called right before playback.
package ytdlp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/ppalone/ytsearch"

	"github.com/olclarke/hermes/pkg/resolver"
)

// Compile-time interface assertion.
var _ resolver.Resolver = (*Resolver)(nil)

const watchURLPrefix = "https://www.youtube.com/watch?v="

// Resolver resolves locators through yt-dlp. The zero value is not usable;
// use [New].
type Resolver struct {
	// timeout bounds each yt-dlp invocation.
	timeout time.Duration

	// search is the scraper used for free-text quick lookups.
	search *ytsearch.Client
}

// Option is a functional option for configuring a Resolver.
type Option func(*Resolver)

// WithTimeout bounds each yt-dlp invocation. Defaults to 30s.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// New creates a yt-dlp backed Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		timeout: 30 * time.Second,
		search:  ytsearch.NewClient(nil),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// ResolveQuick performs a metadata-only lookup. Playlist URLs expand to the
// full entry list without processing any single video; search strings go
// through the search scraper and return the top match.
func (r *Resolver) ResolveQuick(ctx context.Context, locator string) (resolver.Result, error) {
	switch {
	case isPlaylistURL(locator):
		entries, err := r.flatPlaylist(ctx, locator)
		if err != nil {
			return resolver.Result{}, err
		}
		if len(entries) == 0 {
			return resolver.Result{}, fmt.Errorf("ytdlp: resolve playlist %q: %w", locator, resolver.ErrNotFound)
		}
		return resolver.Result{Playlist: entries}, nil

	case isURL(locator):
		// A plain video URL needs no lookup at enqueue time; the playback
		// loop does the full extraction later.
		return resolver.Result{Single: &resolver.Descriptor{WebURL: locator, Title: locator}}, nil

	default:
		d, err := r.searchOne(ctx, locator)
		if err != nil {
			return resolver.Result{}, err
		}
		return resolver.Result{Single: d}, nil
	}
}

// ResolveFull extracts the best-audio streaming URL for the locator.
// Search strings are resolved through yt-dlp's ytsearch prefix so that a
// single invocation covers both cases.
func (r *Resolver) ResolveFull(ctx context.Context, locator string) (*resolver.Descriptor, error) {
	target := locator
	if !isURL(locator) {
		target = "ytsearch1:" + locator
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := ytdlp.New().
		Print("%(url)s\t%(title)s\t%(id)s\t%(duration)s\t%(webpage_url)s").
		Format("bestaudio/best").
		NoPlaylist().
		NoCheckFormats().
		NoWarnings().
		IgnoreConfig().
		Run(ctx, "--skip-download", target)
	if err != nil {
		return nil, fmt.Errorf("ytdlp: resolve %q: %w", locator, err)
	}

	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		ps := strings.Split(line, "\t")
		if len(ps) < 5 {
			continue
		}
		dur, _ := time.ParseDuration(ps[3] + "s")
		return &resolver.Descriptor{
			StreamURL: ps[0],
			Title:     ps[1],
			ID:        ps[2],
			Duration:  dur,
			WebURL:    ps[4],
		}, nil
	}
	return nil, fmt.Errorf("ytdlp: resolve %q: %w", locator, resolver.ErrNotFound)
}

// flatPlaylist expands a playlist URL into descriptors without processing
// individual entries.
func (r *Resolver) flatPlaylist(ctx context.Context, url string) ([]resolver.Descriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := ytdlp.New().
		FlatPlaylist().
		Print("%(id)s\t%(title)s").
		NoWarnings().
		IgnoreConfig().
		Run(ctx, "--skip-download", url)
	if err != nil {
		return nil, fmt.Errorf("ytdlp: expand playlist %q: %w", url, err)
	}

	var entries []resolver.Descriptor
	for _, line := range strings.Split(strings.TrimSpace(res.Stdout), "\n") {
		ps := strings.Split(line, "\t")
		if len(ps) < 2 || ps[0] == "" {
			continue
		}
		entries = append(entries, resolver.Descriptor{
			ID: ps[0],
			// The flat listing does not include entry URLs, so they are
			// reconstructed from the video ID.
			WebURL: watchURLPrefix + ps[0],
			Title:  ps[1],
		})
	}
	return entries, nil
}

// searchOne returns the top search hit for a free-text query.
func (r *Resolver) searchOne(ctx context.Context, query string) (*resolver.Descriptor, error) {
	res, err := r.search.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ytdlp: search %q: %w", query, err)
	}
	if len(res.Results) == 0 {
		return nil, fmt.Errorf("ytdlp: search %q: %w", query, resolver.ErrNotFound)
	}
	v := res.Results[0]
	return &resolver.Descriptor{
		ID:     v.VideoID,
		Title:  v.Title,
		WebURL: watchURLPrefix + v.VideoID,
	}, nil
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func isPlaylistURL(s string) bool {
	return isURL(s) && (strings.Contains(s, "list=") || strings.Contains(s, "/playlist"))
}
