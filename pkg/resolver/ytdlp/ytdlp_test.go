package ytdlp

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ppalone/ytsearch"
)

// failingTransport makes every outgoing request fail, so search-path tests
// never touch the network.
type failingTransport struct{ err error }

func (t failingTransport) RoundTrip(*http.Request) (*http.Response, error) {
	return nil, t.err
}

func TestNewAppliesOptions(t *testing.T) {
	r := New(WithTimeout(5 * time.Second))
	if r.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", r.timeout)
	}
	if r.search == nil {
		t.Error("search client not initialised")
	}
}

func TestResolveQuickPlainURLPassthrough(t *testing.T) {
	// A plain video URL must resolve without any lookup at all; a resolver
	// whose searches can only fail proves nothing was contacted.
	r := New()
	r.search = ytsearch.NewClient(&http.Client{
		Transport: failingTransport{err: errors.New("no network in tests")},
	})

	const url = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	res, err := r.ResolveQuick(context.Background(), url)
	if err != nil {
		t.Fatalf("ResolveQuick: %v", err)
	}
	if res.Single == nil {
		t.Fatal("ResolveQuick returned no single result")
	}
	if res.Single.WebURL != url {
		t.Errorf("WebURL = %q, want %q", res.Single.WebURL, url)
	}
	if res.IsPlaylist() {
		t.Error("plain video URL classified as playlist")
	}
}

func TestResolveQuickSearchTransportError(t *testing.T) {
	cause := errors.New("connection refused")
	r := New()
	r.search = ytsearch.NewClient(&http.Client{Transport: failingTransport{err: cause}})

	_, err := r.ResolveQuick(context.Background(), "some free text query")
	if err == nil {
		t.Fatal("ResolveQuick succeeded with a broken transport")
	}
	if !strings.Contains(err.Error(), "search") {
		t.Errorf("error %q does not identify the search step", err)
	}
	if !strings.Contains(err.Error(), cause.Error()) {
		t.Errorf("error %q does not wrap the transport failure", err)
	}
}

func TestIsURL(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"https://www.youtube.com/watch?v=abc", true},
		{"http://example.com/track", true},
		{"never gonna give you up", false},
		{"ftp://example.com/file", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := isURL(tc.in); got != tc.want {
			t.Errorf("isURL(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestIsPlaylistURL(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"https://www.youtube.com/playlist?list=PLabc", true},
		{"https://www.youtube.com/watch?v=abc&list=PLabc", true},
		{"https://www.youtube.com/watch?v=abc", false},
		{"playlist with list= in plain text", false},
	}
	for _, tc := range cases {
		if got := isPlaylistURL(tc.in); got != tc.want {
			t.Errorf("isPlaylistURL(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
