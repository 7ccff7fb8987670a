package player

import "context"

// Kind classifies what a playback request points at.
type Kind int

const (
	// KindStream is a remote media item: a URL or search string that needs
	// full resolution into a streamable URL right before playback.
	KindStream Kind = iota

	// KindFile is a local artifact (e.g., a synthesized quote narration)
	// that can be fed to the sink directly.
	KindFile
)

// String returns the human-readable name of the kind.
func (k Kind) String() string {
	switch k {
	case KindStream:
		return "stream"
	case KindFile:
		return "file"
	default:
		return "unknown"
	}
}

// Notifier delivers user-facing status messages to the context a request
// originated from (typically the text channel a command was issued in).
// Delivery is best-effort: implementations log failures and never return
// them, so a broken notification can never affect the playback loop.
type Notifier interface {
	Notify(ctx context.Context, msg string)
}

// NopNotifier is a [Notifier] that discards all messages.
type NopNotifier struct{}

// Notify implements [Notifier].
func (NopNotifier) Notify(context.Context, string) {}

// Request is one queued playback item. It is immutable once enqueued: the
// queue owns it until the session loop dequeues it, after which the loop
// owns it for the duration of playback.
type Request struct {
	// GuildID identifies the tenant the request belongs to.
	GuildID string

	// Locator is a URL or search string (KindStream) or a local file path
	// (KindFile).
	Locator string

	// Title is the display title when already known (quick resolution or
	// quote narration); the session falls back to the resolved title.
	Title string

	// Kind selects the resolution path.
	Kind Kind

	// Requester identifies who asked for the item, for status messages.
	Requester string

	// Notify receives status updates for this request. Never nil once the
	// request passes through the registry.
	Notify Notifier
}
