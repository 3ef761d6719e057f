package crawler

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Adapter is one image source. Hand-written sources and the declarative
// scraping engine both satisfy it.
type Adapter interface {
	// Name is the configured source name used for stats and filenames.
	Name() string
	// MaxResults is the source's own cap; zero defers to the run limits.
	MaxResults() int
	// Discover returns candidates in discovery order, at most limits.Cap.
	// On cancellation it returns whatever was found so far with the error.
	Discover(ctx context.Context, query string, limits DiscoverLimits, page Page) ([]Candidate, error)
	// ResolveFullSize maps a candidate to its best full-resolution URL. It is
	// total: failures degrade to the best URL already known.
	ResolveFullSize(ctx context.Context, candidate Candidate, page Page) string
}

// BrowserUser is implemented by adapters that drive the shared page.
type BrowserUser interface {
	UsesBrowser() bool
}

// DimensionProber is implemented by adapters that know image dimensions
// before the bytes are fetched.
type DimensionProber interface {
	ProbeDimensions(ctx context.Context, rawURL string) (width, height int, ok bool)
}

// Page is the single browser tab shared across sources. Only one adapter
// holds it at a time and none may retain state across calls.
type Page interface {
	Navigate(ctx context.Context, rawURL string) error
	Location(ctx context.Context) (string, error)
	Visible(ctx context.Context, selector string) bool
	Click(ctx context.Context, selector string) error
	// ClickNth clicks the index-th match of selector, or the first match of
	// descendant inside it when descendant is non-empty.
	ClickNth(ctx context.Context, selector string, index int, descendant string) error
	WaitVisible(ctx context.Context, selector string) error
	Elements(ctx context.Context, query ElementQuery) ([]Element, error)
	ScrollToBottom(ctx context.Context) error
	Dismiss(ctx context.Context) error
}

// Session owns the browser process behind a Page.
type Session interface {
	Page() Page
	Close() error
}

// Launcher opens browser sessions.
type Launcher interface {
	Launch(ctx context.Context, headless bool) (Session, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Hasher computes content digests for deduplication.
type Hasher interface {
	Hash(data []byte) (string, error)
	HashFile(path string) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Sleeper pauses for d or until ctx is done, whichever comes first.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewRunID() (uuid.UUID, error)
}

// Publisher pushes a JSON payload to a named topic and returns the message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// ImageWriter persists accepted image bytes under a collision-free name.
type ImageWriter interface {
	// Write stores data as filename or a suffixed variant and returns the
	// path actually written. A failed write leaves no partial file behind.
	Write(ctx context.Context, filename string, data []byte) (string, error)
}

// Mirror copies accepted images to secondary storage.
type Mirror interface {
	Upload(ctx context.Context, name, contentType string, data []byte) (string, error)
}
