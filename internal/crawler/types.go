// Package crawler defines core types shared across subsystems.
package crawler

import (
	"net/http"
	"time"
)

// RunState represents the lifecycle state of one crawl run.
type RunState string

// Run states. Completed, Cancelled, and Failed are terminal.
const (
	StateIdle         RunState = "idle"
	StateInitializing RunState = "initializing"
	StateRunning      RunState = "running"
	StateCompleted    RunState = "completed"
	StateCancelled    RunState = "cancelled"
	StateFailed       RunState = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s RunState) Terminal() bool {
	switch s {
	case StateCompleted, StateCancelled, StateFailed:
		return true
	default:
		return false
	}
}

// Limits captures the knobs that bound a single run.
type Limits struct {
	// GlobalMaxDownloads caps accepted images across every source.
	GlobalMaxDownloads int `json:"global_max_downloads" mapstructure:"max_downloads"`
	// PerSourceMaxResults caps each source unless the source overrides it.
	PerSourceMaxResults int `json:"per_source_max_results" mapstructure:"per_source_max"`
	// MinWidth and MinHeight are pixel floors; zero disables the check.
	MinWidth  int `json:"min_width" mapstructure:"min_width"`
	MinHeight int `json:"min_height" mapstructure:"min_height"`
	// MinByteSize rejects images smaller than this many bytes.
	MinByteSize int64 `json:"min_byte_size" mapstructure:"min_bytes"`
	// AllowedExtensions is ordered; the first entry is the default extension.
	AllowedExtensions []string `json:"allowed_extensions" mapstructure:"extensions"`
	// TimeoutMs bounds every navigation, wait, and fetch.
	TimeoutMs  int  `json:"timeout_ms" mapstructure:"timeout_ms"`
	SafeSearch bool `json:"safe_search" mapstructure:"safe_search"`
	Headless   bool `json:"headless" mapstructure:"headless"`
}

// Timeout converts TimeoutMs into a duration, defaulting to 15s.
func (l Limits) Timeout() time.Duration {
	if l.TimeoutMs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(l.TimeoutMs) * time.Millisecond
}

// DefaultExtension is the extension applied when a URL carries none we recognise.
func (l Limits) DefaultExtension() string {
	if len(l.AllowedExtensions) == 0 {
		return "jpg"
	}
	return l.AllowedExtensions[0]
}

// DiscoverLimits is the per-source slice of Limits handed to an adapter.
type DiscoverLimits struct {
	// Cap is min(remaining global budget, source max results).
	Cap        int
	SafeSearch bool
	Timeout    time.Duration
}

// Candidate is a discovered, not-yet-validated reference to an image.
type Candidate struct {
	Source       string
	PreviewURL   string
	DetailURL    string
	ThumbnailURL string
	Title        string
	// Ordinal is the element's position among the matched elements at
	// extraction time; lightbox resolution uses it to re-locate the element.
	Ordinal int
}

// URL returns the preview URL, or the detail page URL when no preview exists.
func (c Candidate) URL() string {
	if c.PreviewURL != "" {
		return c.PreviewURL
	}
	return c.DetailURL
}

// SourceStats tracks per-source counters for one run.
type SourceStats struct {
	Name       string `json:"name"`
	Requested  int    `json:"requested"`
	Discovered int    `json:"discovered"`
	Downloaded int    `json:"downloaded"`
	Skipped    int    `json:"skipped"`
	Errored    int    `json:"errored"`
}

// RunStats is the terminal summary of a run. Only the orchestrator mutates it.
type RunStats struct {
	RunID      string        `json:"run_id"`
	Query      string        `json:"query"`
	State      RunState      `json:"state"`
	Sources    []SourceStats `json:"sources"`
	Totals     SourceStats   `json:"totals"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Error      string        `json:"error,omitempty"`
}

// Source returns a pointer to the named source entry, appending one if absent.
func (s *RunStats) Source(name string) *SourceStats {
	for i := range s.Sources {
		if s.Sources[i].Name == name {
			return &s.Sources[i]
		}
	}
	s.Sources = append(s.Sources, SourceStats{Name: name})
	return &s.Sources[len(s.Sources)-1]
}

// Recount rebuilds Totals from the per-source entries.
func (s *RunStats) Recount() {
	totals := SourceStats{Name: "total"}
	for _, src := range s.Sources {
		totals.Requested += src.Requested
		totals.Discovered += src.Discovered
		totals.Downloaded += src.Downloaded
		totals.Skipped += src.Skipped
		totals.Errored += src.Errored
	}
	s.Totals = totals
}

// Clone returns a deep copy safe to hand to event consumers.
func (s RunStats) Clone() RunStats {
	cp := s
	cp.Sources = append([]SourceStats(nil), s.Sources...)
	return cp
}

// FetchRequest captures everything needed to fetch image bytes or an API document.
type FetchRequest struct {
	URL     string
	Headers http.Header
	Timeout time.Duration
	// MaxBytes caps the response body; zero uses the fetcher default.
	MaxBytes int
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL         string
	StatusCode  int
	Headers     http.Header
	Body        []byte
	Duration    time.Duration
	ContentType string
}

// OK reports whether the transport result is a success status.
func (r FetchResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// ElementQuery describes one batched DOM read.
type ElementQuery struct {
	// Selector matches the elements to read, in document order.
	Selector string
	// Attributes are read from each matched element.
	Attributes []string
	// Descendant, when set, selects the first matching descendant of each
	// element; DescendantAttributes are read from it.
	Descendant           string
	DescendantAttributes []string
}

// Element is the attribute snapshot of one matched element.
type Element struct {
	Attrs      map[string]string
	Descendant map[string]string
}

// Attr returns the first non-empty value among names on the element itself.
func (e Element) Attr(names ...string) string {
	return firstNonEmpty(e.Attrs, names)
}

// DescendantAttr returns the first non-empty value among names on the descendant.
func (e Element) DescendantAttr(names ...string) string {
	return firstNonEmpty(e.Descendant, names)
}

func firstNonEmpty(attrs map[string]string, names []string) string {
	for _, name := range names {
		if v := attrs[name]; v != "" {
			return v
		}
	}
	return ""
}
