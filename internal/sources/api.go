package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/JakeFAU/image-crawler/internal/crawler"
)

const maxAPIBodyBytes = 8 << 20

// apiSource holds what the JSON API adapters share: identity, the fetcher,
// and dimensions learned during discovery.
type apiSource struct {
	name       string
	maxResults int
	fetcher    crawler.Fetcher
	userAgent  string

	mu   sync.Mutex
	dims map[string][2]int
}

func newAPISource(name string, cfg SourceConfig, deps Deps) (*apiSource, error) {
	if deps.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	return &apiSource{
		name:       name,
		maxResults: cfg.MaxResults,
		fetcher:    deps.Fetcher,
		userAgent:  cfg.Tunable("user_agent", ""),
		dims:       make(map[string][2]int),
	}, nil
}

// Name returns the configured source name.
func (s *apiSource) Name() string { return s.name }

// MaxResults returns the configured cap.
func (s *apiSource) MaxResults() int { return s.maxResults }

// UsesBrowser reports false: API sources never touch the page.
func (s *apiSource) UsesBrowser() bool { return false }

// ResolveFullSize returns the URL unchanged; the API already answers with
// original files.
func (s *apiSource) ResolveFullSize(_ context.Context, cand crawler.Candidate, _ crawler.Page) string {
	return cand.URL()
}

// ProbeDimensions reports the size the API advertised for rawURL.
func (s *apiSource) ProbeDimensions(_ context.Context, rawURL string) (int, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dims[rawURL]
	if !ok || d[0] <= 0 || d[1] <= 0 {
		return 0, 0, false
	}
	return d[0], d[1], true
}

func (s *apiSource) remember(rawURL string, width, height int) {
	s.mu.Lock()
	s.dims[rawURL] = [2]int{width, height}
	s.mu.Unlock()
}

func (s *apiSource) getJSON(ctx context.Context, rawURL string, limits crawler.DiscoverLimits, out any) error {
	headers := http.Header{"Accept": {"application/json"}}
	if s.userAgent != "" {
		headers.Set("User-Agent", s.userAgent)
	}
	resp, err := s.fetcher.Fetch(ctx, crawler.FetchRequest{
		URL:      rawURL,
		Headers:  headers,
		Timeout:  limits.Timeout,
		MaxBytes: maxAPIBodyBytes,
	})
	if err != nil {
		return fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	if !resp.OK() {
		return fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}
