package sources

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"

	"github.com/JakeFAU/image-crawler/internal/crawler"
	"github.com/JakeFAU/image-crawler/internal/progress"
)

type fakeFetcher struct {
	mu       sync.Mutex
	body     string
	status   int
	err      error
	requests []crawler.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return crawler.FetchResponse{}, f.err
	}
	status := f.status
	if status == 0 {
		status = http.StatusOK
	}
	return crawler.FetchResponse{URL: req.URL, StatusCode: status, Body: []byte(f.body)}, nil
}

func (f *fakeFetcher) lastQuery() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return nil
	}
	u, err := url.Parse(f.requests[len(f.requests)-1].URL)
	if err != nil {
		return nil
	}
	return u.Query()
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recordingEmitter) errors() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []progress.Event
	for _, evt := range r.events {
		if evt.Stage == progress.StageError {
			out = append(out, evt)
		}
	}
	return out
}

type stubAdapter struct {
	name string
	max  int
}

func (s *stubAdapter) Name() string    { return s.name }
func (s *stubAdapter) MaxResults() int { return s.max }
func (s *stubAdapter) Discover(context.Context, string, crawler.DiscoverLimits, crawler.Page) ([]crawler.Candidate, error) {
	return nil, errors.New("not used")
}
func (s *stubAdapter) ResolveFullSize(_ context.Context, c crawler.Candidate, _ crawler.Page) string {
	return c.URL()
}
