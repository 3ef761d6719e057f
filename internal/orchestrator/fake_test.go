package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JakeFAU/image-crawler/internal/crawler"
	"github.com/JakeFAU/image-crawler/internal/progress"
	"github.com/JakeFAU/image-crawler/internal/sources"
)

type fakeAdapter struct {
	name        string
	max         int
	cands       []crawler.Candidate
	err         error
	panicMsg    string
	browser     bool
	onDiscover  func()
	gotCap      int
	gotPage     crawler.Page
	discovered  int
	resolveHook func(crawler.Candidate) string
}

func newFakeAdapter(name string, n int) *fakeAdapter {
	a := &fakeAdapter{name: name}
	for i := 0; i < n; i++ {
		a.cands = append(a.cands, crawler.Candidate{
			Source:     name,
			PreviewURL: fmt.Sprintf("https://%s.example/img-%d.jpg", name, i),
			Ordinal:    i,
		})
	}
	return a
}

func (a *fakeAdapter) Name() string      { return a.name }
func (a *fakeAdapter) MaxResults() int   { return a.max }
func (a *fakeAdapter) UsesBrowser() bool { return a.browser }

func (a *fakeAdapter) Discover(_ context.Context, _ string, limits crawler.DiscoverLimits, page crawler.Page) ([]crawler.Candidate, error) {
	a.discovered++
	a.gotCap = limits.Cap
	a.gotPage = page
	if a.onDiscover != nil {
		a.onDiscover()
	}
	if a.panicMsg != "" {
		panic(a.panicMsg)
	}
	out := a.cands
	if len(out) > limits.Cap {
		out = out[:limits.Cap]
	}
	return out, a.err
}

func (a *fakeAdapter) ResolveFullSize(_ context.Context, c crawler.Candidate, _ crawler.Page) string {
	if a.resolveHook != nil {
		return a.resolveHook(c)
	}
	return c.URL()
}

type staticBuilder struct {
	adapters []crawler.Adapter
}

func (b staticBuilder) Build(sources.Settings, *progress.Reporter) []crawler.Adapter {
	return b.adapters
}

type fakeFetcher struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.FetchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail[req.URL] {
		return crawler.FetchResponse{}, errors.New("connection reset")
	}
	return crawler.FetchResponse{
		URL:         req.URL,
		StatusCode:  http.StatusOK,
		ContentType: "image/jpeg",
		Body:        []byte("img:" + req.URL),
	}, nil
}

type fakeSession struct {
	closed   bool
	closeErr error
}

type stubPage struct{ crawler.Page }

func (s *fakeSession) Page() crawler.Page { return stubPage{} }
func (s *fakeSession) Close() error {
	s.closed = true
	return s.closeErr
}

type fakeLauncher struct {
	session  *fakeSession
	err      error
	launches int
	headless bool
}

func (l *fakeLauncher) Launch(_ context.Context, headless bool) (crawler.Session, error) {
	l.launches++
	l.headless = headless
	if l.err != nil {
		return nil, l.err
	}
	return l.session, nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fixedIDs struct{ id uuid.UUID }

func (f fixedIDs) NewRunID() (uuid.UUID, error) { return f.id, nil }

type recordingEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (r *recordingEmitter) Emit(evt progress.Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

func (r *recordingEmitter) byStage(stage progress.Stage) []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []progress.Event
	for _, evt := range r.events {
		if evt.Stage == stage {
			out = append(out, evt)
		}
	}
	return out
}

func (r *recordingEmitter) states() []crawler.RunState {
	var out []crawler.RunState
	for _, evt := range r.byStage(progress.StageState) {
		out = append(out, evt.State)
	}
	return out
}
