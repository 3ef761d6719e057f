package scrape

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/JakeFAU/image-crawler/internal/crawler"
)

// fakePage serves scripted element snapshots. Each reveal (scroll or a click
// on moreSelector) advances to the next snapshot of the primary selector.
type fakePage struct {
	mu sync.Mutex

	location      string
	navErr        error
	navigated     []string
	visible       map[string]bool
	clicked       []string
	clickedNth    []int
	clickedWithin []string
	clickNthErr   error
	moreSelector  string
	snapshots     [][]crawler.Element
	reveal        int
	scrolls       int
	bySelector    map[string][]crawler.Element
	waitErr       map[string]error
	dismissed     int
}

func (f *fakePage) Navigate(_ context.Context, rawURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, rawURL)
	if f.navErr != nil {
		return f.navErr
	}
	f.location = rawURL
	return nil
}

func (f *fakePage) Location(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.location, nil
}

func (f *fakePage) Visible(_ context.Context, selector string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visible[selector]
}

func (f *fakePage) Click(_ context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicked = append(f.clicked, selector)
	if selector == f.moreSelector {
		f.reveal++
	}
	return nil
}

func (f *fakePage) ClickNth(_ context.Context, selector string, index int, descendant string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clicked = append(f.clicked, selector)
	f.clickedWithin = append(f.clickedWithin, descendant)
	f.clickedNth = append(f.clickedNth, index)
	return f.clickNthErr
}

func (f *fakePage) WaitVisible(_ context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.waitErr[selector]; err != nil {
		return err
	}
	if _, ok := f.bySelector[selector]; !ok {
		return context.DeadlineExceeded
	}
	return nil
}

func (f *fakePage) Elements(_ context.Context, query crawler.ElementQuery) ([]crawler.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if els, ok := f.bySelector[query.Selector]; ok {
		return els, nil
	}
	if len(f.snapshots) == 0 {
		return nil, errors.New("no snapshots")
	}
	idx := f.reveal
	if idx >= len(f.snapshots) {
		idx = len(f.snapshots) - 1
	}
	return f.snapshots[idx], nil
}

func (f *fakePage) ScrollToBottom(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scrolls++
	f.reveal++
	return nil
}

func (f *fakePage) Dismiss(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dismissed++
	return nil
}

// fakeSleeper records requested delays without waiting. onSleep runs before
// the context check, letting tests cancel mid-pagination.
type fakeSleeper struct {
	slept   []time.Duration
	onSleep func(n int)
}

func (s *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.slept = append(s.slept, d)
	if s.onSleep != nil {
		s.onSleep(len(s.slept))
	}
	return ctx.Err()
}

func img(attrs ...string) crawler.Element {
	el := crawler.Element{Attrs: map[string]string{}}
	for i := 0; i+1 < len(attrs); i += 2 {
		el.Attrs[attrs[i]] = attrs[i+1]
	}
	return el
}

func urls(cands []crawler.Candidate) []string {
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.URL())
	}
	return out
}
