package scrape

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/image-crawler/internal/crawler"
)

func newTestAdapter(t *testing.T, spec Spec, sleeper *fakeSleeper) *Adapter {
	t.Helper()
	if sleeper == nil {
		sleeper = &fakeSleeper{}
	}
	a, err := New("example", 0, spec, Options{Sleeper: sleeper})
	require.NoError(t, err)
	return a
}

func limits(n int) crawler.DiscoverLimits {
	return crawler.DiscoverLimits{Cap: n, Timeout: time.Second}
}

func TestNewRejectsInvalidSpec(t *testing.T) {
	t.Parallel()

	_, err := New("broken", 0, Spec{}, Options{})
	require.ErrorIs(t, err, ErrInvalidSpec)
	require.ErrorContains(t, err, "source broken")
}

func TestDiscoverAttributeExtraction(t *testing.T) {
	t.Parallel()

	spec := validSpec()
	spec.Extraction.Attributes = []string{"data-src", "srcset", "src"}
	spec.Extraction.TitleAttribute = "alt"
	spec.ConsentSelectors = []string{"#missing", "#accept", "#also-visible"}
	page := &fakePage{
		visible: map[string]bool{"#accept": true, "#also-visible": true},
		snapshots: [][]crawler.Element{{
			img("src", "/small/a.jpg", "alt", " Fox "),
			img("srcset", "/b-1x.jpg 1x, /b-2x.jpg 2x"),
			img("src", "data:image/gif;base64,AAAA"),
			img("data-src", "https://cdn.example/a.jpg#frag"),
			img("src", "/small/a.jpg"),
			img(),
		}},
	}
	a := newTestAdapter(t, spec, nil)

	got, err := a.Discover(context.Background(), "red fox", limits(10), page)
	require.NoError(t, err)
	require.Equal(t, []string{
		"https://img.example/small/a.jpg",
		"https://img.example/b-2x.jpg",
		"https://cdn.example/a.jpg",
	}, urls(got))
	require.Equal(t, "Fox", got[0].Title)
	require.Equal(t, "example", got[0].Source)
	require.Equal(t, 3, got[2].Ordinal)
	require.Equal(t, []string{"#accept"}, page.clicked)
	require.Equal(t, []string{"https://img.example/search?q=red+fox&safe=off&n=10"}, page.navigated)
}

func TestDiscoverTruncatesToCap(t *testing.T) {
	t.Parallel()

	page := &fakePage{snapshots: [][]crawler.Element{{
		img("src", "https://x.example/1.jpg"),
		img("src", "https://x.example/2.jpg"),
		img("src", "https://x.example/3.jpg"),
	}}}
	a := newTestAdapter(t, validSpec(), nil)

	got, err := a.Discover(context.Background(), "q", limits(2), page)
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = a.Discover(context.Background(), "q", limits(0), page)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestDiscoverJSONAttributeFallback(t *testing.T) {
	t.Parallel()

	elements := []crawler.Element{
		{Attrs: map[string]string{"m": `{"murl":"https://full.example/1.jpg","t":"one"}`}},
		{
			Attrs:      map[string]string{"m": `{"other":"x"}`},
			Descendant: map[string]string{"src": "https://thumb.example/2.jpg"},
		},
		{
			Attrs:      map[string]string{"m": `not json`},
			Descendant: map[string]string{"src": "https://thumb.example/3.jpg"},
		},
	}
	base := validSpec()
	base.Extraction = ExtractionSpec{
		Kind:          ExtractJSONAttribute,
		JSONAttribute: "m",
		JSONPath:      "murl",
		Descendant:    "img",
	}

	t.Run("with fallback", func(t *testing.T) {
		t.Parallel()
		spec := base
		spec.Extraction.FallbackToNested = true
		a := newTestAdapter(t, spec, nil)
		got, err := a.Discover(context.Background(), "q", limits(10), &fakePage{snapshots: [][]crawler.Element{elements}})
		require.NoError(t, err)
		require.Equal(t, []string{
			"https://full.example/1.jpg",
			"https://thumb.example/2.jpg",
			"https://thumb.example/3.jpg",
		}, urls(got))
	})

	t.Run("without fallback", func(t *testing.T) {
		t.Parallel()
		a := newTestAdapter(t, base, nil)
		got, err := a.Discover(context.Background(), "q", limits(10), &fakePage{snapshots: [][]crawler.Element{elements}})
		require.NoError(t, err)
		require.Equal(t, []string{"https://full.example/1.jpg"}, urls(got))
	})
}

func TestWalkPathIndexesArrays(t *testing.T) {
	t.Parallel()

	doc := map[string]any{"images": []any{map[string]any{"url": "a"}, map[string]any{"url": "b"}}}
	got, ok := walkPath(doc, "images.1.url")
	require.True(t, ok)
	require.Equal(t, "b", got)
	_, ok = walkPath(doc, "images.5.url")
	require.False(t, ok)
	_, ok = walkPath(doc, "images")
	require.False(t, ok)
}

func TestDiscoverLinkCollectionFilters(t *testing.T) {
	t.Parallel()

	spec := validSpec()
	spec.PrimarySelector = "a.tile"
	spec.Extraction = ExtractionSpec{
		Kind: ExtractLinkCollection,
		Filters: URLFilters{
			Prefixes: []string{"https://img.example/photo/"},
			Exclude:  []string{"sponsored"},
		},
	}
	page := &fakePage{snapshots: [][]crawler.Element{{
		img("href", "/photo/1"),
		img("href", "/photo/sponsored-2"),
		img("href", "/about"),
		img("href", "javascript:void(0)"),
		img("href", "/photo/3"),
	}}}
	a := newTestAdapter(t, spec, nil)

	got, err := a.Discover(context.Background(), "q", limits(10), page)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "https://img.example/photo/1", got[0].DetailURL)
	require.Empty(t, got[0].PreviewURL)
	require.Equal(t, "https://img.example/photo/3", got[1].DetailURL)
}

func TestDiscoverKeepsCommasInSingleValueAttributes(t *testing.T) {
	t.Parallel()

	links := validSpec()
	links.PrimarySelector = "a.tile"
	links.Extraction = ExtractionSpec{Kind: ExtractLinkCollection}
	page := &fakePage{snapshots: [][]crawler.Element{{
		img("href", "/photo/paris, france-12"),
	}}}
	got, err := newTestAdapter(t, links, nil).Discover(context.Background(), "q", limits(10), page)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "https://img.example/photo/paris,%20france-12", got[0].DetailURL)

	attrs := validSpec()
	attrs.Extraction.Attributes = []string{"src"}
	page = &fakePage{snapshots: [][]crawler.Element{{
		img("src", "/img/a, b.jpg"),
	}}}
	got, err = newTestAdapter(t, attrs, nil).Discover(context.Background(), "q", limits(10), page)
	require.NoError(t, err)
	require.Equal(t, []string{"https://img.example/img/a,%20b.jpg"}, urls(got))
}

func TestDiscoverAutoScrollStopsAfterNoProgress(t *testing.T) {
	t.Parallel()

	first := []crawler.Element{img("src", "https://x.example/1.jpg"), img("src", "https://x.example/2.jpg")}
	second := append(append([]crawler.Element(nil), first...), img("src", "https://x.example/3.jpg"))
	spec := validSpec()
	spec.Scroll = ScrollSpec{Strategy: ScrollAuto, MaxSteps: 10, DelayMs: 50, NoProgressRetries: 2}
	sleeper := &fakeSleeper{}
	page := &fakePage{snapshots: [][]crawler.Element{first, second}}
	a := newTestAdapter(t, spec, sleeper)

	got, err := a.Discover(context.Background(), "q", limits(10), page)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, 3, page.scrolls)
	require.Equal(t, []time.Duration{50 * time.Millisecond, 50 * time.Millisecond, 50 * time.Millisecond}, sleeper.slept)
}

func TestDiscoverAutoScrollStopsAtTarget(t *testing.T) {
	t.Parallel()

	spec := validSpec()
	spec.Scroll = ScrollSpec{Strategy: ScrollAuto}
	page := &fakePage{snapshots: [][]crawler.Element{
		{img("src", "https://x.example/1.jpg")},
		{img("src", "https://x.example/1.jpg"), img("src", "https://x.example/2.jpg"), img("src", "https://x.example/3.jpg")},
	}}
	a := newTestAdapter(t, spec, nil)

	got, err := a.Discover(context.Background(), "q", limits(2), page)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, 1, page.scrolls)
}

func TestDiscoverClickMoreStopsWhenButtonDisappears(t *testing.T) {
	t.Parallel()

	spec := validSpec()
	spec.Scroll = ScrollSpec{Strategy: ScrollClickMore, MoreSelector: "button.more"}
	page := &fakePage{
		moreSelector: "button.more",
		visible:      map[string]bool{},
		snapshots:    [][]crawler.Element{{img("src", "https://x.example/1.jpg")}},
	}
	a := newTestAdapter(t, spec, nil)

	got, err := a.Discover(context.Background(), "q", limits(5), page)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Empty(t, page.clicked)
}

func TestDiscoverCancelledMidScrollReturnsPartial(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	spec := validSpec()
	spec.Scroll = ScrollSpec{Strategy: ScrollAuto}
	sleeper := &fakeSleeper{onSleep: func(int) { cancel() }}
	page := &fakePage{snapshots: [][]crawler.Element{
		{img("src", "https://x.example/1.jpg")},
		{img("src", "https://x.example/1.jpg"), img("src", "https://x.example/2.jpg")},
	}}
	a := newTestAdapter(t, spec, sleeper)

	got, err := a.Discover(ctx, "q", limits(5), page)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []string{"https://x.example/1.jpg"}, urls(got))
}

func TestDiscoverNavigationFailure(t *testing.T) {
	t.Parallel()

	page := &fakePage{navErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	a := newTestAdapter(t, validSpec(), nil)

	got, err := a.Discover(context.Background(), "q", limits(5), page)
	require.ErrorContains(t, err, "ERR_NAME_NOT_RESOLVED")
	require.Empty(t, got)
}

func TestDiscoverWithoutPage(t *testing.T) {
	t.Parallel()

	a := newTestAdapter(t, validSpec(), nil)
	_, err := a.Discover(context.Background(), "q", limits(5), nil)
	require.ErrorIs(t, err, crawler.ErrNoPage)
	require.True(t, a.UsesBrowser())
}
