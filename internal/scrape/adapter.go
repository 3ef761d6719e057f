package scrape

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/image-crawler/internal/clock/system"
	"github.com/JakeFAU/image-crawler/internal/crawler"
	"github.com/JakeFAU/image-crawler/internal/progress"
)

// Options carries the collaborators shared by every adapter in a run.
type Options struct {
	Reporter *progress.SourceReporter
	Sleeper  crawler.Sleeper
	Logger   *zap.Logger
}

// Adapter is the data-driven source: one instance per configured name.
type Adapter struct {
	name       string
	maxResults int
	spec       Spec
	reporter   *progress.SourceReporter
	sleeper    crawler.Sleeper
	logger     *zap.Logger
}

var (
	_ crawler.Adapter     = (*Adapter)(nil)
	_ crawler.BrowserUser = (*Adapter)(nil)
)

// New validates spec and binds it to name.
func New(name string, maxResults int, spec Spec, opts Options) (*Adapter, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("source %s: %w", name, err)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sleeper := opts.Sleeper
	if sleeper == nil {
		sleeper = system.New()
	}
	return &Adapter{
		name:       name,
		maxResults: maxResults,
		spec:       spec.Normalized(),
		reporter:   opts.Reporter,
		sleeper:    sleeper,
		logger:     logger.With(zap.String("source", name)),
	}, nil
}

// Name returns the configured source name.
func (a *Adapter) Name() string { return a.name }

// MaxResults returns the per-source override, or zero.
func (a *Adapter) MaxResults() int { return a.maxResults }

// UsesBrowser is always true for scraped sources.
func (a *Adapter) UsesBrowser() bool { return true }

// Spec returns the normalized spec the adapter runs with.
func (a *Adapter) Spec() Spec { return a.spec }

// Discover loads the search page, reveals more results per the scroll
// strategy, and returns at most limits.Cap candidates.
func (a *Adapter) Discover(
	ctx context.Context,
	query string,
	limits crawler.DiscoverLimits,
	page crawler.Page,
) ([]crawler.Candidate, error) {
	if page == nil {
		return nil, fmt.Errorf("discover %s: %w", a.name, crawler.ErrNoPage)
	}
	if limits.Cap <= 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("discover %s: %w", a.name, err)
	}
	searchURL := SearchURL(a.spec, query, limits)
	if err := a.navigate(ctx, page, searchURL, limits.Timeout); err != nil {
		return nil, err
	}
	base, err := page.Location(ctx)
	if err != nil || base == "" {
		base = searchURL
	}
	a.acceptConsent(ctx, page)

	col := newCollector(a.name, base, a.spec.Extraction)
	if _, err := a.extractMore(ctx, page, col); err != nil {
		return nil, err
	}
	if a.spec.Scroll.Strategy != ScrollNone && len(col.candidates) < limits.Cap {
		if err := a.paginate(ctx, page, col, limits.Cap); err != nil {
			return truncate(col.candidates, limits.Cap), err
		}
	}
	found := truncate(col.candidates, limits.Cap)
	a.reporter.Log(progress.LevelInfo, fmt.Sprintf("found %d candidates", len(found)))
	return found, nil
}

func (a *Adapter) navigate(ctx context.Context, page crawler.Page, target string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := page.Navigate(navCtx, target); err != nil {
		return fmt.Errorf("navigate %s: %w", target, err)
	}
	return nil
}

// acceptConsent clicks the first visible consent control, if any. Missing
// banners are normal.
func (a *Adapter) acceptConsent(ctx context.Context, page crawler.Page) {
	for _, selector := range a.spec.ConsentSelectors {
		if !page.Visible(ctx, selector) {
			continue
		}
		if err := page.Click(ctx, selector); err != nil {
			a.debug("consent click failed", err)
		}
		return
	}
}

func (a *Adapter) extractMore(ctx context.Context, page crawler.Page, col *collector) (int, error) {
	elements, err := page.Elements(ctx, elementQuery(a.spec.PrimarySelector, a.spec.Extraction))
	if err != nil {
		return 0, fmt.Errorf("extract %s: %w", a.spec.PrimarySelector, err)
	}
	return col.add(elements), nil
}

// paginate repeats step, wait, and re-extract until the target is met, the
// step budget runs out, or too many steps in a row add nothing.
func (a *Adapter) paginate(ctx context.Context, page crawler.Page, col *collector, target int) error {
	scroll := a.spec.Scroll
	delay := time.Duration(scroll.DelayMs) * time.Millisecond
	stale := 0
	for step := 0; step < scroll.MaxSteps && len(col.candidates) < target; step++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("paginate %s: %w", a.name, err)
		}
		more, err := a.step(ctx, page)
		if err != nil {
			a.debug("scroll step failed", err)
		}
		if !more {
			break
		}
		if err := a.sleeper.Sleep(ctx, delay); err != nil {
			return fmt.Errorf("paginate %s: %w", a.name, err)
		}
		added, err := a.extractMore(ctx, page, col)
		if err != nil {
			a.debug("re-extract failed", err)
		}
		if added == 0 {
			stale++
			if stale >= scroll.NoProgressRetries {
				break
			}
			continue
		}
		stale = 0
	}
	return nil
}

// step reveals more results once. It reports false when nothing more can be
// revealed, such as a missing "more" button.
func (a *Adapter) step(ctx context.Context, page crawler.Page) (bool, error) {
	switch a.spec.Scroll.Strategy {
	case ScrollAuto:
		return true, page.ScrollToBottom(ctx)
	case ScrollClickMore:
		if !page.Visible(ctx, a.spec.Scroll.MoreSelector) {
			return false, nil
		}
		return true, page.Click(ctx, a.spec.Scroll.MoreSelector)
	default:
		return false, nil
	}
}

// ResolveFullSize dispatches on the configured resolution kind.
func (a *Adapter) ResolveFullSize(ctx context.Context, cand crawler.Candidate, page crawler.Page) string {
	resolve, ok := resolvers[a.spec.FullSize.Kind]
	if !ok {
		return cand.URL()
	}
	return resolve(ctx, a, cand, page)
}

func (a *Adapter) debug(msg string, err error) {
	a.logger.Debug(msg, zap.Error(err))
}

func truncate(cands []crawler.Candidate, n int) []crawler.Candidate {
	if len(cands) > n {
		return cands[:n]
	}
	return cands
}
