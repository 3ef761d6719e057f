package scrape

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/image-crawler/internal/crawler"
)

const dismissTimeout = 2 * time.Second

// resolveFunc maps a candidate to a full-size URL. Every kind has one and
// each falls back to the best URL already known instead of failing.
type resolveFunc func(ctx context.Context, a *Adapter, cand crawler.Candidate, page crawler.Page) string

var resolvers = map[ResolutionKind]resolveFunc{
	ResolveDirect:             resolveDirect,
	ResolveLightboxClick:      resolveLightbox,
	ResolveDetailPageNavigate: resolveDetailPage,
	ResolveStripQueryParams:   resolveStripParams,
	ResolveDecodeQueryParam:   resolveDecodeParam,
}

func resolveDirect(_ context.Context, _ *Adapter, cand crawler.Candidate, _ crawler.Page) string {
	return cand.URL()
}

// resolveLightbox opens the candidate's preview in place and reads the
// enlarged image, closing the overlay afterwards.
func resolveLightbox(ctx context.Context, a *Adapter, cand crawler.Candidate, page crawler.Page) string {
	fallback := cand.URL()
	if page == nil || ctx.Err() != nil {
		return fallback
	}
	res := a.spec.FullSize
	ctx, cancel := context.WithTimeout(ctx, time.Duration(res.TimeoutMs)*time.Millisecond)
	defer cancel()

	// Ordinal indexes the primary matches; click_selector narrows the click
	// target to a descendant of that match.
	if err := page.ClickNth(ctx, a.spec.PrimarySelector, cand.Ordinal, res.ClickSelector); err != nil {
		a.debug("lightbox click failed", err)
		return fallback
	}
	defer func() {
		dismissCtx, stop := context.WithTimeout(context.WithoutCancel(ctx), dismissTimeout)
		defer stop()
		if err := page.Dismiss(dismissCtx); err != nil {
			a.debug("lightbox dismiss failed", err)
		}
	}()
	if got, ok := readResolved(ctx, a, page, res); ok {
		return got
	}
	return fallback
}

// resolveDetailPage visits the candidate's detail page and reads the main
// image there. The detail page URL is the fallback.
func resolveDetailPage(ctx context.Context, a *Adapter, cand crawler.Candidate, page crawler.Page) string {
	target := cand.DetailURL
	if target == "" {
		target = cand.URL()
	}
	if page == nil || target == "" || ctx.Err() != nil {
		return target
	}
	res := a.spec.FullSize
	ctx, cancel := context.WithTimeout(ctx, time.Duration(res.TimeoutMs)*time.Millisecond)
	defer cancel()

	if err := page.Navigate(ctx, target); err != nil {
		a.debug("detail page navigation failed", err)
		return target
	}
	if got, ok := readResolved(ctx, a, page, res); ok {
		return got
	}
	return target
}

func readResolved(ctx context.Context, a *Adapter, page crawler.Page, res ResolutionSpec) (string, bool) {
	if err := page.WaitVisible(ctx, res.WaitSelector); err != nil {
		a.debug("full-size wait failed", err)
		return "", false
	}
	elements, err := page.Elements(ctx, crawler.ElementQuery{
		Selector:   res.WaitSelector,
		Attributes: res.Attributes,
	})
	if err != nil || len(elements) == 0 {
		a.debug("full-size read failed", err)
		return "", false
	}
	raw, ok := pickURL(elements[0].Attrs, res.Attributes)
	if !ok {
		return "", false
	}
	base, err := page.Location(ctx)
	if err != nil {
		base = ""
	}
	return crawler.AbsoluteURL(base, raw)
}

// resolveStripParams drops the named parameters from the raw query text,
// leaving every other parameter byte-for-byte as it was.
func resolveStripParams(_ context.Context, a *Adapter, cand crawler.Candidate, _ crawler.Page) string {
	raw := cand.URL()
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	drop := make(map[string]struct{}, len(a.spec.FullSize.Params))
	for _, name := range a.spec.FullSize.Params {
		drop[name] = struct{}{}
	}
	kept := make([]string, 0, strings.Count(u.RawQuery, "&")+1)
	for _, pair := range strings.Split(u.RawQuery, "&") {
		if pair == "" {
			continue
		}
		key, _, _ := strings.Cut(pair, "=")
		if name, err := url.QueryUnescape(key); err == nil {
			key = name
		}
		if _, ok := drop[key]; ok {
			continue
		}
		kept = append(kept, pair)
	}
	u.RawQuery = strings.Join(kept, "&")
	return u.String()
}

// resolveDecodeParam unwraps redirect-style URLs that carry the real image
// location in one query parameter. Query parsing decodes the value once; a
// second pass runs only for double-encoded values that still lack a scheme,
// and never turns '+' into a space.
func resolveDecodeParam(_ context.Context, a *Adapter, cand crawler.Candidate, _ crawler.Page) string {
	raw := cand.URL()
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	value := u.Query().Get(a.spec.FullSize.ParamName)
	if value == "" {
		return raw
	}
	if !strings.Contains(value, "://") && strings.Contains(value, "%") {
		if decoded, err := url.PathUnescape(value); err == nil {
			value = decoded
		}
	}
	if abs, ok := crawler.AbsoluteURL(raw, value); ok {
		return abs
	}
	return raw
}
