package headless

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/JakeFAU/image-crawler/internal/crawler"
)

// Page implements crawler.Page on a chromedp tab.
type Page struct {
	tabCtx     context.Context
	meta       *responseMeta
	navTimeout time.Duration
}

var _ crawler.Page = (*Page)(nil)

// run executes actions on the tab, bounded by ctx. Cancelling the derived
// context stops the actions without closing the tab.
func (p *Page) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(p.tabCtx)
	defer cancel()
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		defer cancelDeadline()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := ctx.Err(); err != nil {
		return err
	}
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads rawURL and fails on an HTTP error status for the document.
func (p *Page) Navigate(ctx context.Context, rawURL string) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.navTimeout)
		defer cancel()
	}
	p.meta.reset()
	if err := p.run(ctx, chromedp.Navigate(rawURL)); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if status, _, _ := p.meta.snapshot(); status >= http.StatusBadRequest {
		return fmt.Errorf("navigate: document status %d", status)
	}
	return nil
}

// Location returns the tab's current URL.
func (p *Page) Location(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

// Visible reports whether selector matches a rendered element right now.
func (p *Page) Visible(ctx context.Context, selector string) bool {
	var visible bool
	if err := p.run(ctx, chromedp.Evaluate(callScript(visibleJS, selector), &visible)); err != nil {
		return false
	}
	return visible
}

// Click clicks the first element matching selector once it is visible.
func (p *Page) Click(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

// ClickNth scrolls the index-th match of selector, or its first descendant
// match, into view and clicks it.
func (p *Page) ClickNth(ctx context.Context, selector string, index int, descendant string) error {
	var clicked bool
	if err := p.run(ctx, chromedp.Evaluate(callScript(clickNthJS, selector, index, descendant), &clicked)); err != nil {
		return fmt.Errorf("click %s[%d] %s: %w", selector, index, descendant, err)
	}
	if !clicked {
		return fmt.Errorf("click %s[%d] %s: no such element", selector, index, descendant)
	}
	return nil
}

// WaitVisible blocks until selector is visible or ctx expires.
func (p *Page) WaitVisible(ctx context.Context, selector string) error {
	if err := p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait %s: %w", selector, err)
	}
	return nil
}

// Elements reads the requested attributes from every match in one round trip.
func (p *Page) Elements(ctx context.Context, query crawler.ElementQuery) ([]crawler.Element, error) {
	var raw []struct {
		Attrs      map[string]string `json:"attrs"`
		Descendant map[string]string `json:"descendant"`
	}
	if err := p.run(ctx, chromedp.Evaluate(callScript(elementsJS, elementsArg(query)), &raw)); err != nil {
		return nil, fmt.Errorf("read elements %s: %w", query.Selector, err)
	}
	out := make([]crawler.Element, 0, len(raw))
	for _, r := range raw {
		out = append(out, crawler.Element{Attrs: r.Attrs, Descendant: r.Descendant})
	}
	return out, nil
}

// ScrollToBottom scrolls the document to its current end.
func (p *Page) ScrollToBottom(ctx context.Context) error {
	var ok bool
	if err := p.run(ctx, chromedp.Evaluate(scrollJS, &ok)); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

// Dismiss presses Escape to close overlays.
func (p *Page) Dismiss(ctx context.Context) error {
	if err := p.run(ctx, chromedp.KeyEvent(kb.Escape)); err != nil {
		return fmt.Errorf("dismiss: %w", err)
	}
	return nil
}

type elementsQuery struct {
	Selector             string   `json:"selector"`
	Attributes           []string `json:"attributes"`
	Descendant           string   `json:"descendant,omitempty"`
	DescendantAttributes []string `json:"descendantAttributes,omitempty"`
}

func elementsArg(q crawler.ElementQuery) elementsQuery {
	return elementsQuery{
		Selector:             q.Selector,
		Attributes:           append([]string{}, q.Attributes...),
		Descendant:           q.Descendant,
		DescendantAttributes: q.DescendantAttributes,
	}
}

// callScript renders fn applied to JSON-encoded args.
func callScript(fn string, args ...any) string {
	encoded := make([]byte, 0, 64)
	for i, arg := range args {
		b, err := json.Marshal(arg)
		if err != nil {
			b = []byte("null")
		}
		if i > 0 {
			encoded = append(encoded, ',')
		}
		encoded = append(encoded, b...)
	}
	return "(" + fn + ")(" + string(encoded) + ")"
}

const visibleJS = `function (sel) {
	const el = document.querySelector(sel);
	if (!el) return false;
	const rect = el.getBoundingClientRect();
	const style = window.getComputedStyle(el);
	return rect.width > 0 && rect.height > 0 && style.visibility !== 'hidden' && style.display !== 'none';
}`

const clickNthJS = `function (sel, i, child) {
	let el = document.querySelectorAll(sel)[i];
	if (el && child) el = el.querySelector(child);
	if (!el) return false;
	el.scrollIntoView({block: 'center'});
	el.click();
	return true;
}`

// elementsJS reads each attribute, falling back to the same-named DOM
// property (currentSrc, href) when the attribute is absent.
const elementsJS = `function (q) {
	const read = (el, names) => {
		const out = {};
		if (!el) return out;
		for (const name of names || []) {
			let value = el.getAttribute(name);
			if ((value === null || value === '') && typeof el[name] === 'string') value = el[name];
			if (value) out[name] = value;
		}
		return out;
	};
	return Array.from(document.querySelectorAll(q.selector)).map((el) => ({
		attrs: read(el, q.attributes),
		descendant: q.descendant ? read(el.querySelector(q.descendant), q.descendantAttributes) : {},
	}));
}`

const scrollJS = `(() => { window.scrollTo(0, document.body.scrollHeight); return true; })()`

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{headers: http.Header{}}
}

func (m *responseMeta) reset() {
	m.mu.Lock()
	m.status = 0
	m.headers = http.Header{}
	m.url = ""
	m.mu.Unlock()
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []any:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
	m.mu.Unlock()
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, m.headers.Clone(), m.url
}
