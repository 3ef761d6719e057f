// Package headless drives the single shared Chrome tab used by scraped
// sources.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/image-crawler/internal/crawler"
)

// Config controls the browser process and tab.
type Config struct {
	UserAgent         string
	NavigationTimeout time.Duration
	WindowWidth       int
	WindowHeight      int
	// Headers are sent with every document request, e.g. Accept-Language.
	Headers http.Header
	// ExecPath overrides Chrome discovery.
	ExecPath string
	Logger   *zap.Logger
}

const (
	defaultNavTimeout   = 45 * time.Second
	defaultWindowWidth  = 1366
	defaultWindowHeight = 900
)

// Browser implements crawler.Launcher.
type Browser struct {
	cfg    Config
	logger *zap.Logger
}

var _ crawler.Launcher = (*Browser)(nil)

// New creates a Browser launcher.
func New(cfg Config) *Browser {
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.WindowWidth <= 0 {
		cfg.WindowWidth = defaultWindowWidth
	}
	if cfg.WindowHeight <= 0 {
		cfg.WindowHeight = defaultWindowHeight
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Browser{cfg: cfg, logger: logger}
}

func (b *Browser) allocatorOptions(headless bool) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
		chromedp.WindowSize(b.cfg.WindowWidth, b.cfg.WindowHeight),
	)
	if headless {
		opts = append(opts, chromedp.Flag("headless", "new"))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if b.cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(b.cfg.UserAgent))
	}
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}
	return opts
}

// Launch starts Chrome and opens one tab. The browser outlives ctx's
// cancellation and is torn down by Session.Close.
func (b *Browser) Launch(ctx context.Context, headless bool) (crawler.Session, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), b.allocatorOptions(headless)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(b.logger.Sugar().Debugf))

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	startCtx, cancel := context.WithTimeout(tabCtx, b.cfg.NavigationTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx, b.networkSetupAction()); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("%w: %w", crawler.ErrBrowserUnavailable, err)
	}
	b.logger.Info("browser launched", zap.Bool("headless", headless))
	return &Session{
		page: &Page{
			tabCtx:     tabCtx,
			meta:       meta,
			navTimeout: b.cfg.NavigationTimeout,
		},
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
	}, nil
}

func (b *Browser) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(b.cfg.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(b.cfg.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

// Session owns one browser process and its tab.
type Session struct {
	page        *Page
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
}

// Page returns the shared tab.
func (s *Session) Page() crawler.Page {
	return s.page
}

// Close shuts the tab and the browser process.
func (s *Session) Close() error {
	err := chromedp.Cancel(s.page.tabCtx)
	s.tabCancel()
	s.allocCancel()
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
