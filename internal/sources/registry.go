// Package sources builds the ordered list of image sources for a run. Names
// with a registered factory get a hand-written adapter; every other name is
// built as a declarative scraping adapter from its scrape block.
package sources

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/image-crawler/internal/crawler"
	"github.com/JakeFAU/image-crawler/internal/progress"
	"github.com/JakeFAU/image-crawler/internal/scrape"
)

// ErrUnknownSource is returned for names with neither a factory nor a scrape spec.
var ErrUnknownSource = errors.New("unknown source")

// Deps are the collaborators handed to every factory.
type Deps struct {
	Fetcher  crawler.Fetcher
	Sleeper  crawler.Sleeper
	Reporter *progress.SourceReporter
	Logger   *zap.Logger
}

// Factory constructs a hand-written adapter.
type Factory func(name string, cfg SourceConfig, deps Deps) (crawler.Adapter, error)

// Options configures a Registry.
type Options struct {
	Fetcher crawler.Fetcher
	Sleeper crawler.Sleeper
	Logger  *zap.Logger
}

// Registry maps source names to factories.
type Registry struct {
	factories map[string]Factory
	opts      Options
}

// NewRegistry returns an empty registry.
func NewRegistry(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Registry{factories: make(map[string]Factory), opts: opts}
}

// Default returns a registry with the built-in API sources registered.
func Default(opts Options) *Registry {
	r := NewRegistry(opts)
	r.Register(WikimediaName, NewWikimedia)
	r.Register(OpenverseName, NewOpenverse)
	return r
}

// Register binds name to a factory, replacing any previous binding.
func (r *Registry) Register(name string, factory Factory) {
	r.factories[strings.ToLower(strings.TrimSpace(name))] = factory
}

// Names lists registered factory names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build instantiates the active sources in run order. A source that fails to
// build is skipped with an error event; the rest are still built.
func (r *Registry) Build(settings Settings, reporter *progress.Reporter) []crawler.Adapter {
	names := settings.ActiveNames()
	adapters := make([]crawler.Adapter, 0, len(names))
	for _, name := range names {
		adapter, err := r.buildOne(name, settings.Sources[name], reporter.ForSource(name))
		if err != nil {
			r.opts.Logger.Warn("skipping source", zap.String("source", name), zap.Error(err))
			reporter.Error(name, "source skipped", err.Error())
			continue
		}
		adapters = append(adapters, adapter)
	}
	r.opts.Logger.Debug("sources built", zap.Int("requested", len(names)), zap.Int("built", len(adapters)))
	return adapters
}

func (r *Registry) buildOne(name string, cfg SourceConfig, rep *progress.SourceReporter) (adapter crawler.Adapter, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			adapter = nil
			err = fmt.Errorf("build source %s: panic: %v", name, rec)
		}
	}()

	deps := Deps{
		Fetcher:  r.opts.Fetcher,
		Sleeper:  r.opts.Sleeper,
		Reporter: rep,
		Logger:   r.opts.Logger.Named(name),
	}
	if factory, ok := r.factories[name]; ok {
		adapter, err = factory(name, cfg, deps)
		if err != nil {
			return nil, fmt.Errorf("build source %s: %w", name, err)
		}
		return adapter, nil
	}
	if cfg.Scrape == nil {
		return nil, fmt.Errorf("build source %s: %w", name, ErrUnknownSource)
	}
	adapter, err = scrape.New(name, cfg.MaxResults, *cfg.Scrape, scrape.Options{
		Reporter: rep,
		Sleeper:  deps.Sleeper,
		Logger:   deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("build source %s: %w", name, err)
	}
	return adapter, nil
}
