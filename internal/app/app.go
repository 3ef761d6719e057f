// Package app builds the long-lived services shared by the crawl and serve
// commands and owns their shutdown.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/image-crawler/internal/api"
	"github.com/JakeFAU/image-crawler/internal/clock/system"
	"github.com/JakeFAU/image-crawler/internal/config"
	"github.com/JakeFAU/image-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/image-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/image-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/image-crawler/internal/hash/sha256"
	"github.com/JakeFAU/image-crawler/internal/id/uuid"
	"github.com/JakeFAU/image-crawler/internal/orchestrator"
	"github.com/JakeFAU/image-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/image-crawler/internal/progress"
	progresssinks "github.com/JakeFAU/image-crawler/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/image-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/image-crawler/internal/sources"
	gcsstorage "github.com/JakeFAU/image-crawler/internal/storage/gcs"
	pgstore "github.com/JakeFAU/image-crawler/internal/storage/postgres"
	"github.com/JakeFAU/image-crawler/internal/store"
)

// Options overrides collaborators that are awkward to build in tests.
type Options struct {
	// Registerer receives the progress collectors; defaults to the global
	// Prometheus registry served on /metrics.
	Registerer prometheus.Registerer
	// Launcher replaces the chromedp browser.
	Launcher crawler.Launcher
	// Fetcher replaces the colly fetcher.
	Fetcher crawler.Fetcher
	// Registry replaces the default source registry.
	Registry *sources.Registry
}

// App contains the application's dependencies.
type App struct {
	cfg          config.Config
	logger       *zap.Logger
	orchestrator *orchestrator.Orchestrator
	progressHub  *progress.Hub
	tracker      *api.Tracker
	runStore     *pgstore.RunStore
	history      store.RunRepository
	publisher    *gcppublisher.Publisher
	mirror       *gcsstorage.Mirror
}

// Build creates the application's dependencies. Optional backends (Postgres,
// Pub/Sub, GCS) are only dialled when configured.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	app := &App{cfg: cfg, logger: logger}
	logger.Info("building application dependencies",
		zap.String("destination", cfg.Crawl.Destination),
		zap.Int("max_downloads", cfg.Crawl.GlobalMaxDownloads),
	)

	if err := app.setupDatabase(ctx); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	if err := app.setupPublisher(ctx); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	if err := app.setupMirror(ctx); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	if err := app.setupProgress(opts.Registerer); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	if err := app.setupOrchestrator(opts); err != nil {
		app.closeInfrastructure(ctx)
		return nil, err
	}
	return app, nil
}

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Job builds a job for query from the configured defaults.
func (a *App) Job(query string) orchestrator.Job {
	limits := a.cfg.Crawl.Limits
	limits.AllowedExtensions = append([]string(nil), limits.AllowedExtensions...)
	return orchestrator.Job{
		Query:       query,
		Destination: a.cfg.Crawl.Destination,
		Limits:      limits,
		Sources:     a.cfg.Providers,
	}
}

// Crawl runs one job in the foreground.
func (a *App) Crawl(ctx context.Context, job orchestrator.Job) (crawler.RunStats, error) {
	stats, err := a.orchestrator.Run(ctx, job)
	if err != nil {
		return stats, fmt.Errorf("crawl %q: %w", job.Query, err)
	}
	return stats, nil
}

// Serve runs the control API until ctx is cancelled, then drains the active
// run and the HTTP server.
func (a *App) Serve(ctx context.Context) error {
	manager := api.NewManager(a.orchestrator, uuid.New(), a.logger)
	apiServer := api.NewServer(api.Config{
		Runs:    manager,
		Tracker: a.tracker,
		History: a.history,
		Defaults: api.Defaults{
			Limits:      a.cfg.Crawl.Limits,
			Destination: a.cfg.Crawl.Destination,
			Sources:     a.cfg.Providers,
		},
		Logger: a.logger.Named("api"),
	})

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := manager.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("active run did not stop in time", zap.Error(err))
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return nil
}

// Close flushes progress sinks and releases every backend.
func (a *App) Close(ctx context.Context) error {
	a.closeInfrastructure(ctx)
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.runStore != nil {
		a.runStore.Close()
	}
}

func (a *App) setupDatabase(ctx context.Context) error {
	if a.cfg.Store.DSN == "" {
		a.logger.Warn("no DSN specified for store, run history disabled")
		return nil
	}
	runStore, err := pgstore.NewRunStore(ctx, pgstore.Config{
		DSN:      a.cfg.Store.DSN,
		MaxConns: a.cfg.Store.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("run store init failed: %w", err)
	}
	a.runStore = runStore
	a.history = runStore
	a.logger.Info("run store initialized")
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Info("no Pub/Sub project configured, run summaries will not be published")
		return nil
	}
	publisher, err := gcppublisher.New(ctx, gcppublisher.Config{ProjectID: a.cfg.PubSub.ProjectID})
	if err != nil {
		return fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.publisher = publisher
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return nil
}

func (a *App) setupMirror(ctx context.Context) error {
	if a.cfg.Mirror.Bucket == "" {
		return nil
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("gcs client init failed: %w", err)
	}
	mirror, err := gcsstorage.New(client, gcsstorage.Config{
		Bucket: a.cfg.Mirror.Bucket,
		Prefix: a.cfg.Mirror.Prefix,
	})
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("gcs mirror init failed: %w", err)
	}
	a.mirror = mirror
	a.logger.Info("GCS mirror enabled", zap.String("bucket", a.cfg.Mirror.Bucket))
	return nil
}

func (a *App) setupProgress(reg prometheus.Registerer) error {
	a.tracker = api.NewTracker(0)
	sinkList := []progress.Sink{
		progresssinks.NewLogSink(a.logger.Named("progress_log")),
		a.tracker,
	}
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return fmt.Errorf("prometheus sink init failed: %w", err)
	}
	sinkList = append(sinkList, promSink)
	if a.history != nil {
		sinkList = append(sinkList, progresssinks.NewStoreSink(a.history, a.logger.Named("progress_store")))
	}
	if a.publisher != nil {
		sinkList = append(sinkList, progresssinks.NewPublishSink(a.publisher, a.cfg.PubSub.Topic, a.logger.Named("progress_publish")))
	}

	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait,
		Logger:         a.logger.Named("progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg, sinkList...)
	a.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Int("max_batch_events", hubCfg.MaxBatchEvents),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return nil
}

func (a *App) setupOrchestrator(opts Options) error {
	clock := system.New()

	fetcher := opts.Fetcher
	if fetcher == nil {
		limiter := ratelimit.New(ratelimit.Config{
			PerHostRPS: a.cfg.HTTP.PerHostQPS,
			Burst:      a.cfg.HTTP.Burst,
		})
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:     a.cfg.HTTP.UserAgent,
			RespectRobots: a.cfg.HTTP.RespectRobots,
			Timeout:       a.cfg.HTTP.Timeout,
			MaxBodySize:   a.cfg.HTTP.MaxBodyBytes,
			Limiter:       limiter,
		})
		a.logger.Info("using colly fetcher",
			zap.String("user_agent", a.cfg.HTTP.UserAgent),
			zap.Float64("per_host_qps", a.cfg.HTTP.PerHostQPS),
			zap.Bool("respect_robots", a.cfg.HTTP.RespectRobots),
		)
	}

	launcher := opts.Launcher
	if launcher == nil {
		headers := http.Header{}
		if a.cfg.Browser.AcceptLanguage != "" {
			headers.Set("Accept-Language", a.cfg.Browser.AcceptLanguage)
		}
		launcher = headlessfetcher.New(headlessfetcher.Config{
			UserAgent:         a.cfg.Browser.UserAgent,
			NavigationTimeout: a.cfg.Browser.NavTimeout,
			WindowWidth:       a.cfg.Browser.WindowWidth,
			WindowHeight:      a.cfg.Browser.WindowHeight,
			Headers:           headers,
			ExecPath:          a.cfg.Browser.ExecPath,
			Logger:            a.logger.Named("browser"),
		})
	}

	registry := opts.Registry
	if registry == nil {
		registry = sources.Default(sources.Options{
			Fetcher: fetcher,
			Sleeper: clock,
			Logger:  a.logger.Named("sources"),
		})
	}

	var mirror crawler.Mirror
	if a.mirror != nil {
		mirror = a.mirror
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Sources:  registry,
		Launcher: launcher,
		Fetcher:  fetcher,
		Hasher:   sha256.New(),
		Mirror:   mirror,
		Emitter:  a.progressHub,
		Clock:    clock,
		IDs:      uuid.New(),
		Logger:   a.logger,
	})
	if err != nil {
		return fmt.Errorf("orchestrator init failed: %w", err)
	}
	a.orchestrator = orch
	return nil
}
