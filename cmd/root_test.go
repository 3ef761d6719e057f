package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/image-crawler/internal/config"
	"github.com/JakeFAU/image-crawler/internal/crawler"
	"github.com/JakeFAU/image-crawler/internal/orchestrator"
)

type fakeApp struct {
	cfg      config.Config
	crawlErr error
	jobs     []orchestrator.Job
	served   bool
	closed   bool
}

func (a *fakeApp) Logger() *zap.Logger { return zap.NewNop() }

func (a *fakeApp) Job(query string) orchestrator.Job {
	return orchestrator.Job{
		Query:       query,
		Destination: a.cfg.Crawl.Destination,
		Limits:      a.cfg.Crawl.Limits,
		Sources:     a.cfg.Providers,
	}
}

func (a *fakeApp) Crawl(_ context.Context, job orchestrator.Job) (crawler.RunStats, error) {
	a.jobs = append(a.jobs, job)
	stats := crawler.RunStats{
		RunID: "run-1",
		Query: job.Query,
		State: crawler.StateCompleted,
		Sources: []crawler.SourceStats{
			{Name: "wikimedia", Requested: 5, Discovered: 4, Downloaded: 3, Skipped: 1},
		},
	}
	if a.crawlErr != nil {
		stats.State = crawler.StateFailed
		stats.Error = a.crawlErr.Error()
	}
	stats.Recount()
	return stats, a.crawlErr
}

func (a *fakeApp) Serve(context.Context) error {
	a.served = true
	return nil
}

func (a *fakeApp) Close(context.Context) error {
	a.closed = true
	return nil
}

// installFakeApp swaps the package-level factory, so callers must not run in
// parallel.
func installFakeApp(t *testing.T, fake *fakeApp) *bool {
	t.Helper()
	built := false
	prev := newApp
	newApp = func(_ context.Context, cfg config.Config, _ *zap.Logger) (App, error) {
		built = true
		fake.cfg = cfg
		return fake, nil
	}
	t.Cleanup(func() { newApp = prev })
	return &built
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCrawlCommandBindsFlags(t *testing.T) {
	fake := &fakeApp{}
	installFakeApp(t, fake)
	dest := t.TempDir()

	out, err := execute(t, "crawl", "--query", " red fox ", "--max", "7", "--per-source", "3",
		"--sources", "openverse,wikimedia", "--dest", dest, "--safe-search=false")
	require.NoError(t, err)

	require.Len(t, fake.jobs, 1)
	job := fake.jobs[0]
	assert.Equal(t, "red fox", job.Query)
	assert.Equal(t, dest, job.Destination)
	assert.Equal(t, 7, job.Limits.GlobalMaxDownloads)
	assert.Equal(t, 3, job.Limits.PerSourceMaxResults)
	assert.False(t, job.Limits.SafeSearch)
	assert.True(t, job.Limits.Headless)
	assert.Equal(t, []string{"openverse", "wikimedia"}, job.Sources.Override)
	assert.True(t, fake.closed)

	assert.Contains(t, out, "run run-1: completed")
	assert.Contains(t, out, "wikimedia")
	assert.Contains(t, out, "total")
}

func TestCrawlCommandUsesConfigDefaults(t *testing.T) {
	fake := &fakeApp{}
	installFakeApp(t, fake)

	_, err := execute(t, "crawl", "-q", "otters")
	require.NoError(t, err)

	require.Len(t, fake.jobs, 1)
	assert.Equal(t, 50, fake.jobs[0].Limits.GlobalMaxDownloads)
	assert.Equal(t, "images", fake.jobs[0].Destination)
	assert.Empty(t, fake.jobs[0].Sources.Override)
}

func TestCrawlCommandFailedRun(t *testing.T) {
	fake := &fakeApp{crawlErr: errors.New("destination directory unusable")}
	installFakeApp(t, fake)

	out, err := execute(t, "crawl", "--query", "cats", "--dest", t.TempDir())
	require.Error(t, err)
	assert.ErrorIs(t, err, fake.crawlErr)
	assert.Contains(t, out, "error: destination directory unusable")
	assert.True(t, fake.closed)
}

func TestCrawlCommandRequiresQuery(t *testing.T) {
	fake := &fakeApp{}
	built := installFakeApp(t, fake)

	_, err := execute(t, "crawl")
	require.Error(t, err)
	assert.False(t, *built)

	_, err = execute(t, "crawl", "--query", "   ")
	require.Error(t, err)
	assert.Empty(t, fake.jobs)
}

func TestCrawlCommandRejectsInvalidBudget(t *testing.T) {
	fake := &fakeApp{}
	built := installFakeApp(t, fake)

	_, err := execute(t, "crawl", "--query", "cats", "--max", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "crawl.max_downloads")
	assert.False(t, *built)
}

func TestServeCommand(t *testing.T) {
	fake := &fakeApp{}
	installFakeApp(t, fake)

	_, err := execute(t, "serve", "--port", "9090")
	require.NoError(t, err)
	assert.True(t, fake.served)
	assert.True(t, fake.closed)
	assert.Equal(t, 9090, fake.cfg.Server.Port)
}
