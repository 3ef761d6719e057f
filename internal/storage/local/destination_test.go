package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/image-crawler/internal/crawler"
	"github.com/JakeFAU/image-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ExistingDir", func(t *testing.T) {
		dest, err := local.New(local.Config{Dir: t.TempDir()})
		require.NoError(t, err)
		assert.NotEmpty(t, dest.Dir())
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "a", "b")
		_, err := local.New(local.Config{Dir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("MissingDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		require.ErrorIs(t, err, crawler.ErrDestinationUnusable)
	})

	t.Run("PathIsAFile", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{Dir: file})
		require.ErrorIs(t, err, crawler.ErrDestinationUnusable)
	})

	t.Run("NotWritable", func(t *testing.T) {
		if os.Geteuid() == 0 {
			t.Skip("root ignores directory permissions")
		}
		dir := t.TempDir()
		// #nosec G302 -- read-only directory for the writability check.
		require.NoError(t, os.Chmod(dir, 0o500))
		t.Cleanup(func() { _ = os.Chmod(dir, 0o700) }) // #nosec G302

		_, err := local.New(local.Config{Dir: dir})
		require.ErrorIs(t, err, crawler.ErrDestinationUnusable)
	})
}

func TestWriteAvoidsCollisions(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dest, err := local.New(local.Config{Dir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	first, err := dest.Write(ctx, "wiki_cat.jpg", []byte("one"))
	require.NoError(t, err)
	second, err := dest.Write(ctx, "wiki_cat.jpg", []byte("two"))
	require.NoError(t, err)
	third, err := dest.Write(ctx, "wiki_cat.jpg", []byte("three"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "wiki_cat.jpg"), first)
	assert.Equal(t, filepath.Join(dir, "wiki_cat_1.jpg"), second)
	assert.Equal(t, filepath.Join(dir, "wiki_cat_2.jpg"), third)

	data, err := os.ReadFile(second) // #nosec G304 -- test file.
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
}

func TestWriteStaysInsideDir(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dest, err := local.New(local.Config{Dir: dir})
	require.NoError(t, err)

	path, err := dest.Write(context.Background(), "../../escape.png", []byte("x"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "escape.png"), path)

	_, err = dest.Write(context.Background(), "", []byte("x"))
	require.Error(t, err)
}

func TestWriteHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	dest, err := local.New(local.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = dest.Write(ctx, "a.jpg", []byte("x"))
	require.ErrorIs(t, err, context.Canceled)
	entries, err := os.ReadDir(dest.Dir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}
