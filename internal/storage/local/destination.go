// Package local writes accepted images into the destination directory.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/JakeFAU/image-crawler/internal/crawler"
)

const maxCollisionSuffix = 10000

// Config captures the parameters for the destination directory.
type Config struct {
	// Dir is the directory accepted images are written into.
	Dir string `mapstructure:"destination"`
}

// Destination writes image files into one directory.
type Destination struct {
	dir string
}

var _ crawler.ImageWriter = (*Destination)(nil)

// New validates the directory, creating it when absent, and checks that it is
// writable. Every failure wraps crawler.ErrDestinationUnusable.
func New(cfg Config) (*Destination, error) {
	dir := strings.TrimSpace(cfg.Dir)
	if dir == "" {
		return nil, fmt.Errorf("%w: directory is required", crawler.ErrDestinationUnusable)
	}

	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("%w: create %s: %w", crawler.ErrDestinationUnusable, dir, mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("%w: stat %s: %w", crawler.ErrDestinationUnusable, dir, err)
	case !info.IsDir():
		return nil, fmt.Errorf("%w: %s is not a directory", crawler.ErrDestinationUnusable, dir)
	}

	probe, err := os.CreateTemp(dir, ".writable_test")
	if err != nil {
		return nil, fmt.Errorf("%w: %s is not writable: %w", crawler.ErrDestinationUnusable, dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	if err := os.Remove(name); err != nil {
		return nil, fmt.Errorf("%w: clean up probe file: %w", crawler.ErrDestinationUnusable, err)
	}

	return &Destination{dir: dir}, nil
}

// Dir returns the destination directory.
func (d *Destination) Dir() string {
	return d.dir
}

// Write creates filename exclusively, appending _1, _2, ... to the base name
// until a free name is found.
func (d *Destination) Write(ctx context.Context, filename string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("write %s: %w", filename, err)
	}
	clean := filepath.Base(strings.TrimSpace(filename))
	if clean == "." || clean == string(filepath.Separator) || clean == "" {
		return "", fmt.Errorf("invalid filename %q", filename)
	}
	ext := filepath.Ext(clean)
	stem := strings.TrimSuffix(clean, ext)

	for i := 0; i < maxCollisionSuffix; i++ {
		name := clean
		if i > 0 {
			name = stem + "_" + strconv.Itoa(i) + ext
		}
		full := filepath.Join(d.dir, name)
		f, err := os.OpenFile(full, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) // #nosec G304 -- name is reduced to a base name inside dir.
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create %s: %w", full, err)
		}
		if err := writeAndClose(f, data); err != nil {
			_ = os.Remove(full)
			return "", fmt.Errorf("write %s: %w", full, err)
		}
		return full, nil
	}
	return "", fmt.Errorf("no free name for %s after %d attempts", clean, maxCollisionSuffix)
}

func writeAndClose(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
