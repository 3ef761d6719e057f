// Package dedup tracks content hashes already present in the destination so a
// run never stores the same image twice.
package dedup

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/image-crawler/internal/crawler"
)

// Set is a grow-only set of content hashes scoped to one run. It is owned by
// the orchestrator and is not safe for concurrent mutation.
type Set struct {
	hashes map[string]struct{}
}

// New returns an empty Set.
func New() *Set {
	return &Set{hashes: make(map[string]struct{})}
}

// Seed walks dir and records the hash of every regular file. Unreadable
// files are logged and skipped; an unreadable root is an error.
func Seed(ctx context.Context, dir string, hasher crawler.Hasher, logger *zap.Logger) (*Set, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	set := New()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == dir {
				return walkErr
			}
			logger.Warn("skipping unreadable entry", zap.String("path", path), zap.Error(walkErr))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		sum, err := hasher.HashFile(path)
		if err != nil {
			logger.Warn("skipping unhashable file", zap.String("path", path), zap.Error(err))
			return nil
		}
		set.Add(sum)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("seed dedup set from %s: %w", dir, err)
	}
	logger.Debug("dedup set seeded", zap.String("dir", dir), zap.Int("hashes", set.Len()))
	return set, nil
}

// Contains reports whether hash has been seen.
func (s *Set) Contains(hash string) bool {
	_, ok := s.hashes[hash]
	return ok
}

// Add records hash. It reports false when the hash was already present.
func (s *Set) Add(hash string) bool {
	if s.Contains(hash) {
		return false
	}
	s.hashes[hash] = struct{}{}
	return true
}

// Len returns the number of distinct hashes.
func (s *Set) Len() int {
	return len(s.hashes)
}
