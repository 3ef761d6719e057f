package sources

import (
	"sort"
	"strings"

	"github.com/JakeFAU/image-crawler/internal/scrape"
)

// Settings is the merged provider configuration for one run.
type Settings struct {
	// Order lists source names in priority order.
	Order []string `mapstructure:"order"`
	// Override, when non-empty, replaces both membership and order for the
	// run. Named sources run even when disabled.
	Override []string `mapstructure:"override"`
	// Sources holds per-name settings keyed by lowercase source name.
	Sources map[string]SourceConfig `mapstructure:"sources"`
}

// SourceConfig configures a single source.
type SourceConfig struct {
	Enabled    bool           `mapstructure:"enabled"`
	Position   int            `mapstructure:"position"`
	MaxResults int            `mapstructure:"max_results"`
	Tunables   map[string]any `mapstructure:"tunables"`
	// Scrape describes a declarative source; nil for hand-written ones.
	Scrape *scrape.Spec `mapstructure:"scrape"`
}

// Tunable returns a string tunable or def when unset.
func (c SourceConfig) Tunable(key, def string) string {
	if v, ok := c.Tunables[key]; ok {
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return def
}

// ActiveNames returns the names to build, in run order.
func (s Settings) ActiveNames() []string {
	if len(s.Override) > 0 {
		return normalizeNames(s.Override)
	}
	order := normalizeNames(s.Order)
	if len(order) == 0 {
		order = s.namesByPosition()
	}
	active := make([]string, 0, len(order))
	for _, name := range order {
		if cfg, ok := s.Sources[name]; ok && cfg.Enabled {
			active = append(active, name)
		}
	}
	return active
}

func (s Settings) namesByPosition() []string {
	names := make([]string, 0, len(s.Sources))
	for name := range s.Sources {
		names = append(names, strings.ToLower(name))
	}
	sort.SliceStable(names, func(i, j int) bool {
		pi, pj := s.Sources[names[i]].Position, s.Sources[names[j]].Position
		if pi != pj {
			return pi < pj
		}
		return names[i] < names[j]
	})
	return names
}

func normalizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
