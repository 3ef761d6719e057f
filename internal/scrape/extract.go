package scrape

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/image-crawler/internal/crawler"
)

// extractFunc reads one raw URL from a matched element. Every kind has one,
// and each returns ok=false instead of failing.
type extractFunc func(el crawler.Element, ex ExtractionSpec) (string, bool)

var extractors = map[ExtractionKind]extractFunc{
	ExtractAttribute:       extractAttribute,
	ExtractNestedAttribute: extractNestedAttribute,
	ExtractJSONAttribute:   extractJSONAttribute,
	ExtractLinkCollection:  extractLink,
}

var srcsetSeparator = regexp.MustCompile(`,\s+`)

func extractAttribute(el crawler.Element, ex ExtractionSpec) (string, bool) {
	return pickURL(el.Attrs, ex.Attributes)
}

func extractNestedAttribute(el crawler.Element, ex ExtractionSpec) (string, bool) {
	return pickURL(el.Descendant, ex.Attributes)
}

func extractJSONAttribute(el crawler.Element, ex ExtractionSpec) (string, bool) {
	if raw := el.Attrs[ex.JSONAttribute]; raw != "" {
		var doc any
		if err := json.Unmarshal([]byte(raw), &doc); err == nil {
			if value, ok := walkPath(doc, ex.JSONPath); ok && value != "" {
				return value, true
			}
		}
	}
	if ex.FallbackToNested {
		return extractNestedAttribute(el, ex)
	}
	return "", false
}

// extractLink reads an anchor's link whole; hrefs are never split.
func extractLink(el crawler.Element, ex ExtractionSpec) (string, bool) {
	for _, name := range ex.Attributes {
		if value := strings.TrimSpace(el.Attrs[name]); value != "" && !strings.HasPrefix(value, "data:") {
			return value, true
		}
	}
	return "", false
}

// pickURL returns the first usable value among names. srcset-style
// attributes yield their last, highest-resolution entry; any other attribute
// is taken whole.
func pickURL(attrs map[string]string, names []string) (string, bool) {
	for _, name := range names {
		if value := attrURL(name, attrs[name]); value != "" {
			return value, true
		}
	}
	return "", false
}

func attrURL(name, value string) string {
	value = strings.TrimSpace(value)
	if value == "" || strings.HasPrefix(value, "data:") {
		return ""
	}
	if !strings.Contains(strings.ToLower(name), "srcset") {
		return value
	}
	parts := srcsetSeparator.Split(value, -1)
	if len(parts) == 1 {
		parts = strings.Split(value, ",")
	}
	for i := len(parts) - 1; i >= 0; i-- {
		fields := strings.Fields(parts[i])
		if len(fields) > 0 && !strings.HasPrefix(fields[0], "data:") {
			return fields[0]
		}
	}
	return ""
}

// walkPath follows a dot-separated path through decoded JSON. Numeric
// segments index arrays.
func walkPath(doc any, path string) (string, bool) {
	current := doc
	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			continue
		}
		switch node := current.(type) {
		case map[string]any:
			next, ok := node[segment]
			if !ok {
				return "", false
			}
			current = next
		case []any:
			idx, err := strconv.Atoi(segment)
			if err != nil || idx < 0 || idx >= len(node) {
				return "", false
			}
			current = node[idx]
		default:
			return "", false
		}
	}
	value, ok := current.(string)
	return value, ok
}

// elementQuery builds the single DOM read that serves the extraction kind.
func elementQuery(selector string, ex ExtractionSpec) crawler.ElementQuery {
	query := crawler.ElementQuery{Selector: selector}
	switch ex.Kind {
	case ExtractNestedAttribute:
		query.Descendant = ex.Descendant
		query.DescendantAttributes = ex.Attributes
	case ExtractJSONAttribute:
		query.Attributes = []string{ex.JSONAttribute}
		if ex.FallbackToNested {
			query.Descendant = ex.Descendant
			query.DescendantAttributes = ex.Attributes
		}
	default:
		query.Attributes = append(query.Attributes, ex.Attributes...)
	}
	for _, extra := range []string{ex.TitleAttribute, ex.ThumbnailAttribute} {
		if extra != "" {
			query.Attributes = append(query.Attributes, extra)
		}
	}
	return query
}

// collector accumulates candidates for one discovery call, suppressing
// exact-string duplicates.
type collector struct {
	source     string
	base       string
	extraction ExtractionSpec
	seen       map[string]struct{}
	candidates []crawler.Candidate
}

func newCollector(source, base string, ex ExtractionSpec) *collector {
	return &collector{
		source:     source,
		base:       base,
		extraction: ex,
		seen:       make(map[string]struct{}),
	}
}

// add extracts every element and reports how many new candidates appeared.
func (c *collector) add(elements []crawler.Element) int {
	extract := extractors[c.extraction.Kind]
	if extract == nil {
		return 0
	}
	added := 0
	for i, el := range elements {
		raw, ok := extract(el, c.extraction)
		if !ok {
			continue
		}
		abs, ok := crawler.AbsoluteURL(c.base, raw)
		if !ok || !c.extraction.Filters.allow(abs) {
			continue
		}
		if _, dup := c.seen[abs]; dup {
			continue
		}
		c.seen[abs] = struct{}{}
		c.candidates = append(c.candidates, c.candidate(el, abs, i))
		added++
	}
	return added
}

func (c *collector) candidate(el crawler.Element, abs string, ordinal int) crawler.Candidate {
	cand := crawler.Candidate{Source: c.source, Ordinal: ordinal}
	if c.extraction.Kind == ExtractLinkCollection {
		cand.DetailURL = abs
	} else {
		cand.PreviewURL = abs
	}
	if c.extraction.TitleAttribute != "" {
		cand.Title = strings.TrimSpace(el.Attr(c.extraction.TitleAttribute))
	}
	if c.extraction.ThumbnailAttribute != "" {
		if thumb, ok := crawler.AbsoluteURL(c.base, attrURL(c.extraction.ThumbnailAttribute, el.Attr(c.extraction.ThumbnailAttribute))); ok {
			cand.ThumbnailURL = thumb
		}
	}
	return cand
}

func (f URLFilters) allow(raw string) bool {
	if len(f.Prefixes) > 0 && !hasAnyPrefix(raw, f.Prefixes) {
		return false
	}
	if len(f.Include) > 0 && !containsAny(raw, f.Include) {
		return false
	}
	return !containsAny(raw, f.Exclude)
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}
