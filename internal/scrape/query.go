package scrape

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/JakeFAU/image-crawler/internal/crawler"
)

// ApplyTransforms runs the named transforms over query in order. Unknown
// names are rejected by Validate and ignored here.
func ApplyTransforms(query string, transforms []string) string {
	out := query
	for _, tr := range transforms {
		switch tr {
		case TransformTrim:
			out = strings.TrimSpace(out)
		case TransformLower:
			out = strings.ToLower(out)
		case TransformSpacesToPlus:
			out = strings.Join(strings.Fields(out), "+")
		case TransformSpacesToDash:
			out = strings.Join(strings.Fields(out), "-")
		case TransformSpacesToUnderscore:
			out = strings.Join(strings.Fields(out), "_")
		case TransformQueryEscape:
			out = url.QueryEscape(out)
		case TransformPathEscape:
			out = url.PathEscape(out)
		}
	}
	return out
}

// SearchURL substitutes the transformed query and run limits into the template.
func SearchURL(spec Spec, query string, limits crawler.DiscoverLimits) string {
	safe := spec.SafeSearch.Off
	if limits.SafeSearch {
		safe = spec.SafeSearch.On
	}
	replacer := strings.NewReplacer(
		"{query}", ApplyTransforms(query, spec.QueryTransforms),
		"{safe}", safe,
		"{count}", strconv.Itoa(limits.Cap),
	)
	return replacer.Replace(spec.SearchURLTemplate)
}
