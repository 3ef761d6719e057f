// Package scrape implements the generic declarative adapter: a single
// data-driven source that discovers and resolves images on any site described
// by a Spec, without per-site code.
package scrape

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidSpec wraps every validation failure so callers can tell a
// malformed source definition apart from runtime errors.
var ErrInvalidSpec = errors.New("invalid scrape spec")

// ScrollStrategy selects how more results are revealed.
type ScrollStrategy string

// Scroll strategies.
const (
	ScrollNone      ScrollStrategy = "none"
	ScrollAuto      ScrollStrategy = "auto-scroll"
	ScrollClickMore ScrollStrategy = "click-more"
)

// ExtractionKind selects how candidate URLs are read from matched elements.
type ExtractionKind string

// Extraction kinds.
const (
	ExtractAttribute       ExtractionKind = "attribute"
	ExtractNestedAttribute ExtractionKind = "nested-attribute"
	ExtractJSONAttribute   ExtractionKind = "json-attribute"
	ExtractLinkCollection  ExtractionKind = "link-collection"
)

// ResolutionKind selects how a candidate becomes a full-size image URL.
type ResolutionKind string

// Full-size resolution kinds.
const (
	ResolveDirect             ResolutionKind = "direct"
	ResolveLightboxClick      ResolutionKind = "lightbox-click"
	ResolveDetailPageNavigate ResolutionKind = "detail-page-navigate"
	ResolveStripQueryParams   ResolutionKind = "strip-query-params"
	ResolveDecodeQueryParam   ResolutionKind = "decode-query-param"
)

// Query transforms applied in order before template substitution.
const (
	TransformTrim               = "trim"
	TransformLower              = "lower"
	TransformSpacesToPlus       = "spaces_to_plus"
	TransformSpacesToDash       = "spaces_to_dash"
	TransformSpacesToUnderscore = "spaces_to_underscore"
	TransformQueryEscape        = "query_escape"
	TransformPathEscape         = "path_escape"
)

// Spec is the declarative description of one scraped source.
type Spec struct {
	SearchURLTemplate string         `mapstructure:"search_url" json:"search_url"`
	QueryTransforms   []string       `mapstructure:"query_transforms" json:"query_transforms"`
	SafeSearch        SafeSearchSpec `mapstructure:"safe_search" json:"safe_search"`
	ConsentSelectors  []string       `mapstructure:"consent_selectors" json:"consent_selectors"`
	PrimarySelector   string         `mapstructure:"primary_selector" json:"primary_selector"`
	Scroll            ScrollSpec     `mapstructure:"scroll" json:"scroll"`
	Extraction        ExtractionSpec `mapstructure:"extraction" json:"extraction"`
	FullSize          ResolutionSpec `mapstructure:"full_size" json:"full_size"`
}

// SafeSearchSpec holds the values substituted for {safe}.
type SafeSearchSpec struct {
	On  string `mapstructure:"on" json:"on"`
	Off string `mapstructure:"off" json:"off"`
}

// ScrollSpec configures result pagination.
type ScrollSpec struct {
	Strategy          ScrollStrategy `mapstructure:"strategy" json:"strategy"`
	MaxSteps          int            `mapstructure:"max_steps" json:"max_steps"`
	DelayMs           int            `mapstructure:"delay_ms" json:"delay_ms"`
	NoProgressRetries int            `mapstructure:"no_progress_retries" json:"no_progress_retries"`
	MoreSelector      string         `mapstructure:"more_selector" json:"more_selector"`
}

// ExtractionSpec configures candidate extraction. Only the fields used by
// Kind are consulted.
type ExtractionSpec struct {
	Kind               ExtractionKind `mapstructure:"kind" json:"kind"`
	Attributes         []string       `mapstructure:"attributes" json:"attributes"`
	Descendant         string         `mapstructure:"descendant" json:"descendant"`
	JSONAttribute      string         `mapstructure:"json_attribute" json:"json_attribute"`
	JSONPath           string         `mapstructure:"json_path" json:"json_path"`
	FallbackToNested   bool           `mapstructure:"fallback_to_nested" json:"fallback_to_nested"`
	TitleAttribute     string         `mapstructure:"title_attribute" json:"title_attribute"`
	ThumbnailAttribute string         `mapstructure:"thumbnail_attribute" json:"thumbnail_attribute"`
	Filters            URLFilters     `mapstructure:"filters" json:"filters"`
}

// URLFilters restrict extracted URLs by substring and prefix.
type URLFilters struct {
	Include  []string `mapstructure:"include" json:"include"`
	Exclude  []string `mapstructure:"exclude" json:"exclude"`
	Prefixes []string `mapstructure:"prefixes" json:"prefixes"`
}

// ResolutionSpec configures full-size resolution. Only the fields used by
// Kind are consulted.
type ResolutionSpec struct {
	Kind          ResolutionKind `mapstructure:"kind" json:"kind"`
	ClickSelector string         `mapstructure:"click_selector" json:"click_selector"`
	WaitSelector  string         `mapstructure:"wait_selector" json:"wait_selector"`
	Attributes    []string       `mapstructure:"attributes" json:"attributes"`
	Params        []string       `mapstructure:"params" json:"params"`
	ParamName     string         `mapstructure:"param_name" json:"param_name"`
	TimeoutMs     int            `mapstructure:"timeout_ms" json:"timeout_ms"`
}

const (
	defaultMaxSteps          = 10
	defaultDelayMs           = 800
	defaultNoProgressRetries = 2
	defaultResolveTimeoutMs  = 5000
)

var defaultSourceAttributes = []string{"src", "currentSrc", "srcset"}

// Normalized returns a copy with defaults applied for omitted fields.
func (s Spec) Normalized() Spec {
	out := s
	if len(out.QueryTransforms) == 0 {
		out.QueryTransforms = []string{TransformQueryEscape}
	}
	if out.Scroll.Strategy == "" {
		out.Scroll.Strategy = ScrollNone
	}
	if out.Scroll.MaxSteps <= 0 {
		out.Scroll.MaxSteps = defaultMaxSteps
	}
	if out.Scroll.DelayMs <= 0 {
		out.Scroll.DelayMs = defaultDelayMs
	}
	if out.Scroll.NoProgressRetries <= 0 {
		out.Scroll.NoProgressRetries = defaultNoProgressRetries
	}
	if out.Extraction.Kind == "" {
		out.Extraction.Kind = ExtractAttribute
	}
	if len(out.Extraction.Attributes) == 0 {
		if out.Extraction.Kind == ExtractLinkCollection {
			out.Extraction.Attributes = []string{"href"}
		} else {
			out.Extraction.Attributes = []string{"src"}
		}
	}
	if out.FullSize.Kind == "" {
		out.FullSize.Kind = ResolveDirect
	}
	if len(out.FullSize.Attributes) == 0 {
		out.FullSize.Attributes = append([]string(nil), defaultSourceAttributes...)
	}
	if out.FullSize.TimeoutMs <= 0 {
		out.FullSize.TimeoutMs = defaultResolveTimeoutMs
	}
	return out
}

// Validate rejects unknown variants and missing kind-specific fields.
func (s Spec) Validate() error {
	var problems []string
	if strings.TrimSpace(s.SearchURLTemplate) == "" {
		problems = append(problems, "search_url is required")
	} else if !strings.Contains(s.SearchURLTemplate, "{query}") {
		problems = append(problems, "search_url must contain {query}")
	}
	if strings.TrimSpace(s.PrimarySelector) == "" {
		problems = append(problems, "primary_selector is required")
	}
	for _, tr := range s.QueryTransforms {
		if !knownTransform(tr) {
			problems = append(problems, fmt.Sprintf("unknown query transform %q", tr))
		}
	}
	problems = append(problems, s.Scroll.problems()...)
	problems = append(problems, s.Extraction.problems()...)
	problems = append(problems, s.FullSize.problems()...)
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidSpec, strings.Join(problems, "; "))
	}
	return nil
}

func (s ScrollSpec) problems() []string {
	switch s.Strategy {
	case "", ScrollNone, ScrollAuto:
		return nil
	case ScrollClickMore:
		if strings.TrimSpace(s.MoreSelector) == "" {
			return []string{"scroll.more_selector is required for click-more"}
		}
		return nil
	default:
		return []string{fmt.Sprintf("unknown scroll strategy %q", s.Strategy)}
	}
}

func (e ExtractionSpec) problems() []string {
	switch e.Kind {
	case "", ExtractAttribute, ExtractLinkCollection:
		return nil
	case ExtractNestedAttribute:
		if strings.TrimSpace(e.Descendant) == "" {
			return []string{"extraction.descendant is required for nested-attribute"}
		}
		return nil
	case ExtractJSONAttribute:
		var out []string
		if e.JSONAttribute == "" {
			out = append(out, "extraction.json_attribute is required for json-attribute")
		}
		if e.JSONPath == "" {
			out = append(out, "extraction.json_path is required for json-attribute")
		}
		if e.FallbackToNested && strings.TrimSpace(e.Descendant) == "" {
			out = append(out, "extraction.descendant is required when fallback_to_nested is set")
		}
		return out
	default:
		return []string{fmt.Sprintf("unknown extraction kind %q", e.Kind)}
	}
}

func (r ResolutionSpec) problems() []string {
	switch r.Kind {
	case "", ResolveDirect:
		return nil
	case ResolveLightboxClick, ResolveDetailPageNavigate:
		if strings.TrimSpace(r.WaitSelector) == "" {
			return []string{fmt.Sprintf("full_size.wait_selector is required for %s", r.Kind)}
		}
		return nil
	case ResolveStripQueryParams:
		if len(r.Params) == 0 {
			return []string{"full_size.params is required for strip-query-params"}
		}
		return nil
	case ResolveDecodeQueryParam:
		if r.ParamName == "" {
			return []string{"full_size.param_name is required for decode-query-param"}
		}
		return nil
	default:
		return []string{fmt.Sprintf("unknown full-size resolution kind %q", r.Kind)}
	}
}

func knownTransform(name string) bool {
	switch name {
	case TransformTrim, TransformLower, TransformSpacesToPlus, TransformSpacesToDash,
		TransformSpacesToUnderscore, TransformQueryEscape, TransformPathEscape:
		return true
	default:
		return false
	}
}
