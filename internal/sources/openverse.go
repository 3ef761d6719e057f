package sources

import (
	"context"
	"net/url"
	"strconv"

	"github.com/JakeFAU/image-crawler/internal/crawler"
)

// OpenverseName is the registered name of the Openverse source.
const OpenverseName = "openverse"

const (
	openverseEndpoint = "https://api.openverse.org/v1/images/"
	openverseMaxPage  = 500
)

// Openverse queries the Openverse openly-licensed image index.
type Openverse struct {
	*apiSource
	endpoint string
	license  string
}

var (
	_ crawler.Adapter         = (*Openverse)(nil)
	_ crawler.DimensionProber = (*Openverse)(nil)
	_ crawler.BrowserUser     = (*Openverse)(nil)
)

// NewOpenverse is the Factory for the Openverse source. Tunables: endpoint,
// license_type.
func NewOpenverse(name string, cfg SourceConfig, deps Deps) (crawler.Adapter, error) {
	base, err := newAPISource(name, cfg, deps)
	if err != nil {
		return nil, err
	}
	return &Openverse{
		apiSource: base,
		endpoint:  cfg.Tunable("endpoint", openverseEndpoint),
		license:   cfg.Tunable("license_type", ""),
	}, nil
}

type openverseResponse struct {
	Results []struct {
		Title       string `json:"title"`
		URL         string `json:"url"`
		Thumbnail   string `json:"thumbnail"`
		LandingPage string `json:"foreign_landing_url"`
		Width       int    `json:"width"`
		Height      int    `json:"height"`
	} `json:"results"`
}

// Discover runs one search request. Safe search excludes mature results.
func (o *Openverse) Discover(ctx context.Context, query string, limits crawler.DiscoverLimits, _ crawler.Page) ([]crawler.Candidate, error) {
	if limits.Cap <= 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("q", query)
	params.Set("page_size", strconv.Itoa(min(limits.Cap, openverseMaxPage)))
	params.Set("mature", strconv.FormatBool(!limits.SafeSearch))
	if o.license != "" {
		params.Set("license_type", o.license)
	}

	var body openverseResponse
	if err := o.getJSON(ctx, o.endpoint+"?"+params.Encode(), limits, &body); err != nil {
		return nil, err
	}

	cands := make([]crawler.Candidate, 0, len(body.Results))
	for _, r := range body.Results {
		if len(cands) >= limits.Cap {
			break
		}
		if r.URL == "" {
			continue
		}
		o.remember(r.URL, r.Width, r.Height)
		cands = append(cands, crawler.Candidate{
			Source:       o.name,
			PreviewURL:   r.URL,
			DetailURL:    r.LandingPage,
			ThumbnailURL: r.Thumbnail,
			Title:        r.Title,
			Ordinal:      len(cands),
		})
	}
	return cands, nil
}
