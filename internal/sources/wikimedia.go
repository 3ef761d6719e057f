package sources

import (
	"context"
	"net/url"
	"sort"
	"strconv"

	"github.com/JakeFAU/image-crawler/internal/crawler"
)

// WikimediaName is the registered name of the Wikimedia Commons source.
const WikimediaName = "wikimedia"

const wikimediaEndpoint = "https://commons.wikimedia.org/w/api.php"

// Wikimedia searches the File namespace of Wikimedia Commons.
type Wikimedia struct {
	*apiSource
	endpoint string
}

var (
	_ crawler.Adapter         = (*Wikimedia)(nil)
	_ crawler.DimensionProber = (*Wikimedia)(nil)
	_ crawler.BrowserUser     = (*Wikimedia)(nil)
)

// NewWikimedia is the Factory for the Wikimedia source. The endpoint tunable
// overrides the API URL.
func NewWikimedia(name string, cfg SourceConfig, deps Deps) (crawler.Adapter, error) {
	base, err := newAPISource(name, cfg, deps)
	if err != nil {
		return nil, err
	}
	return &Wikimedia{apiSource: base, endpoint: cfg.Tunable("endpoint", wikimediaEndpoint)}, nil
}

type wikimediaResponse struct {
	Query struct {
		Pages map[string]struct {
			Title     string `json:"title"`
			Index     int    `json:"index"`
			ImageInfo []struct {
				URL            string `json:"url"`
				DescriptionURL string `json:"descriptionurl"`
				ThumbURL       string `json:"thumburl"`
				Width          int    `json:"width"`
				Height         int    `json:"height"`
			} `json:"imageinfo"`
		} `json:"pages"`
	} `json:"query"`
}

// Discover runs one search request. The page is ignored.
func (w *Wikimedia) Discover(ctx context.Context, query string, limits crawler.DiscoverLimits, _ crawler.Page) ([]crawler.Candidate, error) {
	if limits.Cap <= 0 {
		return nil, nil
	}
	params := url.Values{}
	params.Set("action", "query")
	params.Set("format", "json")
	params.Set("generator", "search")
	params.Set("gsrsearch", query)
	params.Set("gsrnamespace", "6")
	params.Set("gsrlimit", strconv.Itoa(limits.Cap))
	params.Set("prop", "imageinfo")
	params.Set("iiprop", "url|size|mime")
	params.Set("iiurlwidth", "320")

	var body wikimediaResponse
	if err := w.getJSON(ctx, w.endpoint+"?"+params.Encode(), limits, &body); err != nil {
		return nil, err
	}

	type page struct {
		index int
		cand  crawler.Candidate
	}
	pages := make([]page, 0, len(body.Query.Pages))
	for _, p := range body.Query.Pages {
		if len(p.ImageInfo) == 0 || p.ImageInfo[0].URL == "" {
			continue
		}
		info := p.ImageInfo[0]
		w.remember(info.URL, info.Width, info.Height)
		pages = append(pages, page{index: p.Index, cand: crawler.Candidate{
			Source:       w.name,
			PreviewURL:   info.URL,
			DetailURL:    info.DescriptionURL,
			ThumbnailURL: info.ThumbURL,
			Title:        p.Title,
		}})
	}
	sort.SliceStable(pages, func(i, j int) bool { return pages[i].index < pages[j].index })

	cands := make([]crawler.Candidate, 0, len(pages))
	for i, p := range pages {
		if i >= limits.Cap {
			break
		}
		p.cand.Ordinal = i
		cands = append(cands, p.cand)
	}
	return cands, nil
}
