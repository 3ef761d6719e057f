// Package pipeline validates, fetches, deduplicates, and stores one image
// candidate at a time.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	// Decoders registered for image.DecodeConfig.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/JakeFAU/image-crawler/internal/crawler"
	"github.com/JakeFAU/image-crawler/internal/dedup"
)

// Outcome classifies how a candidate left the pipeline.
type Outcome int

// Candidate outcomes. Rejections by a filter are Skipped; fetch and write
// failures are Errored.
const (
	Accepted Outcome = iota
	Skipped
	Errored
)

func (o Outcome) String() string {
	switch o {
	case Accepted:
		return "accepted"
	case Skipped:
		return "skipped"
	default:
		return "errored"
	}
}

// Result reports the outcome for one candidate.
type Result struct {
	Outcome Outcome
	// Reason is a short human-readable explanation for Skipped and Errored.
	Reason string
	// Path is the written file for Accepted results.
	Path string
	Hash string
	Err  error
}

// Config wires the pipeline's collaborators.
type Config struct {
	Limits  crawler.Limits
	Fetcher crawler.Fetcher
	Hasher  crawler.Hasher
	Writer  crawler.ImageWriter
	// Mirror is optional; failures are logged only.
	Mirror crawler.Mirror
	Dedup  *dedup.Set
	Logger *zap.Logger
}

// Pipeline runs the ordered candidate checks.
type Pipeline struct {
	cfg     Config
	allowed []string
	logger  *zap.Logger
}

// knownImageExtensions are extensions treated as a real image type. A URL
// with any other extension gets the default extension instead of a rejection.
var knownImageExtensions = map[string]struct{}{
	"jpg": {}, "png": {}, "gif": {}, "webp": {}, "bmp": {}, "tif": {}, "tiff": {},
	"svg": {}, "avif": {}, "ico": {}, "heic": {},
}

// New builds a Pipeline. A nil Dedup set starts empty.
func New(cfg Config) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Dedup == nil {
		cfg.Dedup = dedup.New()
	}
	return &Pipeline{
		cfg:     cfg,
		allowed: normalizeExtensions(cfg.Limits.AllowedExtensions),
		logger:  logger.Named("pipeline"),
	}
}

// Process runs candidate through every check, short-circuiting on the first
// failure. The fetch and the write run to completion even if ctx is cancelled
// meanwhile; they are bounded by the limits timeout instead.
func (p *Pipeline) Process(ctx context.Context, adapter crawler.Adapter, cand crawler.Candidate, resolved string) Result {
	u, err := crawler.ValidateURL(resolved)
	if err != nil {
		return skip("invalid url", err)
	}

	ext, ok := p.extension(u)
	if !ok {
		return skip(fmt.Sprintf("extension %q not allowed", ext), nil)
	}

	probed := false
	if p.wantsDimensions() {
		if prober, ok := adapter.(crawler.DimensionProber); ok {
			if w, h, known := prober.ProbeDimensions(ctx, u.String()); known {
				probed = true
				if !p.bigEnough(w, h) {
					return skip(fmt.Sprintf("dimensions %dx%d below minimum", w, h), nil)
				}
			}
		}
	}

	work, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.Limits.Timeout())
	defer cancel()

	resp, err := p.cfg.Fetcher.Fetch(work, crawler.FetchRequest{
		URL:     u.String(),
		Headers: fetchHeaders(cand),
		Timeout: p.cfg.Limits.Timeout(),
	})
	if err != nil {
		return fail("fetch failed", err)
	}
	if !resp.OK() {
		return fail(fmt.Sprintf("fetch returned status %d", resp.StatusCode), nil)
	}
	if isMarkup(resp.ContentType) {
		return skip(fmt.Sprintf("content type %q is not an image", resp.ContentType), nil)
	}
	if int64(len(resp.Body)) < p.cfg.Limits.MinByteSize {
		return skip(fmt.Sprintf("%d bytes below minimum", len(resp.Body)), nil)
	}
	if p.wantsDimensions() && !probed {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(resp.Body)); err == nil && !p.bigEnough(cfg.Width, cfg.Height) {
			return skip(fmt.Sprintf("dimensions %dx%d below minimum", cfg.Width, cfg.Height), nil)
		}
	}

	sum, err := p.cfg.Hasher.Hash(resp.Body)
	if err != nil {
		return fail("hash failed", err)
	}
	if p.cfg.Dedup.Contains(sum) {
		return Result{Outcome: Skipped, Reason: "duplicate content", Hash: sum}
	}

	name := crawler.ImageFilename(cand.Source, u, ext, shortHash(sum))
	path, err := p.cfg.Writer.Write(work, name, resp.Body)
	if err != nil {
		return fail("write failed", err)
	}
	p.cfg.Dedup.Add(sum)
	p.mirror(work, filepath.Base(path), ext, resp.ContentType, resp.Body)

	return Result{Outcome: Accepted, Path: path, Hash: sum}
}

// extension returns the extension to save under. ok is false only when the
// URL names a known image type that is not allowed.
func (p *Pipeline) extension(u *url.URL) (string, bool) {
	ext := crawler.URLExtension(u)
	if ext == "" {
		return p.defaultExtension(), true
	}
	for _, allowed := range p.allowed {
		if ext == allowed {
			return ext, true
		}
	}
	if _, known := knownImageExtensions[ext]; known {
		return ext, false
	}
	return p.defaultExtension(), true
}

func (p *Pipeline) defaultExtension() string {
	if len(p.allowed) == 0 {
		return "jpg"
	}
	return p.allowed[0]
}

func (p *Pipeline) wantsDimensions() bool {
	return p.cfg.Limits.MinWidth > 0 || p.cfg.Limits.MinHeight > 0
}

func (p *Pipeline) bigEnough(w, h int) bool {
	return w >= p.cfg.Limits.MinWidth && h >= p.cfg.Limits.MinHeight
}

func (p *Pipeline) mirror(ctx context.Context, name, ext, contentType string, data []byte) {
	if p.cfg.Mirror == nil {
		return
	}
	if contentType == "" {
		contentType = mime.TypeByExtension("." + ext)
	}
	uri, err := p.cfg.Mirror.Upload(ctx, name, contentType, data)
	if err != nil {
		p.logger.Warn("mirror upload failed", zap.String("name", name), zap.Error(err))
		return
	}
	p.logger.Debug("mirrored image", zap.String("uri", uri))
}

func fetchHeaders(cand crawler.Candidate) http.Header {
	headers := http.Header{"Accept": {"image/avif,image/webp,image/*,*/*;q=0.8"}}
	if cand.DetailURL != "" {
		headers.Set("Referer", cand.DetailURL)
	}
	return headers
}

func isMarkup(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(contentType))
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

func normalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, ext := range exts {
		ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
		if ext == "jpeg" {
			ext = "jpg"
		}
		if ext != "" {
			out = append(out, ext)
		}
	}
	return out
}

func shortHash(sum string) string {
	if len(sum) > 12 {
		return sum[:12]
	}
	return sum
}

func skip(reason string, err error) Result {
	return Result{Outcome: Skipped, Reason: reason, Err: err}
}

func fail(reason string, err error) Result {
	return Result{Outcome: Errored, Reason: reason, Err: err}
}
