package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/image-crawler/internal/metrics"
)

const allowAllRobots = "User-agent: *\nAllow: /"

var defaultRobotsBackoff = []time.Duration{
	250 * time.Millisecond,
	500 * time.Millisecond,
	time.Second,
}

// robotsTransport retries robots.txt probes that time out and answers
// allow-all once the retries run out. A host that fell back stays allow-all
// for the transport's lifetime.
type robotsTransport struct {
	base    http.RoundTripper
	backoff []time.Duration

	mu       sync.Mutex
	allowAll map[string]struct{}
}

func newRobotsTransport(base http.RoundTripper, backoff []time.Duration) *robotsTransport {
	return &robotsTransport{
		base:     base,
		backoff:  backoff,
		allowAll: make(map[string]struct{}),
	}
}

func (t *robotsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("robots transport: request has no URL")
	}
	if !strings.EqualFold(req.URL.Path, "/robots.txt") {
		resp, err := t.base.RoundTrip(req)
		if err != nil {
			return nil, fmt.Errorf("roundtrip %s: %w", req.URL.Host, err)
		}
		return resp, nil
	}
	host := strings.ToLower(req.URL.Host)
	if t.fellBack(host) {
		return allowAllResponse(req), nil
	}
	return t.probe(req, host)
}

func (t *robotsTransport) probe(req *http.Request, host string) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := t.base.RoundTrip(req.Clone(req.Context()))
		if err == nil {
			return resp, nil
		}
		if !isTimeout(err) {
			return nil, fmt.Errorf("fetch robots.txt for %s: %w", host, err)
		}
		if attempt >= len(t.backoff) {
			t.markFallback(host)
			metrics.ObserveRobotsTLSFallback()
			return allowAllResponse(req), nil
		}
		if err := wait(req.Context(), t.backoff[attempt]); err != nil {
			return nil, fmt.Errorf("fetch robots.txt for %s: %w", host, err)
		}
	}
}

func (t *robotsTransport) fellBack(host string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.allowAll[host]
	return ok
}

func (t *robotsTransport) markFallback(host string) {
	t.mu.Lock()
	t.allowAll[host] = struct{}{}
	t.mu.Unlock()
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func allowAllResponse(req *http.Request) *http.Response {
	return &http.Response{
		StatusCode:    http.StatusOK,
		Status:        "200 OK",
		Body:          io.NopCloser(strings.NewReader(allowAllRobots)),
		ContentLength: int64(len(allowAllRobots)),
		Header:        http.Header{"Content-Type": {"text/plain"}},
		Request:       req,
	}
}

// isTimeout reports deadline and TLS handshake timeouts, the failures worth
// retrying for a robots probe.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "tls: handshake timeout")
}
