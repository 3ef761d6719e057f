package crawler

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// AbsoluteURL resolves ref against base and keeps only http(s) results.
func AbsoluteURL(base, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") || strings.HasPrefix(ref, "javascript:") {
		return "", false
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	if !refURL.IsAbs() {
		baseURL, err := url.Parse(base)
		if err != nil || !baseURL.IsAbs() {
			return "", false
		}
		refURL = baseURL.ResolveReference(refURL)
	}
	if !isHTTP(refURL) {
		return "", false
	}
	refURL.Fragment = ""
	return refURL.String(), true
}

// ValidateURL parses raw and requires an absolute http(s) URL with a host.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if !isHTTP(u) {
		return nil, fmt.Errorf("unsupported url %q", raw)
	}
	return u, nil
}

// URLExtension returns the lowercase extension of the URL path without the dot.
func URLExtension(u *url.URL) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
	if ext == "jpeg" {
		return "jpg"
	}
	return ext
}

// Host returns the lowercase hostname of raw, or "unknown".
func Host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

func isHTTP(u *url.URL) bool {
	if u == nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}
