package crawler

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

var invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

const maxBaseLen = 80

// SanitizeName strips characters unsafe in filenames and trims separators.
func SanitizeName(raw string) string {
	clean := invalidFilenameChars.ReplaceAllString(raw, "_")
	clean = strings.Trim(clean, "._-")
	if len(clean) > maxBaseLen {
		clean = clean[:maxBaseLen]
	}
	return clean
}

// ImageFilename builds "<source>_<base>.<ext>" for u. fallback is used when
// the URL path yields no usable base name.
func ImageFilename(source string, u *url.URL, ext, fallback string) string {
	base := ""
	if u != nil {
		last := path.Base(u.Path)
		if unescaped, err := url.PathUnescape(last); err == nil {
			last = unescaped
		}
		base = SanitizeName(strings.TrimSuffix(last, path.Ext(last)))
	}
	if base == "" {
		base = SanitizeName(fallback)
	}
	prefix := SanitizeName(source)
	if prefix == "" {
		prefix = "image"
	}
	return prefix + "_" + base + "." + ext
}
