package parser

import (
	"net/url"
	"path"
	"strings"
)

// NormalizeURL resolves raw against base by filling in a missing scheme or
// host from base. It never fails: input that does not parse contributes empty
// components.
func NormalizeURL(raw, base string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		u = &url.URL{}
	}

	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil {
		b = &url.URL{}
	}

	if u.Scheme == "" {
		u.Scheme = b.Scheme
	}
	if u.Host == "" {
		u.Host = b.Host
		// "host/path" without a leading slash is a relative path once a
		// host is present.
		if u.Host != "" && u.Path != "" && !strings.HasPrefix(u.Path, "/") {
			u.Path = "/" + u.Path
		}
	}

	return u.String()
}

var productIDSuffixes = []string{".html", ".htm", ".php", ".aspx", ".jsp"}

// StripProductID turns a trailing URL path segment into a product identifier
// by dropping query, fragment and known page suffixes.
func StripProductID(segment string) string {
	if i := strings.IndexAny(segment, "?#"); i >= 0 {
		segment = segment[:i]
	}
	segment = strings.TrimSpace(segment)

	lower := strings.ToLower(segment)
	for _, suffix := range productIDSuffixes {
		if strings.HasSuffix(lower, suffix) {
			segment = segment[:len(segment)-len(suffix)]
			break
		}
	}

	return segment
}

// ProductID extracts the product identifier from a product URL or path.
func ProductID(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}

	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}

	return StripProductID(path.Base(p))
}
