// Package platform classifies source URLs into platform tags by ordered
// hostname matching. Classification is a pure total function: every accepted
// URL gets exactly one tag, defaulting to Generic.
package platform

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/mediagate/mediagate/internal/types"
)

// Generic is the fallback tag for hosts the table does not know.
const Generic = "generic"

type rule struct {
	tag   string
	hosts []string
}

// Ordered: earlier rules win. Matching is suffix-based so subdomains
// (music.youtube.com, m.tiktok.com) classify like their parent host.
var table = []rule{
	{"youtube", []string{"youtube.com", "youtu.be"}},
	{"tiktok", []string{"tiktok.com"}},
	{"instagram", []string{"instagram.com"}},
	{"twitter", []string{"twitter.com", "x.com"}},
	{"facebook", []string{"facebook.com", "fb.watch"}},
	{"twitch", []string{"twitch.tv"}},
	{"vimeo", []string{"vimeo.com"}},
}

// Classify validates raw and derives its platform tag.
// Only absolute http/https URLs are accepted.
func Classify(raw string) (types.SourceURL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return types.SourceURL{}, fmt.Errorf("%w: empty input", types.ErrInvalidURL)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return types.SourceURL{}, fmt.Errorf("%w: %q", types.ErrInvalidURL, raw)
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return types.SourceURL{}, fmt.Errorf("%w: scheme %q", types.ErrInvalidURL, u.Scheme)
	}
	if u.Host == "" {
		return types.SourceURL{}, fmt.Errorf("%w: missing host", types.ErrInvalidURL)
	}

	host := strings.ToLower(u.Hostname())

	normalized := *u
	normalized.Scheme = scheme
	normalized.Host = strings.ToLower(u.Host)
	normalized.Fragment = ""

	return types.SourceURL{
		Raw:        trimmed,
		Normalized: normalized.String(),
		Platform:   tagFor(host),
	}, nil
}

func tagFor(host string) string {
	for _, r := range table {
		for _, h := range r.hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return r.tag
			}
		}
	}
	return Generic
}
