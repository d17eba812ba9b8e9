// Package urlutil normalises seed and discovered URLs into the keys the crawl
// frontier deduplicates on.
package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
)

var (
	// ErrEmptySeed is returned when no seed URL was supplied.
	ErrEmptySeed = errors.New("seed url is empty")
	// ErrInvalidSeed is returned when the seed cannot be used as a crawl root.
	ErrInvalidSeed = errors.New("invalid seed url")
)

const canonicalFlags = purell.FlagsSafe | purell.FlagRemoveFragment

// NormalizeSeed turns user input into an absolute crawl root: a missing scheme
// defaults to https and a single trailing slash is dropped.
func NormalizeSeed(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmptySeed
	}
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		if strings.Contains(raw, "://") {
			return nil, fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidSeed, raw)
		}
		raw = "https://" + raw
	}
	raw = strings.TrimSuffix(raw, "/")

	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSeed, err)
	}
	if parsed.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q missing host", ErrInvalidSeed, raw)
	}
	parsed.Fragment = ""
	parsed.RawFragment = ""
	return parsed, nil
}

// Domain is the lowercase host a crawl is restricted to.
func Domain(u *url.URL) string {
	if u == nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Canonical renders u as a frontier key: lowercase scheme and host, default
// port removed, no fragment. A bare "/" path is treated like an empty one so
// that links back to the site root match the seed.
func Canonical(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	if c.User != nil {
		user := *c.User
		c.User = &user
	}
	if c.Path == "/" {
		c.Path = ""
		c.RawPath = ""
	}
	return purell.NormalizeURL(&c, canonicalFlags)
}

// SameHost reports whether u lives on domain, ignoring case and port.
func SameHost(u *url.URL, domain string) bool {
	if u == nil || domain == "" {
		return false
	}
	return strings.EqualFold(u.Hostname(), domain)
}
