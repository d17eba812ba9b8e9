// Package extractor finds same-domain anchors in fetched HTML.
package extractor

import (
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"strings"

	"linkcrawler/internal/config"
	"linkcrawler/internal/logging"
	"linkcrawler/internal/urlutil"
	"linkcrawler/pkg/types"
)

// Extractor turns a page body into the in-scope links it contains. The
// returned sequence re-scans body on every iteration.
type Extractor interface {
	Extract(body string, base *url.URL) iter.Seq[types.Link]
}

// ResolutionError reports an href that could not be resolved against its page.
type ResolutionError struct {
	Href string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve href %q: %v", e.Href, e.Err)
}

func (e *ResolutionError) Unwrap() error {
	return e.Err
}

// Scope restricts links to a single host.
type Scope struct {
	domain string
}

// NewScope builds a scope for domain; comparisons ignore case.
func NewScope(domain string) Scope {
	return Scope{domain: strings.ToLower(strings.TrimSpace(domain))}
}

// Domain returns the host the scope admits.
func (s Scope) Domain() string {
	return s.domain
}

// Contains reports whether u is an http(s) URL on the scope's host.
func (s Scope) Contains(u *url.URL) bool {
	if u == nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return false
	}
	return urlutil.SameHost(u, s.domain)
}

// New returns the extractor named by kind.
func New(kind string, scope Scope, logger *slog.Logger) (Extractor, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case config.ExtractorRegex, "":
		return NewRegexExtractor(scope, logger), nil
	case config.ExtractorHTML, "goquery":
		return NewDocumentExtractor(scope, logger), nil
	default:
		return nil, fmt.Errorf("unsupported extractor %q", kind)
	}
}

// Resolve resolves href against base and strips the fragment.
func Resolve(base *url.URL, href string) (*url.URL, error) {
	if base == nil {
		return nil, &ResolutionError{Href: href, Err: fmt.Errorf("missing base url")}
	}
	u, err := base.Parse(href)
	if err != nil {
		return nil, &ResolutionError{Href: href, Err: err}
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u, nil
}

// candidate applies the shared href/label rules and reports whether the pair
// becomes a link.
func candidate(scope Scope, logger *slog.Logger, base *url.URL, href, label string) (types.Link, bool) {
	href = strings.TrimSpace(href)
	label = strings.TrimSpace(label)
	if href == "" || label == "" {
		return types.Link{}, false
	}
	if strings.HasPrefix(href, "#") {
		return types.Link{}, false
	}
	u, err := Resolve(base, href)
	if err != nil {
		logger.Debug("dropping unresolvable href", "base", base.String(), "error", err)
		return types.Link{}, false
	}
	if !scope.Contains(u) {
		return types.Link{}, false
	}
	return types.Link{Label: label, URL: urlutil.Canonical(u)}, true
}

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return logging.Discard()
}
