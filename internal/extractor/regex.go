package extractor

import (
	"iter"
	"log/slog"
	"net/url"
	"regexp"

	"golang.org/x/net/html"

	"linkcrawler/pkg/types"
)

var (
	anchorPattern = regexp.MustCompile(`(?is)<a\s+(?:[^>]*?\s)?href\s*=\s*["']([^"']*)["'][^>]*>(.*?)</a\s*>`)
	tagPattern    = regexp.MustCompile(`(?s)<[^>]*>`)
)

// RegexExtractor scans raw markup with a regular expression. It tolerates
// broken documents but misreads unusual attribute quoting.
type RegexExtractor struct {
	scope  Scope
	logger *slog.Logger
}

// NewRegexExtractor builds a regex based extractor for scope.
func NewRegexExtractor(scope Scope, logger *slog.Logger) *RegexExtractor {
	return &RegexExtractor{scope: scope, logger: orDiscard(logger)}
}

// Extract yields in-scope links in document order.
func (r *RegexExtractor) Extract(body string, base *url.URL) iter.Seq[types.Link] {
	return func(yield func(types.Link) bool) {
		if base == nil {
			return
		}
		rest := body
		for rest != "" {
			loc := anchorPattern.FindStringSubmatchIndex(rest)
			if loc == nil {
				return
			}
			href := rest[loc[2]:loc[3]]
			label := stripTags(rest[loc[4]:loc[5]])
			rest = rest[loc[1]:]

			link, ok := candidate(r.scope, r.logger, base, html.UnescapeString(href), label)
			if !ok {
				continue
			}
			if !yield(link) {
				return
			}
		}
	}
}

func stripTags(fragment string) string {
	return html.UnescapeString(tagPattern.ReplaceAllString(fragment, ""))
}
