package extractor

import (
	"iter"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"linkcrawler/pkg/types"
)

// DocumentExtractor parses the page into a DOM and walks a[href] elements.
type DocumentExtractor struct {
	scope  Scope
	logger *slog.Logger
}

// NewDocumentExtractor builds a DOM based extractor for scope.
func NewDocumentExtractor(scope Scope, logger *slog.Logger) *DocumentExtractor {
	return &DocumentExtractor{scope: scope, logger: orDiscard(logger)}
}

// Extract yields in-scope links in document order.
func (d *DocumentExtractor) Extract(body string, base *url.URL) iter.Seq[types.Link] {
	return func(yield func(types.Link) bool) {
		if base == nil {
			return
		}
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			d.logger.Debug("link extraction failed", "base", base.String(), "error", err)
			return
		}
		doc.Find("a[href]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, ok := s.Attr("href")
			if !ok {
				return true
			}
			link, ok := candidate(d.scope, d.logger, base, href, s.Text())
			if !ok {
				return true
			}
			return yield(link)
		})
	}
}
