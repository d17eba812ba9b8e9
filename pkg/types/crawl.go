package types

import (
	"cmp"
	"strings"
	"time"
)

// Link is an anchor discovered on a crawled page. Two links are the same only
// when both label and URL match.
type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

func (l Link) String() string {
	return l.Label + " -> " + l.URL
}

// CompareLinks orders links by label ignoring case, then by URL, then by the
// raw label so the order is total.
func CompareLinks(a, b Link) int {
	if c := cmp.Compare(strings.ToLower(a.Label), strings.ToLower(b.Label)); c != 0 {
		return c
	}
	if c := cmp.Compare(a.URL, b.URL); c != 0 {
		return c
	}
	return cmp.Compare(a.Label, b.Label)
}

// Page represents the fetched content.
type Page struct {
	URL             string
	Body            string
	ContentType     string
	StatusCode      int
	ResponseLatency time.Duration
}

// Report aggregates the outcome of a finished (or abandoned) crawl.
type Report struct {
	Seed        string    `json:"seed"`
	Domain      string    `json:"domain"`
	Visited     []string  `json:"visited"`
	Links       []Link    `json:"links"`
	FetchErrors int64     `json:"fetch_errors"`
	Complete    bool      `json:"complete"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// VisitedCount is the number of distinct URLs claimed during the crawl.
func (r *Report) VisitedCount() int {
	if r == nil {
		return 0
	}
	return len(r.Visited)
}

// LinkCount is the number of distinct links collected during the crawl.
func (r *Report) LinkCount() int {
	if r == nil {
		return 0
	}
	return len(r.Links)
}
