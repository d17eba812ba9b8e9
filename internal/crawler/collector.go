package crawler

import (
	"slices"
	"sync"

	"linkcrawler/pkg/types"
)

// LinkSet collects every in-scope link seen during a crawl. The same URL may
// appear under several labels.
type LinkSet struct {
	mu    sync.Mutex
	links map[types.Link]struct{}
}

// NewLinkSet returns an empty set.
func NewLinkSet() *LinkSet {
	return &LinkSet{links: make(map[types.Link]struct{})}
}

// Add inserts link and reports whether it was new.
func (s *LinkSet) Add(link types.Link) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[link]; ok {
		return false
	}
	s.links[link] = struct{}{}
	return true
}

// Len is the number of distinct links.
func (s *LinkSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.links)
}

// Sorted returns the links ordered for reporting.
func (s *LinkSet) Sorted() []types.Link {
	s.mu.Lock()
	out := make([]types.Link, 0, len(s.links))
	for link := range s.links {
		out = append(out, link)
	}
	s.mu.Unlock()
	slices.SortFunc(out, types.CompareLinks)
	return out
}
