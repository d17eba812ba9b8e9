// Package frontier tracks which URLs have been claimed for crawling.
package frontier

import (
	"slices"
	"sync"
)

// Frontier is the set of URLs that have been claimed for processing, whether
// still in flight or already done. A URL is claimed at most once.
type Frontier struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

// New returns an empty frontier. sizeHint pre-sizes the visited set.
func New(sizeHint int) *Frontier {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &Frontier{claimed: make(map[string]struct{}, sizeHint)}
}

// TryClaim inserts key if absent and reports whether this call inserted it.
// The caller that gets true owns dispatching the URL.
func (f *Frontier) TryClaim(key string) bool {
	if key == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.claimed[key]; ok {
		return false
	}
	f.claimed[key] = struct{}{}
	return true
}

// Len is the number of claimed URLs.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.claimed)
}

// Visited returns the claimed URLs in lexical order.
func (f *Frontier) Visited() []string {
	f.mu.Lock()
	out := make([]string, 0, len(f.claimed))
	for key := range f.claimed {
		out = append(out, key)
	}
	f.mu.Unlock()
	slices.Sort(out)
	return out
}
