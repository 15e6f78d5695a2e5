// Package crawler walks category listings and schedules item extraction.
package crawler

import (
	"net/url"
	"strings"
	"sync"
)

// Deduplicator remembers every item URL claimed during one run.
type Deduplicator struct {
	mu      sync.Mutex
	claimed map[string]bool
}

// NewDeduplicator creates an empty deduplicator.
func NewDeduplicator() *Deduplicator {
	return &Deduplicator{
		claimed: make(map[string]bool),
	}
}

// Claim returns true the first time a URL is seen and false ever after.
// Unparseable URLs are never claimed.
func (d *Deduplicator) Claim(rawURL string) bool {
	normalized := normalizeURL(rawURL)
	if normalized == "" {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.claimed[normalized] {
		return false
	}
	d.claimed[normalized] = true
	return true
}

// Len returns the number of claimed URLs.
func (d *Deduplicator) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.claimed)
}

// normalizeURL normalizes a URL for comparison.
func normalizeURL(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Host == "" {
		return ""
	}

	parsed.Fragment = ""
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)

	// Remove trailing slash from path (unless it's just "/")
	if len(parsed.Path) > 1 && parsed.Path[len(parsed.Path)-1] == '/' {
		parsed.Path = parsed.Path[:len(parsed.Path)-1]
	}

	return parsed.String()
}
