package fetcher

import (
	"net/url"
	"strings"
)

// Relay is an upstream URL-rewriting proxy (ScraperAPI style). Requests for
// a target are sent to BaseURL?key=APIKey&url=target instead.
type Relay struct {
	BaseURL string
	APIKey  string
}

// Enabled reports whether the relay is configured.
func (r *Relay) Enabled() bool {
	return r != nil && r.BaseURL != ""
}

// Rewrite returns the relay URL for target. The target is query-escaped so
// its own query string survives the trip. A disabled relay returns target.
func (r *Relay) Rewrite(target string) string {
	if !r.Enabled() {
		return target
	}
	sep := "?"
	if strings.Contains(r.BaseURL, "?") {
		sep = "&"
	}
	return r.BaseURL + sep + "key=" + url.QueryEscape(r.APIKey) + "&url=" + url.QueryEscape(target)
}
