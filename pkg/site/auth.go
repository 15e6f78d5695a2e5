package site

import (
	"maps"
	"net/http"
	"slices"
	"strings"
)

// AuthContext is the per-site cookie and header set attached to every
// request. It is built once and only read afterwards.
type AuthContext struct {
	cookies map[string]string
	headers map[string]string
}

// NewAuthContext builds an AuthContext from a raw "k=v; k2=v2" cookie string
// and a header map. Either may be empty.
func NewAuthContext(cookie string, headers map[string]string) AuthContext {
	a := AuthContext{
		cookies: ParseCookieString(cookie),
		headers: make(map[string]string, len(headers)),
	}
	for k, v := range headers {
		a.headers[http.CanonicalHeaderKey(strings.TrimSpace(k))] = v
	}
	return a
}

// ParseCookieString splits a Cookie header value into name/value pairs.
// Segments without "=" are ignored; values may themselves contain "=".
func ParseCookieString(raw string) map[string]string {
	out := make(map[string]string)
	for part := range strings.SplitSeq(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out[name] = strings.TrimSpace(value)
	}
	return out
}

// Cookies returns a copy of the parsed cookies.
func (a AuthContext) Cookies() map[string]string { return maps.Clone(a.cookies) }

// Headers returns a copy of the extra request headers.
func (a AuthContext) Headers() map[string]string { return maps.Clone(a.headers) }

// CookieHeader renders the cookies as a Cookie header value with names in
// sorted order, or "" when there are none.
func (a AuthContext) CookieHeader() string {
	if len(a.cookies) == 0 {
		return ""
	}
	names := slices.Sorted(maps.Keys(a.cookies))
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+"="+a.cookies[name])
	}
	return strings.Join(parts, "; ")
}

// Apply sets the headers and Cookie header on h.
func (a AuthContext) Apply(h http.Header) {
	for k, v := range a.headers {
		h.Set(k, v)
	}
	if cookie := a.CookieHeader(); cookie != "" {
		h.Set("Cookie", cookie)
	}
}
