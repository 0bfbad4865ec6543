// Package headers builds the HTTP request headers sent to upstream hosts.
//
// A Context is built once at startup from configuration and never mutated;
// every job derives its own copy with a Referer that matches how the stream
// was reached.
package headers

import (
	"net/http"
	"net/url"
)

// Set maps header names to values.
type Set map[string]string

// Clone returns an independent copy of s.
func (s Set) Clone() Set {
	out := make(Set, len(s)+1)
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Apply sets every header in s on req.
func (s Set) Apply(req *http.Request) {
	for k, v := range s {
		req.Header.Set(k, v)
	}
}

// Context holds the immutable base header set plus an optional Referer that
// replaces the derived origin for direct playlists.
type Context struct {
	base          Set
	directReferer string
}

// New builds a Context. The user agent is always sent and the cookie only
// when non-empty. A non-empty referer is used for direct playlist jobs in
// place of the playlist origin; embed jobs always send the embed URL.
func New(userAgent, cookie, referer string) *Context {
	base := Set{"User-Agent": userAgent}
	if cookie != "" {
		base["Cookie"] = cookie
	}
	return &Context{base: base, directReferer: referer}
}

// Base returns a copy of the base header set.
func (c *Context) Base() Set {
	return c.base.Clone()
}

// ForEmbed returns the base set with Referer set to the embed page URL.
func (c *Context) ForEmbed(embedURL string) Set {
	h := c.base.Clone()
	h["Referer"] = embedURL
	return h
}

// ForDirect returns the base set with Referer set to the configured referer,
// or else to scheme://host/ of the playlist URL. An unparsable URL with no
// configured referer gets no Referer.
func (c *Context) ForDirect(playlistURL string) Set {
	h := c.base.Clone()
	switch origin := Origin(playlistURL); {
	case c.directReferer != "":
		h["Referer"] = c.directReferer
	case origin != "":
		h["Referer"] = origin
	}
	return h
}

// Origin returns scheme://host/ for rawURL, or "" when it has neither.
func Origin(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}
