package domain

import "strings"

// PlaylistReference is a resolved playlist URL and the base used to resolve
// relative segment references.
type PlaylistReference struct {
	URL  string
	Base string
}

// NewPlaylistReference builds a reference whose Base is url truncated to and
// including its final "/".
func NewPlaylistReference(url string) PlaylistReference {
	return PlaylistReference{URL: url, Base: BasePath(url)}
}

// BasePath returns url up to and including its last "/".
func BasePath(url string) string {
	if i := strings.LastIndex(url, "/"); i >= 0 {
		return url[:i+1]
	}
	return ""
}

// Resolve turns a playlist line into a fully-qualified URL. References that
// begin with "http" are returned unchanged; everything else is appended to
// the base path without dot-segment normalization.
func (p PlaylistReference) Resolve(ref string) string {
	if strings.HasPrefix(ref, "http") {
		return ref
	}
	return p.Base + ref
}

// Segment is one media chunk in playlist order.
type Segment struct {
	Index int
	URL   string
}
