package domain

import (
	"regexp"
	"strings"
)

// StreamKind classifies submitted text.
type StreamKind string

const (
	KindDirectPlaylist StreamKind = "direct_playlist"
	KindEmbedPage      StreamKind = "embed_page"
)

// StreamReference is submitted text together with its classification.
type StreamReference struct {
	Raw  string
	Kind StreamKind
	// URL is the playlist URL for direct playlists and the page URL for embed pages.
	URL string
}

var urlToken = regexp.MustCompile(`https?://[^\s'"<>]+`)

// Classify decides whether text names a playlist or an embed page.
// Text containing ".m3u8" is a direct playlist; otherwise a URL containing one
// of embedPatterns is an embed page. Anything else is not a request and
// Classify returns false.
func Classify(text string, embedPatterns []string) (StreamReference, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return StreamReference{}, false
	}

	if strings.Contains(text, ".m3u8") {
		ref := StreamReference{Raw: text, Kind: KindDirectPlaylist, URL: text}
		for _, tok := range urlToken.FindAllString(text, -1) {
			if strings.Contains(tok, ".m3u8") {
				ref.URL = tok
				break
			}
		}
		return ref, true
	}

	for _, tok := range urlToken.FindAllString(text, -1) {
		for _, p := range embedPatterns {
			if p != "" && strings.Contains(tok, p) {
				return StreamReference{Raw: text, Kind: KindEmbedPage, URL: tok}, true
			}
		}
	}

	return StreamReference{}, false
}
