// Package textnorm holds the pure text helpers used by the widget: speech
// preparation, affirmative-reply detection and map link extraction.
//
// Every function here is total and side-effect free.
package textnorm

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	urlPattern      = regexp.MustCompile(`https?://\S+`)
	latLngPattern   = regexp.MustCompile(`(-?\d{1,2}\.\d+)\s*,\s*(-?\d{1,3}\.\d+)`)
	mapIntent       = regexp.MustCompile(`coor|map`)
	citationPattern = regexp.MustCompile(`【\d+:\w+†[^】]+】`)
	emojiPattern    = regexp.MustCompile(`[\x{1F300}-\x{1F9FF}\x{2600}-\x{26FF}\x{2700}-\x{27BF}]`)
	spacePattern    = regexp.MustCompile(`\s+`)

	mapsLinkPattern = regexp.MustCompile(`(?i)https?://(?:www\.)?(?:maps\.app\.goo\.gl|google\.[^\s/]+/maps)\S*`)
	coordPattern    = regexp.MustCompile(`(-?\d{1,2}(?:\.\d+)?)[,\s]+(-?\d{1,3}(?:\.\d+)?)`)
	placePattern    = regexp.MustCompile(`(?i)(?:recomiendo|recomendar|visita|visit|checkout|ve a|dir[íi]gete a)\s+([^.\n]+)`)
	spanishPattern  = regexp.MustCompile(`(?i)wepa|[áéíóúñ¿¡]`)
)

// affirmatives are matched as substrings of the lowercased reply.
var affirmatives = []string{"yes", "ok", "sure", "dale", "si", "sí", "claro"}

const mapsSearchURL = "https://www.google.com/maps/search/?api=1&query="

// PrepareForSpeech removes URLs and latitude/longitude pairs so they are not
// read aloud.
func PrepareForSpeech(text string) string {
	// Removing a token can join its neighbours into a new match, so repeat
	// until the text is stable.
	for {
		next := urlPattern.ReplaceAllString(text, "")
		next = latLngPattern.ReplaceAllString(next, "")
		next = strings.TrimSpace(next)
		if next == text {
			return next
		}
		text = next
	}
}

// IsAffirmative reports whether a user reply reads as a "yes" to a pending
// map link offer. It is a best-effort heuristic: "ok" inside "look" or "si"
// inside "visit" both count, which is accepted.
func IsAffirmative(text string) bool {
	if text == "" {
		return false
	}
	normalized := strings.ToLower(text)
	for _, w := range affirmatives {
		if strings.Contains(normalized, w) {
			return true
		}
	}
	return mapIntent.MatchString(normalized)
}

// RemoveCitations strips assistant file-search citation markers.
func RemoveCitations(text string) string {
	return citationPattern.ReplaceAllString(text, "")
}

// CleanForTTS prepares text for speech and also drops emoji and collapses
// whitespace.
func CleanForTTS(text string) string {
	text = PrepareForSpeech(text)
	text = emojiPattern.ReplaceAllString(text, "")
	return strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))
}

// DetectLanguage returns "es" when the text looks Spanish, otherwise "en".
func DetectLanguage(text string) string {
	if spanishPattern.MatchString(text) {
		return "es"
	}
	return "en"
}

// ExtractMapLink finds a map link for the reply. A literal Google Maps URL
// wins and is removed from the returned text; otherwise a coordinate pair or a
// recommended place is turned into a maps search URL and the text is left
// as is. An empty link means nothing was found.
func ExtractMapLink(text string) (link, rest string) {
	if loc := mapsLinkPattern.FindStringIndex(text); loc != nil {
		link = text[loc[0]:loc[1]]
		rest = strings.TrimSpace(text[:loc[0]] + text[loc[1]:])
		return link, rest
	}
	if m := coordPattern.FindStringSubmatch(text); m != nil {
		return mapsSearchURL + m[1] + "," + m[2], text
	}
	if m := placePattern.FindStringSubmatch(text); m != nil {
		place := strings.TrimSpace(m[1])
		if place != "" {
			return mapsSearchURL + url.QueryEscape(place), text
		}
	}
	return "", text
}
