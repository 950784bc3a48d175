// Package assistant provides the run backends: the OpenAI Assistants API, an
// HTTP client for the functions endpoints and a gRPC client.
package assistant

import (
	"strings"

	"github.com/ashureev/borichat/internal/domain"
	"github.com/ashureev/borichat/internal/textnorm"
)

// Reply is an assistant answer prepared for the widget.
type Reply struct {
	Text                    string
	Language                string
	SpeechText              string
	AwaitingMapConfirmation string
	LastMapLink             string
}

// FormatReply cleans a raw assistant answer and settles the map link
// exchange. When the visitor confirmed a pending offer the link is appended;
// otherwise a link found in the answer is held back and offered with
// offer(language).
func FormatReply(raw string, state domain.RunState, offer func(lang string) string) Reply {
	text := strings.TrimSpace(textnorm.RemoveCitations(raw))
	r := Reply{LastMapLink: state.LastMapLink}

	if state.IncludeMapLink && state.AwaitingMapConfirmation != "" {
		r.LastMapLink = state.AwaitingMapConfirmation
		text = joinParagraphs(text, state.AwaitingMapConfirmation)
	} else if link, rest := textnorm.ExtractMapLink(text); link != "" {
		r.AwaitingMapConfirmation = link
		r.LastMapLink = link
		text = joinParagraphs(rest, offer(textnorm.DetectLanguage(rest)))
	}

	r.Text = text
	r.Language = textnorm.DetectLanguage(text)
	r.SpeechText = textnorm.CleanForTTS(text)
	return r
}

func joinParagraphs(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n\n" + b
}
