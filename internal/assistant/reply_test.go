package assistant

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ashureev/borichat/internal/domain"
)

func offerFor(lang string) string {
	if lang == "es" {
		return "¿Quieres el enlace?"
	}
	return "Want the link?"
}

func TestFormatReplyPlainAnswer(t *testing.T) {
	reply := FormatReply("Hello there 【4:0†source】", domain.RunState{LastMapLink: "https://old"}, offerFor)

	require.Equal(t, "Hello there", reply.Text)
	require.Equal(t, "en", reply.Language)
	require.Equal(t, "Hello there", reply.SpeechText)
	require.Empty(t, reply.AwaitingMapConfirmation)
	require.Equal(t, "https://old", reply.LastMapLink)
}

func TestFormatReplyHoldsBackLinkAndOffersIt(t *testing.T) {
	reply := FormatReply("Prueba El Jibarito https://maps.app.goo.gl/xyz ¡Buen provecho!", domain.RunState{}, offerFor)

	require.Equal(t, "https://maps.app.goo.gl/xyz", reply.AwaitingMapConfirmation)
	require.Equal(t, "https://maps.app.goo.gl/xyz", reply.LastMapLink)
	require.NotContains(t, reply.Text, "maps.app.goo.gl")
	require.True(t, strings.HasSuffix(reply.Text, "\n\n¿Quieres el enlace?"), reply.Text)
	require.Equal(t, "es", reply.Language)
}

func TestFormatReplyAppendsConfirmedLink(t *testing.T) {
	state := domain.RunState{
		AwaitingMapConfirmation: "https://maps.app.goo.gl/xyz",
		IncludeMapLink:          true,
	}
	reply := FormatReply("Here you go.", state, offerFor)

	require.Equal(t, "Here you go.\n\nhttps://maps.app.goo.gl/xyz", reply.Text)
	require.Empty(t, reply.AwaitingMapConfirmation)
	require.Equal(t, "https://maps.app.goo.gl/xyz", reply.LastMapLink)
	require.NotContains(t, reply.SpeechText, "https://")
}

func TestFormatReplyIgnoresConfirmationWithoutPendingOffer(t *testing.T) {
	reply := FormatReply("Just text", domain.RunState{IncludeMapLink: true}, offerFor)

	require.Equal(t, "Just text", reply.Text)
	require.Empty(t, reply.AwaitingMapConfirmation)
}
