package textnorm

import (
	"strings"
	"testing"
)

func TestPrepareForSpeechStripsLinksAndCoordinates(t *testing.T) {
	in := "Try La Placita https://maps.app.goo.gl/abc123 at 18.4655, -66.1057 tonight "
	got := PrepareForSpeech(in)

	if urlPattern.MatchString(got) {
		t.Fatalf("expected URL to be removed: %q", got)
	}
	if latLngPattern.MatchString(got) {
		t.Fatalf("expected coordinates to be removed: %q", got)
	}
	if !strings.HasPrefix(got, "Try La Placita") || !strings.HasSuffix(got, "tonight") {
		t.Fatalf("expected surrounding text to remain trimmed: %q", got)
	}
}

func TestPrepareForSpeechIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"plain text",
		"http://a.com/x https://b.com/y",
		"18.1,-66.2",
		"18.1https://x.y,-66.2",
		"go to 18.4655 , -66.1057 or http://example.com",
		"¿Dónde? 1.5, 2.5 https://maps.google.com/maps?q=1",
	}
	for _, in := range inputs {
		once := PrepareForSpeech(in)
		twice := PrepareForSpeech(once)
		if once != twice {
			t.Errorf("not idempotent for %q: %q != %q", in, once, twice)
		}
		if urlPattern.MatchString(once) || latLngPattern.MatchString(once) {
			t.Errorf("residual URL or coordinates for %q: %q", in, once)
		}
	}
}

func TestIsAffirmative(t *testing.T) {
	cases := map[string]bool{
		"Sí, claro":        true,
		"YES please":       true,
		"dale":             true,
		"send the map":     true,
		"coordinates?":     true,
		"no gracias":       false,
		"":                 false,
		"nope":             false,
		"what time is it?": false,
	}
	for in, want := range cases {
		if got := IsAffirmative(in); got != want {
			t.Errorf("IsAffirmative(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestExtractMapLinkLiteralURL(t *testing.T) {
	link, rest := ExtractMapLink("Eat at El Jibarito https://maps.app.goo.gl/xyz enjoy!")
	if link != "https://maps.app.goo.gl/xyz" {
		t.Fatalf("unexpected link %q", link)
	}
	if strings.Contains(rest, "maps.app.goo.gl") {
		t.Fatalf("link should be stripped from text: %q", rest)
	}
}

func TestExtractMapLinkCoordinates(t *testing.T) {
	link, rest := ExtractMapLink("The beach is at 18.47, -66.12")
	if link != mapsSearchURL+"18.47,-66.12" {
		t.Fatalf("unexpected link %q", link)
	}
	if rest != "The beach is at 18.47, -66.12" {
		t.Fatalf("text should be untouched: %q", rest)
	}
}

func TestExtractMapLinkPlace(t *testing.T) {
	link, _ := ExtractMapLink("Te recomiendo La Factoría. Es buenísimo")
	if link != mapsSearchURL+"La+Factor%C3%ADa" {
		t.Fatalf("unexpected link %q", link)
	}
}

func TestExtractMapLinkNone(t *testing.T) {
	link, rest := ExtractMapLink("Hello there")
	if link != "" || rest != "Hello there" {
		t.Fatalf("expected no link, got %q / %q", link, rest)
	}
}

func TestDetectLanguage(t *testing.T) {
	if got := DetectLanguage("¡Wepa! Vamos"); got != "es" {
		t.Fatalf("expected es, got %s", got)
	}
	if got := DetectLanguage("Let's go"); got != "en" {
		t.Fatalf("expected en, got %s", got)
	}
}

func TestRemoveCitationsAndCleanForTTS(t *testing.T) {
	got := RemoveCitations("Open late【4:0†guide.pdf】.")
	if got != "Open late." {
		t.Fatalf("unexpected citation removal: %q", got)
	}
	clean := CleanForTTS("Hola 🌊   amigo\n https://x.y")
	if clean != "Hola amigo" {
		t.Fatalf("unexpected TTS text: %q", clean)
	}
}
