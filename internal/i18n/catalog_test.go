package i18n

import "testing"

func TestDefaultCatalog(t *testing.T) {
	c := Default()

	if got := c.Text(EmailSent, "es"); got != "✅ ¡Email enviado con éxito!" {
		t.Fatalf("unexpected spanish text %q", got)
	}
	if got := c.Text(ActivityWarning, "en"); got != "Still there? Chat will close in 1 minute(s)." {
		t.Fatalf("unexpected english text %q", got)
	}
	for _, key := range []string{GenericError, ActivityWarning, ForceClose, EmailSent, EmailFailed,
		NothingToSend, AudioUnavailable, AudioFailed, MapLinkOffer} {
		if c.Text(key, "es") == key {
			t.Fatalf("key %q missing from embedded catalog", key)
		}
	}
}

func TestTextFallsBackToEnglish(t *testing.T) {
	c := Default()
	if got, want := c.Text(ForceClose, "fr"), c.Text(ForceClose, "en"); got != want {
		t.Fatalf("expected english fallback %q, got %q", want, got)
	}
	if got := c.Text("no_such_key", "en"); got != "no_such_key" {
		t.Fatalf("expected key echo, got %q", got)
	}
}

func TestParseRejectsMissingEnglish(t *testing.T) {
	if _, err := Parse([]byte("greeting:\n  es: hola\n")); err == nil {
		t.Fatal("expected error for key without english text")
	}
	if _, err := Parse([]byte("greeting: [")); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}
