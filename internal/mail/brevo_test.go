package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBrevoMailerSendsEscapedMessage(t *testing.T) {
	var got brevoEmail
	var apiKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey = r.Header.Get("api-key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"messageId":"<1@brevo>"}`))
	}))
	defer srv.Close()

	m := NewBrevoMailer(BrevoConfig{
		APIKey:     "key-1",
		Endpoint:   srv.URL,
		Sender:     "hola@borichat.test",
		SenderName: "BoriChat",
	}, nil)

	if err := m.SendEmail(context.Background(), " guest@example.com ", "Try <b>mofongo</b>\nat 5pm"); err != nil {
		t.Fatalf("SendEmail: %v", err)
	}
	if apiKey != "key-1" {
		t.Fatalf("expected api-key header, got %q", apiKey)
	}
	if len(got.To) != 1 || got.To[0].Email != "guest@example.com" {
		t.Fatalf("unexpected recipients: %+v", got.To)
	}
	if got.Sender.Email != "hola@borichat.test" || got.Sender.Name != "BoriChat" {
		t.Fatalf("unexpected sender: %+v", got.Sender)
	}
	want := "<p>Try &lt;b&gt;mofongo&lt;/b&gt;<br>at 5pm</p>"
	if got.HTMLContent != want {
		t.Fatalf("HTMLContent = %q, want %q", got.HTMLContent, want)
	}
	if got.Subject == "" {
		t.Fatal("expected default subject")
	}
}

func TestBrevoMailerRejectsBadAddress(t *testing.T) {
	m := NewBrevoMailer(BrevoConfig{Endpoint: "http://127.0.0.1:1"}, nil)
	err := m.SendEmail(context.Background(), "not an email", "hi")
	if !errors.Is(err, ErrInvalidAddress) {
		t.Fatalf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestBrevoMailerReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"code":"unauthorized"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	m := NewBrevoMailer(BrevoConfig{Endpoint: srv.URL}, nil)
	if err := m.SendEmail(context.Background(), "guest@example.com", "hi"); err == nil {
		t.Fatal("expected error")
	}
}
