// Package mail sends conversation replies to visitors by email.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"
)

// DefaultBrevoEndpoint is the Brevo transactional email API.
const DefaultBrevoEndpoint = "https://api.brevo.com/v3/smtp/email"

// ErrInvalidAddress is returned for a recipient that is not an email address.
var ErrInvalidAddress = errors.New("invalid email address")

// BrevoConfig configures a BrevoMailer.
type BrevoConfig struct {
	APIKey     string
	Endpoint   string
	Sender     string
	SenderName string
	Subject    string
	Timeout    time.Duration
}

// BrevoMailer delivers messages through Brevo.
type BrevoMailer struct {
	cfg    BrevoConfig
	http   *http.Client
	logger *slog.Logger
}

type brevoContact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

type brevoEmail struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
}

// NewBrevoMailer creates a mailer.
func NewBrevoMailer(cfg BrevoConfig, logger *slog.Logger) *BrevoMailer {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultBrevoEndpoint
	}
	if cfg.Subject == "" {
		cfg.Subject = "Your BoriChat conversation"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BrevoMailer{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

// SendEmail implements bridge.Mailer.
func (m *BrevoMailer) SendEmail(ctx context.Context, email, message string) error {
	addr, err := mail.ParseAddress(strings.TrimSpace(email))
	if err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidAddress, email)
	}

	payload, err := json.Marshal(brevoEmail{
		Sender:      brevoContact{Name: m.cfg.SenderName, Email: m.cfg.Sender},
		To:          []brevoContact{{Email: addr.Address}},
		Subject:     m.cfg.Subject,
		HTMLContent: renderHTML(message),
	})
	if err != nil {
		return fmt.Errorf("failed to encode email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build email request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", m.cfg.APIKey)

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("email request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("email rejected with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	m.logger.Info("Conversation email sent", "status", resp.StatusCode)
	return nil
}

// renderHTML escapes the message and keeps its line breaks.
func renderHTML(message string) string {
	escaped := html.EscapeString(message)
	return "<p>" + strings.ReplaceAll(escaped, "\n", "<br>") + "</p>"
}
