package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/borichat/internal/bridge"
	"github.com/ashureev/borichat/internal/domain"
	"github.com/ashureev/borichat/internal/run"
)

// Paths of the functions endpoints.
const (
	RunPath       = "/functions/openai-run"
	SendEmailPath = "/functions/send-email"
	SpeechPath    = "/functions/tts"
	SaveChatPath  = "/functions/save-chat"
)

var errUnexpectedStatus = errors.New("unexpected status")

// RunRequest is the body of RunPath. A request with a RunID polls, any other
// request starts a run.
type RunRequest struct {
	Message      string           `json:"message,omitempty"`
	ThreadID     string           `json:"threadId,omitempty"`
	RunID        string           `json:"runId,omitempty"`
	Language     string           `json:"language,omitempty"`
	SessionState *domain.RunState `json:"sessionState,omitempty"`
}

// SendEmailRequest is the body of SendEmailPath.
type SendEmailRequest struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

// SpeechRequest is the body of SpeechPath.
type SpeechRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// SaveChatRequest is the body of SaveChatPath.
type SaveChatRequest struct {
	SessionID string      `json:"sessionId"`
	Role      domain.Role `json:"role"`
	Message   string      `json:"message"`
}

type errorBody struct {
	Error string `json:"error"`
}

// HTTPClient talks to a functions deployment. It covers the run, email,
// speech and transcript endpoints.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient creates a client for the deployment at baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// StartRun implements run.Assistant.
func (c *HTTPClient) StartRun(ctx context.Context, message, threadID string) (run.StartResult, error) {
	var res run.StartResult
	status, err := c.post(ctx, RunPath, RunRequest{Message: message, ThreadID: threadID}, &res)
	if err != nil {
		return run.StartResult{}, err
	}
	if res.Error != "" {
		return res, nil
	}
	if status != http.StatusOK {
		return run.StartResult{}, fmt.Errorf("%w %d from %s", errUnexpectedStatus, status, RunPath)
	}
	return res, nil
}

// PollRun implements run.Assistant.
func (c *HTTPClient) PollRun(ctx context.Context, req run.PollRequest) (run.PollResult, error) {
	state := req.State
	body := RunRequest{ThreadID: req.ThreadID, RunID: req.RunID, Language: req.Language, SessionState: &state}

	var res struct {
		run.PollResult
		errorBody
	}
	status, err := c.post(ctx, RunPath, body, &res)
	if err != nil {
		return run.PollResult{}, err
	}
	if status != http.StatusOK {
		return run.PollResult{}, fmt.Errorf("%w %d from %s: %s", errUnexpectedStatus, status, RunPath, res.Error)
	}
	return res.PollResult, nil
}

// SendEmail implements bridge.Mailer.
func (c *HTTPClient) SendEmail(ctx context.Context, email, message string) error {
	var res errorBody
	status, err := c.post(ctx, SendEmailPath, SendEmailRequest{Email: email, Message: message}, &res)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w %d from %s: %s", errUnexpectedStatus, status, SendEmailPath, res.Error)
	}
	return nil
}

// GenerateSpeech implements bridge.Speaker.
func (c *HTTPClient) GenerateSpeech(ctx context.Context, text, language string) (bridge.SpeechResult, error) {
	var res bridge.SpeechResult
	status, err := c.post(ctx, SpeechPath, SpeechRequest{Text: text, Language: language}, &res)
	if err != nil {
		return bridge.SpeechResult{}, err
	}
	if res.Error != "" {
		return res, nil
	}
	if status != http.StatusOK {
		return bridge.SpeechResult{}, fmt.Errorf("%w %d from %s", errUnexpectedStatus, status, SpeechPath)
	}
	return res, nil
}

// SaveMessage implements run.Persister.
func (c *HTTPClient) SaveMessage(ctx context.Context, sessionID string, role domain.Role, text string) error {
	var res errorBody
	status, err := c.post(ctx, SaveChatPath, SaveChatRequest{SessionID: sessionID, Role: role, Message: text}, &res)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w %d from %s: %s", errUnexpectedStatus, status, SaveChatPath, res.Error)
	}
	return nil
}

// post sends body as JSON and decodes a JSON response into out, whatever the
// status. A body that is not JSON is only an error on success statuses.
func (c *HTTPClient) post(ctx context.Context, path string, body, out any) (int, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("failed to encode %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s request failed: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read %s response: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(data, out); err != nil && resp.StatusCode == http.StatusOK {
		return resp.StatusCode, fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return resp.StatusCode, nil
}
