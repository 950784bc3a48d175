package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/borichat/internal/assistant"
	"github.com/ashureev/borichat/internal/bridge"
	"github.com/ashureev/borichat/internal/mail"
	"github.com/ashureev/borichat/internal/run"
	"github.com/ashureev/borichat/internal/store"
)

// FunctionsHandler serves the collaborator endpoints used by remote widgets
// and by the HTTP assistant backend of other deployments.
type FunctionsHandler struct {
	assistant run.Assistant
	speaker   bridge.Speaker
	mailer    bridge.Mailer
	persister run.Persister
	timeout   time.Duration
}

// FunctionsDeps are the collaborators behind the functions endpoints. A nil
// speaker or mailer makes its endpoint answer 503.
type FunctionsDeps struct {
	Assistant run.Assistant
	Speaker   bridge.Speaker
	Mailer    bridge.Mailer
	Persister run.Persister
	Timeout   time.Duration
}

// NewFunctionsHandler creates the handler.
func NewFunctionsHandler(deps FunctionsDeps) *FunctionsHandler {
	if deps.Timeout <= 0 {
		deps.Timeout = 30 * time.Second
	}
	return &FunctionsHandler{
		assistant: deps.Assistant,
		speaker:   deps.Speaker,
		mailer:    deps.Mailer,
		persister: deps.Persister,
		timeout:   deps.Timeout,
	}
}

// RegisterRoutes registers the functions routes.
func (h *FunctionsHandler) RegisterRoutes(r chi.Router) {
	r.Post(assistant.RunPath, h.Run)
	r.Post(assistant.SpeechPath, h.Speech)
	r.Post(assistant.SendEmailPath, h.SendEmail)
	r.Post(assistant.SaveChatPath, h.SaveChat)
}

// Run starts a run, or polls one when the body carries a runId.
func (h *FunctionsHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req assistant.RunRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if req.RunID != "" {
		h.poll(ctx, w, req)
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		Error(w, http.StatusBadRequest, "message is required")
		return
	}
	res, err := h.assistant.StartRun(ctx, req.Message, req.ThreadID)
	if err != nil {
		slog.Error("Failed to start run", "thread_id", req.ThreadID, "error", err)
		Error(w, http.StatusBadGateway, "failed to start run")
		return
	}
	if res.Error != "" {
		Error(w, http.StatusBadGateway, res.Error)
		return
	}
	JSON(w, http.StatusOK, res)
}

func (h *FunctionsHandler) poll(ctx context.Context, w http.ResponseWriter, req assistant.RunRequest) {
	if req.ThreadID == "" {
		Error(w, http.StatusBadRequest, "threadId is required")
		return
	}
	pr := run.PollRequest{ThreadID: req.ThreadID, RunID: req.RunID, Language: req.Language}
	if req.SessionState != nil {
		pr.State = *req.SessionState
	}

	res, err := h.assistant.PollRun(ctx, pr)
	if errors.Is(err, run.ErrRunNotFound) {
		Error(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		slog.Error("Failed to poll run", "run_id", req.RunID, "error", err)
		Error(w, http.StatusBadGateway, "failed to poll run")
		return
	}
	JSON(w, http.StatusOK, res)
}

// Speech synthesizes text.
func (h *FunctionsHandler) Speech(w http.ResponseWriter, r *http.Request) {
	if h.speaker == nil {
		Error(w, http.StatusServiceUnavailable, "speech is not configured")
		return
	}
	var req assistant.SpeechRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	res, err := h.speaker.GenerateSpeech(ctx, req.Text, req.Language)
	if err != nil {
		slog.Error("Failed to generate speech", "error", err)
		Error(w, http.StatusBadGateway, "failed to generate speech")
		return
	}
	if res.Error != "" {
		Error(w, http.StatusBadRequest, res.Error)
		return
	}
	JSON(w, http.StatusOK, res)
}

// SendEmail mails a reply to the visitor.
func (h *FunctionsHandler) SendEmail(w http.ResponseWriter, r *http.Request) {
	if h.mailer == nil {
		Error(w, http.StatusServiceUnavailable, "email is not configured")
		return
	}
	var req assistant.SendEmailRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Email == "" || req.Message == "" {
		Error(w, http.StatusBadRequest, "email and message are required")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.mailer.SendEmail(ctx, req.Email, req.Message); err != nil {
		if errors.Is(err, mail.ErrInvalidAddress) {
			Error(w, http.StatusBadRequest, "invalid email address")
			return
		}
		slog.Error("Failed to send email", "error", err)
		Error(w, http.StatusBadGateway, "failed to send email")
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}

// SaveChat appends a transcript entry.
func (h *FunctionsHandler) SaveChat(w http.ResponseWriter, r *http.Request) {
	var req assistant.SaveChatRequest
	if err := decode(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.persister.SaveMessage(r.Context(), req.SessionID, req.Role, req.Message); err != nil {
		if errors.Is(err, store.ErrInvalidMessage) {
			Error(w, http.StatusBadRequest, err.Error())
			return
		}
		slog.Error("Failed to save chat message", "session_id", req.SessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to save message")
		return
	}
	JSON(w, http.StatusOK, map[string]bool{"success": true})
}
