package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ashureev/borichat/internal/i18n"
	"github.com/ashureev/borichat/internal/run"
)

// AssistantIDSetting is the settings key holding the provisioned assistant.
const AssistantIDSetting = "openai_assistant_id"

const (
	defaultModel         = "gpt-4o-mini"
	defaultAssistantName = "BoriChat Assistant"
)

// Settings persists small key/value pairs. A missing key reads as "".
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, error)
	PutSetting(ctx context.Context, key, value string) error
}

// IDResolver finds the assistant to run: the configured id, then the one
// stored in settings, and as a last resort a newly created assistant. The
// result is resolved once per resolver.
type IDResolver struct {
	mu       sync.Mutex
	id       string
	client   *openai.Client
	settings Settings
	model    string
	name     string
	logger   *slog.Logger
}

// NewIDResolver creates a resolver. configured may be empty.
func NewIDResolver(client *openai.Client, settings Settings, configured, model string, logger *slog.Logger) *IDResolver {
	if model == "" {
		model = defaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IDResolver{
		id:       configured,
		client:   client,
		settings: settings,
		model:    model,
		name:     defaultAssistantName,
		logger:   logger,
	}
}

// Resolve returns the assistant id.
func (r *IDResolver) Resolve(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.id != "" {
		return r.id, nil
	}

	if r.settings != nil {
		id, err := r.settings.GetSetting(ctx, AssistantIDSetting)
		if err != nil {
			return "", fmt.Errorf("failed to read assistant id: %w", err)
		}
		if id != "" {
			r.id = id
			return id, nil
		}
	}

	name := r.name
	created, err := r.client.CreateAssistant(ctx, openai.AssistantRequest{
		Model: r.model,
		Name:  &name,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create assistant: %w", err)
	}
	r.logger.Info("Created OpenAI assistant", "assistant_id", created.ID, "model", r.model)

	if r.settings != nil {
		if err := r.settings.PutSetting(ctx, AssistantIDSetting, created.ID); err != nil {
			r.logger.Warn("Failed to store assistant id", "error", err)
		}
	}
	r.id = created.ID
	return r.id, nil
}

// OpenAIBackend runs the assistant on the OpenAI Assistants API.
type OpenAIBackend struct {
	client  *openai.Client
	ids     *IDResolver
	catalog *i18n.Catalog
	logger  *slog.Logger
}

// NewOpenAIBackend creates a backend.
func NewOpenAIBackend(client *openai.Client, ids *IDResolver, catalog *i18n.Catalog, logger *slog.Logger) *OpenAIBackend {
	if catalog == nil {
		catalog = i18n.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIBackend{client: client, ids: ids, catalog: catalog, logger: logger}
}

// StartRun appends the message to the thread, creating the thread when
// threadID is empty, and starts a run. Errors answered by the API are
// returned as StartResult.Error.
func (b *OpenAIBackend) StartRun(ctx context.Context, message, threadID string) (run.StartResult, error) {
	assistantID, err := b.ids.Resolve(ctx)
	if err != nil {
		return apiFailure(err)
	}

	if threadID == "" {
		thread, err := b.client.CreateThread(ctx, openai.ThreadRequest{})
		if err != nil {
			return apiFailure(fmt.Errorf("failed to create thread: %w", err))
		}
		threadID = thread.ID
	}

	if _, err := b.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: message,
	}); err != nil {
		return apiFailure(fmt.Errorf("failed to add message: %w", err))
	}

	r, err := b.client.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: assistantID})
	if err != nil {
		return apiFailure(fmt.Errorf("failed to create run: %w", err))
	}

	b.logger.Debug("Assistant run created", "thread_id", threadID, "run_id", r.ID)
	return run.StartResult{ThreadID: threadID, RunID: r.ID}, nil
}

// apiFailure turns an API error into a domain error and passes transport
// errors through.
func apiFailure(err error) (run.StartResult, error) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return run.StartResult{Error: apiErr.Message}, nil
	}
	return run.StartResult{}, err
}

// PollRun reports the run status. A completed run carries the formatted
// newest assistant message.
func (b *OpenAIBackend) PollRun(ctx context.Context, req run.PollRequest) (run.PollResult, error) {
	r, err := b.client.RetrieveRun(ctx, req.ThreadID, req.RunID)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == 404 {
			return run.PollResult{}, fmt.Errorf("%w: %s", run.ErrRunNotFound, req.RunID)
		}
		return run.PollResult{}, fmt.Errorf("failed to retrieve run: %w", err)
	}

	keep := run.PollResult{
		AwaitingMapConfirmation: req.State.AwaitingMapConfirmation,
		LastMapLink:             req.State.LastMapLink,
	}

	switch r.Status {
	case openai.RunStatusCompleted:
		text, err := b.latestReply(ctx, req.ThreadID)
		if err != nil {
			return run.PollResult{}, err
		}
		reply := FormatReply(text, req.State, func(lang string) string {
			return b.catalog.Text(i18n.MapLinkOffer, lang)
		})
		return run.PollResult{
			Status:                  run.StatusCompleted,
			BotResponseText:         reply.Text,
			LanguageForTTS:          reply.Language,
			AwaitingMapConfirmation: reply.AwaitingMapConfirmation,
			LastMapLink:             reply.LastMapLink,
		}, nil
	case openai.RunStatusFailed, openai.RunStatusCancelled, openai.RunStatusExpired:
		reason := string(r.Status)
		if r.LastError != nil && r.LastError.Message != "" {
			reason = r.LastError.Message
		}
		b.logger.Warn("Assistant run did not complete", "run_id", req.RunID, "status", r.Status, "reason", reason)
		keep.Status = run.StatusFailed
		keep.BotResponseText = b.catalog.Text(i18n.GenericError, req.Language)
		return keep, nil
	case openai.RunStatusQueued:
		keep.Status = run.StatusQueued
		return keep, nil
	default:
		keep.Status = run.StatusInProgress
		return keep, nil
	}
}

func (b *OpenAIBackend) latestReply(ctx context.Context, threadID string) (string, error) {
	limit := 1
	order := "desc"
	list, err := b.client.ListMessage(ctx, threadID, &limit, &order, nil, nil)
	if err != nil {
		return "", fmt.Errorf("failed to list messages: %w", err)
	}
	for _, m := range list.Messages {
		if m.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		for _, c := range m.Content {
			if c.Text != nil {
				return c.Text.Value, nil
			}
		}
	}
	return "", nil
}
