// Package run submits visitor messages to the assistant backend and polls
// each run until it reaches a terminal status.
package run

import (
	"context"
	"errors"

	"github.com/ashureev/borichat/internal/domain"
)

// Status is the lifecycle status of an assistant run.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether polling should stop on this status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ErrRunNotFound is returned by backends that cannot find a run to poll.
var ErrRunNotFound = errors.New("run not found")

// StartResult is the response to starting a run. A non-empty Error is a
// domain failure reported by the backend.
type StartResult struct {
	ThreadID string `json:"threadId,omitempty"`
	RunID    string `json:"runId,omitempty"`
	Error    string `json:"error,omitempty"`
}

// PollRequest asks for the progress of one run.
type PollRequest struct {
	ThreadID string          `json:"threadId"`
	RunID    string          `json:"runId"`
	Language string          `json:"language"`
	State    domain.RunState `json:"sessionState"`
}

// PollResult is the backend's view of a run.
type PollResult struct {
	Status                  Status `json:"status"`
	BotResponseText         string `json:"botResponseText,omitempty"`
	LanguageForTTS          string `json:"languageForTTS,omitempty"`
	AwaitingMapConfirmation string `json:"awaitingMapConfirmation,omitempty"`
	LastMapLink             string `json:"lastMapLink,omitempty"`
}

// Assistant starts and polls assistant runs.
type Assistant interface {
	StartRun(ctx context.Context, message, threadID string) (StartResult, error)
	PollRun(ctx context.Context, req PollRequest) (PollResult, error)
}

// Persister stores transcript entries. Failures are logged, never surfaced.
type Persister interface {
	SaveMessage(ctx context.Context, sessionID string, role domain.Role, text string) error
}

// Notifier delivers outbound notifications to the host surface.
type Notifier interface {
	Notify(n domain.Notification)
}

// Rearmer restarts the inactivity warning cycle.
type Rearmer interface {
	Rearm()
}
