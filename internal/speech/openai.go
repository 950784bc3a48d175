// Package speech turns assistant replies into playable audio.
package speech

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ashureev/borichat/internal/bridge"
)

const (
	defaultModel = "tts-1-hd"
	defaultVoice = "alloy"

	audioURIPrefix = "data:audio/mpeg;base64,"
	maxAudioBytes  = 32 << 20
)

// OpenAISpeaker synthesizes speech with the OpenAI audio API and returns it
// as a data URI.
type OpenAISpeaker struct {
	client *openai.Client
	model  openai.SpeechModel
	voice  openai.SpeechVoice
	logger *slog.Logger
}

// NewOpenAISpeaker creates a speaker. Empty model or voice use tts-1-hd and
// alloy.
func NewOpenAISpeaker(client *openai.Client, model, voice string, logger *slog.Logger) *OpenAISpeaker {
	if model == "" {
		model = defaultModel
	}
	if voice == "" {
		voice = defaultVoice
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAISpeaker{
		client: client,
		model:  openai.SpeechModel(model),
		voice:  openai.SpeechVoice(voice),
		logger: logger,
	}
}

// GenerateSpeech implements bridge.Speaker. Input problems are reported in
// SpeechResult.Error; API and transport failures are returned as errors.
func (s *OpenAISpeaker) GenerateSpeech(ctx context.Context, text, language string) (bridge.SpeechResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return bridge.SpeechResult{Error: "text is required"}, nil
	}

	audio, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return bridge.SpeechResult{}, fmt.Errorf("failed to create speech: %w", err)
	}
	defer audio.Close()

	data, err := io.ReadAll(io.LimitReader(audio, maxAudioBytes))
	if err != nil {
		return bridge.SpeechResult{}, fmt.Errorf("failed to read speech audio: %w", err)
	}
	if len(data) == 0 {
		return bridge.SpeechResult{Error: "empty audio"}, nil
	}

	s.logger.Debug("Speech generated", "language", language, "bytes", len(data))
	return bridge.SpeechResult{AudioURI: audioURIPrefix + base64.StdEncoding.EncodeToString(data)}, nil
}
