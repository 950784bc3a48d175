// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Assistant backends.
const (
	BackendOpenAI = "openai"
	BackendHTTP   = "http"
	BackendGRPC   = "grpc"
)

// Config holds all application configuration.
type Config struct {
	Port           string
	FrontendURL    string
	AllowedOrigins []string
	DBPath         string
	DatabaseURL    string // Postgres DSN; when set it replaces the SQLite store
	ChatRetention  time.Duration

	Timers          TimerConfig
	Assistant       AssistantConfig
	Email           EmailConfig
	ConversationLog ConversationLogConfig
}

// TimerConfig holds the inactivity and polling durations.
type TimerConfig struct {
	InitialCloseAfter time.Duration
	WarningAfter      time.Duration
	CloseAfterWarning time.Duration
	PollInterval      time.Duration
	SurfacePollErrors bool
	RequestTimeout    time.Duration
}

// AssistantConfig selects and configures the run backend and speech.
type AssistantConfig struct {
	Backend          string
	FunctionsBaseURL string
	GRPCAddr         string
	GRPCListenAddr   string // serves the configured backend over gRPC when set
	OpenAIAPIKey     string
	OpenAIAssistant  string
	OpenAIModel      string
	TTSModel         string
	TTSVoice         string
}

// EmailConfig configures transactional email.
type EmailConfig struct {
	BrevoAPIKey string
	Sender      string
	SenderName  string
	Subject     string
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),
		DBPath:         getEnv("DB_PATH", "./data/borichat.db"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		ChatRetention:  getEnvDuration("CHAT_RETENTION", 30*24*time.Hour),
		Timers: TimerConfig{
			InitialCloseAfter: getEnvDuration("INITIAL_CLOSE_AFTER", 60*time.Second),
			WarningAfter:      getEnvDuration("WARNING_AFTER", 120*time.Second),
			CloseAfterWarning: getEnvDuration("CLOSE_AFTER_WARNING", 60*time.Second),
			PollInterval:      getEnvDuration("POLL_INTERVAL", 3*time.Second),
			SurfacePollErrors: getEnvBool("SURFACE_POLL_ERRORS", false),
			RequestTimeout:    getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		},
		Assistant: AssistantConfig{
			Backend:          strings.ToLower(getEnv("ASSISTANT_BACKEND", BackendOpenAI)),
			FunctionsBaseURL: getEnv("FUNCTIONS_BASE_URL", ""),
			GRPCAddr:         getEnv("ASSISTANT_GRPC_ADDR", "localhost:50051"),
			GRPCListenAddr:   getEnv("ASSISTANT_GRPC_LISTEN", ""),
			OpenAIAPIKey:     getEnv("OPENAI_API_KEY", ""),
			OpenAIAssistant:  getEnv("OPENAI_ASSISTANT_ID", ""),
			OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o-mini"),
			TTSModel:         getEnv("OPENAI_TTS_MODEL", "tts-1-hd"),
			TTSVoice:         getEnv("OPENAI_TTS_VOICE", "alloy"),
		},
		Email: EmailConfig{
			BrevoAPIKey: getEnv("BREVO_API_KEY", ""),
			Sender:      getEnv("EMAIL_SENDER", ""),
			SenderName:  getEnv("EMAIL_SENDER_NAME", "BoriChat"),
			Subject:     getEnv("EMAIL_SUBJECT", "Your BoriChat conversation"),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
	}

	if len(cfg.AllowedOrigins) == 0 && cfg.FrontendURL != "" {
		cfg.AllowedOrigins = []string{cfg.FrontendURL}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" && c.DatabaseURL == "" {
		return fmt.Errorf("DB_PATH or DATABASE_URL must be set")
	}
	if c.Timers.InitialCloseAfter <= 0 || c.Timers.WarningAfter <= 0 || c.Timers.CloseAfterWarning <= 0 {
		return fmt.Errorf("inactivity durations must be > 0")
	}
	if c.Timers.PollInterval <= 0 {
		return fmt.Errorf("POLL_INTERVAL must be > 0")
	}

	switch c.Assistant.Backend {
	case BackendOpenAI:
		if c.Assistant.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for the openai backend")
		}
	case BackendHTTP:
		if c.Assistant.FunctionsBaseURL == "" {
			return fmt.Errorf("FUNCTIONS_BASE_URL is required for the http backend")
		}
	case BackendGRPC:
		if c.Assistant.GRPCAddr == "" {
			return fmt.Errorf("ASSISTANT_GRPC_ADDR is required for the grpc backend")
		}
	default:
		return fmt.Errorf("unknown ASSISTANT_BACKEND %q", c.Assistant.Backend)
	}
	if c.Assistant.Backend == BackendGRPC && c.Assistant.GRPCListenAddr != "" {
		return fmt.Errorf("ASSISTANT_GRPC_LISTEN cannot be used with the grpc backend")
	}

	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalEnabled && c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// EmailEnabled reports whether a mail provider is configured.
func (c *Config) EmailEnabled() bool {
	return c.Email.BrevoAPIKey != "" && c.Email.Sender != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("90s") and bare seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}

func getEnvList(key string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
