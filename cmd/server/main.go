// BoriChat - chat widget bridge server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	openai "github.com/sashabaranov/go-openai"
	"google.golang.org/grpc"

	"github.com/ashureev/borichat/internal/api"
	"github.com/ashureev/borichat/internal/assistant"
	"github.com/ashureev/borichat/internal/bridge"
	"github.com/ashureev/borichat/internal/config"
	"github.com/ashureev/borichat/internal/convlog"
	"github.com/ashureev/borichat/internal/i18n"
	"github.com/ashureev/borichat/internal/identity"
	"github.com/ashureev/borichat/internal/inactivity"
	"github.com/ashureev/borichat/internal/mail"
	"github.com/ashureev/borichat/internal/middleware"
	"github.com/ashureev/borichat/internal/retention"
	"github.com/ashureev/borichat/internal/run"
	"github.com/ashureev/borichat/internal/speech"
	"github.com/ashureev/borichat/internal/store"
	"github.com/ashureev/borichat/web"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "backend", cfg.Assistant.Backend)

	repo, err := openRepository(cfg)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	catalog := i18n.Default()

	var openaiClient *openai.Client
	if cfg.Assistant.OpenAIAPIKey != "" {
		openaiClient = openai.NewClient(cfg.Assistant.OpenAIAPIKey)
	}

	var functions *assistant.HTTPClient
	if cfg.Assistant.FunctionsBaseURL != "" {
		functions = assistant.NewHTTPClient(cfg.Assistant.FunctionsBaseURL, cfg.Timers.RequestTimeout)
	}

	// Run backend.
	var backend run.Assistant
	switch cfg.Assistant.Backend {
	case config.BackendOpenAI:
		ids := assistant.NewIDResolver(openaiClient, repo, cfg.Assistant.OpenAIAssistant, cfg.Assistant.OpenAIModel, logger)
		backend = assistant.NewOpenAIBackend(openaiClient, ids, catalog, logger)
	case config.BackendHTTP:
		backend = functions
	case config.BackendGRPC:
		grpcCfg := assistant.DefaultGRPCClientConfig()
		grpcCfg.Address = cfg.Assistant.GRPCAddr
		grpcClient, err := assistant.NewGRPCClient(grpcCfg, logger)
		if err != nil {
			slog.Error("Failed to connect to assistant service", "address", cfg.Assistant.GRPCAddr, "error", err)
			os.Exit(1)
		}
		defer grpcClient.Close()
		backend = grpcClient
	}
	slog.Info("Assistant backend ready", "backend", cfg.Assistant.Backend)

	// Speech and email are optional.
	var speaker bridge.Speaker
	switch {
	case openaiClient != nil:
		speaker = speech.NewOpenAISpeaker(openaiClient, cfg.Assistant.TTSModel, cfg.Assistant.TTSVoice, logger)
	case functions != nil:
		speaker = functions
	default:
		slog.Info("Speech disabled (OPENAI_API_KEY and FUNCTIONS_BASE_URL not set)")
	}

	var mailer bridge.Mailer
	switch {
	case cfg.EmailEnabled():
		mailer = mail.NewBrevoMailer(mail.BrevoConfig{
			APIKey:     cfg.Email.BrevoAPIKey,
			Sender:     cfg.Email.Sender,
			SenderName: cfg.Email.SenderName,
			Subject:    cfg.Email.Subject,
			Timeout:    cfg.Timers.RequestTimeout,
		}, logger)
	case functions != nil:
		mailer = functions
	default:
		slog.Info("Email disabled (BREVO_API_KEY or EMAIL_SENDER not set)")
	}

	conversationLogger, err := convlog.New(convlog.Config{
		Enabled:       cfg.ConversationLog.Enabled,
		Dir:           cfg.ConversationLog.Dir,
		GlobalEnabled: cfg.ConversationLog.GlobalEnabled,
		GlobalPath:    cfg.ConversationLog.GlobalPath,
		QueueSize:     cfg.ConversationLog.QueueSize,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize conversation logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversationLogger.Close(); closeErr != nil {
			slog.Error("Failed to close conversation logger", "error", closeErr)
		}
	}()
	transcripts := convlog.NewTee(repo, repo, conversationLogger)

	// Widgets.
	widgets := bridge.NewManager()
	widgetCfg := bridge.Config{
		Timers: inactivity.Durations{
			InitialClose:      cfg.Timers.InitialCloseAfter,
			Warning:           cfg.Timers.WarningAfter,
			CloseAfterWarning: cfg.Timers.CloseAfterWarning,
		},
		Run: run.Options{
			PollInterval:      cfg.Timers.PollInterval,
			SurfacePollErrors: cfg.Timers.SurfacePollErrors,
			RequestTimeout:    cfg.Timers.RequestTimeout,
			PersistTimeout:    run.DefaultOptions().PersistTimeout,
		},
		RequestTimeout: cfg.Timers.RequestTimeout,
	}
	wsHandler := bridge.NewWebSocketHandler(widgets, bridge.Deps{
		Assistant: backend,
		Persister: transcripts,
		Mailer:    mailer,
		Speaker:   speaker,
		Recorder:  transcripts,
		Catalog:   catalog,
		Logger:    logger,
	}, widgetCfg, cfg.AllowedOrigins, cfg.IsDevelopment())

	// Handlers.
	baseHandler := api.NewHandler(repo, widgets)
	healthHandler := api.NewHealthHandler(baseHandler, 5*time.Second)
	sessionHandler := api.NewSessionHandler(baseHandler)
	functionsHandler := api.NewFunctionsHandler(api.FunctionsDeps{
		Assistant: backend,
		Speaker:   speaker,
		Mailer:    mailer,
		Persister: transcripts,
		Timeout:   cfg.Timers.RequestTimeout,
	})

	// Setup router.
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(corsOrigins(cfg)))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	healthHandler.RegisterHealth(r)
	sessionHandler.RegisterRoutes(r)
	functionsHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/widget", wsHandler.ServeHTTP)

	// Serve the embedded host page.
	r.Handle("/*", web.SPAHandler())

	// Websocket connections are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	retention.NewWorker(repo, cfg.ChatRetention, retention.DefaultInterval, func(removed int64) {
		slog.Info("Purged expired chat sessions", "removed", removed)
	}).Start(ctx)

	var grpcServer *grpc.Server
	if cfg.Assistant.GRPCListenAddr != "" {
		grpcServer, err = serveAssistant(cfg.Assistant.GRPCListenAddr, backend)
		if err != nil {
			slog.Error("Failed to start assistant gRPC server", "error", err)
			os.Exit(1)
		}
	}

	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	widgets.CloseAll()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}

func openRepository(cfg *config.Config) (store.Repository, error) {
	if cfg.DatabaseURL != "" {
		slog.Info("Using Postgres store")
		return store.NewPostgres(cfg.DatabaseURL)
	}
	slog.Info("Using SQLite store", "path", cfg.DBPath)
	return store.NewSQLite(cfg.DBPath)
}

func corsOrigins(cfg *config.Config) []string {
	if len(cfg.AllowedOrigins) == 0 || cfg.IsDevelopment() {
		return []string{"*"}
	}
	return cfg.AllowedOrigins
}

func serveAssistant(addr string, backend run.Assistant) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	s := grpc.NewServer()
	assistant.RegisterAssistantService(s, backend)
	go func() {
		slog.Info("Assistant gRPC server listening", "addr", addr)
		if err := s.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			slog.Error("Assistant gRPC server failed", "error", err)
		}
	}()
	return s, nil
}
