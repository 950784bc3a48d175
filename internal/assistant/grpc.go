package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ashureev/borichat/internal/domain"
	"github.com/ashureev/borichat/internal/run"
)

// Service and method names of the assistant gRPC contract. Messages are
// google.protobuf.Struct values with the same fields as the JSON contract.
const (
	ServiceName    = "borichat.assistant.v1.AssistantService"
	startRunMethod = "/" + ServiceName + "/StartRun"
	pollRunMethod  = "/" + ServiceName + "/PollRun"
)

var (
	errConnectionShutdown       = errors.New("connection shutdown")
	errConnectionStateUnchanged = errors.New("connection state did not change")
)

// GRPCClientConfig holds configuration for the gRPC client.
type GRPCClientConfig struct {
	Address          string
	ConnectTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration
}

// DefaultGRPCClientConfig returns default configuration.
func DefaultGRPCClientConfig() GRPCClientConfig {
	return GRPCClientConfig{
		Address:          "localhost:50051",
		ConnectTimeout:   5 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
	}
}

// GRPCClient runs the assistant through a remote AssistantService.
type GRPCClient struct {
	conn   *grpc.ClientConn
	addr   string
	logger *slog.Logger
}

// NewGRPCClient connects to the service and waits until it is ready.
func NewGRPCClient(cfg GRPCClientConfig, logger *slog.Logger, opts ...grpc.DialOption) (*GRPCClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultGRPCClientConfig()
	if cfg.Address == "" {
		cfg.Address = def.Address
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = def.ConnectTimeout
	}
	if cfg.KeepaliveTime <= 0 {
		cfg.KeepaliveTime = def.KeepaliveTime
	}
	if cfg.KeepaliveTimeout <= 0 {
		cfg.KeepaliveTimeout = def.KeepaliveTimeout
	}

	kacp := keepalive.ClientParameters{
		Time:                cfg.KeepaliveTime,
		Timeout:             cfg.KeepaliveTimeout,
		PermitWithoutStream: false,
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, opts...)

	// Build client connection (no network I/O yet).
	conn, err := grpc.NewClient(cfg.Address, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to assistant service at %s: %w", cfg.Address, err)
	}

	// Fail fast on a bad endpoint.
	connectCtx, cancel := context.WithTimeout(context.Background(), cfg.ConnectTimeout)
	defer cancel()
	if err := waitForReady(connectCtx, conn); err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Warn("failed to close gRPC connection after readiness failure", "error", closeErr)
		}
		return nil, fmt.Errorf("assistant service at %s not ready: %w", cfg.Address, err)
	}

	logger.Info("Connected to assistant service", "address", cfg.Address)

	return &GRPCClient{conn: conn, addr: cfg.Address, logger: logger}, nil
}

func waitForReady(ctx context.Context, conn *grpc.ClientConn) error {
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Idle:
			conn.Connect()
		case connectivity.Shutdown:
			return errConnectionShutdown
		}

		if !conn.WaitForStateChange(ctx, state) {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("%w from %s", errConnectionStateUnchanged, state)
		}
	}
}

// Close closes the gRPC connection.
func (c *GRPCClient) Close() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			c.logger.Warn("failed to close gRPC connection", "error", err)
		}
	}
}

// StartRun implements run.Assistant.
func (c *GRPCClient) StartRun(ctx context.Context, message, threadID string) (run.StartResult, error) {
	in, err := structpb.NewStruct(map[string]any{
		"message":  message,
		"threadId": threadID,
	})
	if err != nil {
		return run.StartResult{}, fmt.Errorf("failed to encode start request: %w", err)
	}

	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, startRunMethod, in, out); err != nil {
		return run.StartResult{}, fmt.Errorf("start run request failed: %w", err)
	}
	return run.StartResult{
		ThreadID: stringField(out, "threadId"),
		RunID:    stringField(out, "runId"),
		Error:    stringField(out, "error"),
	}, nil
}

// PollRun implements run.Assistant.
func (c *GRPCClient) PollRun(ctx context.Context, req run.PollRequest) (run.PollResult, error) {
	in, err := structpb.NewStruct(map[string]any{
		"threadId":     req.ThreadID,
		"runId":        req.RunID,
		"language":     req.Language,
		"sessionState": runStateFields(req.State),
	})
	if err != nil {
		return run.PollResult{}, fmt.Errorf("failed to encode poll request: %w", err)
	}

	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, pollRunMethod, in, out); err != nil {
		if status.Code(err) == codes.NotFound {
			return run.PollResult{}, fmt.Errorf("%w: %s", run.ErrRunNotFound, req.RunID)
		}
		return run.PollResult{}, fmt.Errorf("poll run request failed: %w", err)
	}
	return run.PollResult{
		Status:                  run.Status(stringField(out, "status")),
		BotResponseText:         stringField(out, "botResponseText"),
		LanguageForTTS:          stringField(out, "languageForTTS"),
		AwaitingMapConfirmation: stringField(out, "awaitingMapConfirmation"),
		LastMapLink:             stringField(out, "lastMapLink"),
	}, nil
}

func runStateFields(s domain.RunState) map[string]any {
	return map[string]any{
		"threadId":                s.ThreadID,
		"awaitingMapConfirmation": s.AwaitingMapConfirmation,
		"lastMapLink":             s.LastMapLink,
		"includeMapLink":          s.IncludeMapLink,
	}
}

func runStateFromStruct(s *structpb.Struct) domain.RunState {
	if s == nil {
		return domain.RunState{}
	}
	return domain.RunState{
		ThreadID:                stringField(s, "threadId"),
		AwaitingMapConfirmation: stringField(s, "awaitingMapConfirmation"),
		LastMapLink:             stringField(s, "lastMapLink"),
		IncludeMapLink:          s.GetFields()["includeMapLink"].GetBoolValue(),
	}
}

func stringField(s *structpb.Struct, key string) string {
	return s.GetFields()[key].GetStringValue()
}

// RegisterAssistantService exposes a run.Assistant on a gRPC server.
func RegisterAssistantService(s *grpc.Server, a run.Assistant) {
	s.RegisterService(&assistantServiceDesc, &assistantServer{assistant: a})
}

type assistantService interface {
	startRun(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
	pollRun(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)
}

type assistantServer struct {
	assistant run.Assistant
}

func (s *assistantServer) startRun(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	message := stringField(in, "message")
	if message == "" {
		return nil, status.Error(codes.InvalidArgument, "message is required")
	}
	res, err := s.assistant.StartRun(ctx, message, stringField(in, "threadId"))
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return structpb.NewStruct(map[string]any{
		"threadId": res.ThreadID,
		"runId":    res.RunID,
		"error":    res.Error,
	})
}

func (s *assistantServer) pollRun(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	req := run.PollRequest{
		ThreadID: stringField(in, "threadId"),
		RunID:    stringField(in, "runId"),
		Language: stringField(in, "language"),
		State:    runStateFromStruct(in.GetFields()["sessionState"].GetStructValue()),
	}
	if req.ThreadID == "" || req.RunID == "" {
		return nil, status.Error(codes.InvalidArgument, "threadId and runId are required")
	}
	res, err := s.assistant.PollRun(ctx, req)
	if err != nil {
		if errors.Is(err, run.ErrRunNotFound) {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return structpb.NewStruct(map[string]any{
		"status":                  string(res.Status),
		"botResponseText":         res.BotResponseText,
		"languageForTTS":          res.LanguageForTTS,
		"awaitingMapConfirmation": res.AwaitingMapConfirmation,
		"lastMapLink":             res.LastMapLink,
	})
}

func unaryHandler(method string, call func(assistantService, context.Context, *structpb.Struct) (*structpb.Struct, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		svc := srv.(assistantService)
		if interceptor == nil {
			return call(svc, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(svc, ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var assistantServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*assistantService)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "StartRun",
			Handler:    unaryHandler(startRunMethod, assistantService.startRun),
		},
		{
			MethodName: "PollRun",
			Handler:    unaryHandler(pollRunMethod, assistantService.pollRun),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "borichat/assistant/v1/assistant.proto",
}
