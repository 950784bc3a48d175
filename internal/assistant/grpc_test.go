package assistant

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/ashureev/borichat/internal/run"
)

type stubAssistant struct {
	mu    sync.Mutex
	polls []run.PollRequest
	start func(message, threadID string) (run.StartResult, error)
	poll  func(req run.PollRequest) (run.PollResult, error)
}

func (s *stubAssistant) StartRun(_ context.Context, message, threadID string) (run.StartResult, error) {
	return s.start(message, threadID)
}

func (s *stubAssistant) PollRun(_ context.Context, req run.PollRequest) (run.PollResult, error) {
	s.mu.Lock()
	s.polls = append(s.polls, req)
	s.mu.Unlock()
	return s.poll(req)
}

func newBufconnClient(t *testing.T, a run.Assistant) *GRPCClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterAssistantService(srv, a)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	client, err := NewGRPCClient(GRPCClientConfig{Address: "passthrough:///bufnet"}, nil,
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func TestGRPCStartRunRoundTrip(t *testing.T) {
	stub := &stubAssistant{
		start: func(message, threadID string) (run.StartResult, error) {
			if threadID == "" {
				threadID = "t-new"
			}
			return run.StartResult{ThreadID: threadID, RunID: "r-" + message}, nil
		},
	}
	client := newBufconnClient(t, stub)

	res, err := client.StartRun(context.Background(), "1", "")
	require.NoError(t, err)
	require.Equal(t, run.StartResult{ThreadID: "t-new", RunID: "r-1"}, res)
}

func TestGRPCStartRunDomainError(t *testing.T) {
	stub := &stubAssistant{
		start: func(string, string) (run.StartResult, error) {
			return run.StartResult{Error: "rate limited"}, nil
		},
	}
	client := newBufconnClient(t, stub)

	res, err := client.StartRun(context.Background(), "hola", "t1")
	require.NoError(t, err)
	require.Equal(t, "rate limited", res.Error)
}

func TestGRPCStartRunTransportError(t *testing.T) {
	stub := &stubAssistant{
		start: func(string, string) (run.StartResult, error) {
			return run.StartResult{}, errors.New("backend down")
		},
	}
	client := newBufconnClient(t, stub)

	_, err := client.StartRun(context.Background(), "hola", "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "backend down")
}

func TestGRPCPollRunCarriesState(t *testing.T) {
	stub := &stubAssistant{
		poll: func(req run.PollRequest) (run.PollResult, error) {
			return run.PollResult{
				Status:          run.StatusCompleted,
				BotResponseText: "done",
				LanguageForTTS:  req.Language,
				LastMapLink:     req.State.AwaitingMapConfirmation,
			}, nil
		},
	}
	client := newBufconnClient(t, stub)

	req := run.PollRequest{ThreadID: "t1", RunID: "r1", Language: "es"}
	req.State.ThreadID = "t1"
	req.State.AwaitingMapConfirmation = "https://maps.app.goo.gl/x"
	req.State.IncludeMapLink = true

	res, err := client.PollRun(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, run.StatusCompleted, res.Status)
	require.Equal(t, "done", res.BotResponseText)
	require.Equal(t, "es", res.LanguageForTTS)
	require.Equal(t, "https://maps.app.goo.gl/x", res.LastMapLink)

	require.Len(t, stub.polls, 1)
	require.Equal(t, req, stub.polls[0])
}

func TestGRPCPollRunNotFound(t *testing.T) {
	stub := &stubAssistant{
		poll: func(req run.PollRequest) (run.PollResult, error) {
			return run.PollResult{}, fmt.Errorf("%w: %s", run.ErrRunNotFound, req.RunID)
		},
	}
	client := newBufconnClient(t, stub)

	_, err := client.PollRun(context.Background(), run.PollRequest{ThreadID: "t", RunID: "gone"})
	require.ErrorIs(t, err, run.ErrRunNotFound)
}

func TestGRPCPollRunRequiresIDs(t *testing.T) {
	stub := &stubAssistant{}
	client := newBufconnClient(t, stub)

	_, err := client.PollRun(context.Background(), run.PollRequest{ThreadID: "t"})
	require.Error(t, err)
	require.Empty(t, stub.polls)
}
