package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"github.com/ashureev/borichat/internal/domain"
	"github.com/ashureev/borichat/internal/identity"
)

// WebSocketHandler serves the chat frame's bridge connection. Each
// connection gets its own Widget.
type WebSocketHandler struct {
	mgr            *Manager
	deps           Deps
	cfg            Config
	allowedOrigins []string
	isDev          bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(mgr *Manager, deps Deps, cfg Config, allowedOrigins []string, isDev bool) *WebSocketHandler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultConfig().RequestTimeout
	}
	return &WebSocketHandler{
		mgr:            mgr,
		deps:           deps,
		cfg:            cfg,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// wsSender writes notifications as JSON text frames.
type wsSender struct {
	conn *websocket.Conn
}

func (s *wsSender) Send(ctx context.Context, n domain.Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return s.conn.Write(ctx, websocket.MessageText, data)
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	tabID := identity.TabIDFromContext(r.Context())
	slog.Info("Chat connection request", "visitor_id", visitorID, "tab_id", tabID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "visitor_id", visitorID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "visitor_id", visitorID)
		}
	}()

	deps := h.deps
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("visitor_id", visitorID, "tab_id", tabID)

	outbox := NewOutbox(&wsSender{conn: ws}, defaultOutboxSize, deps.Logger)
	defer func() {
		if closeErr := outbox.Close(); closeErr != nil {
			slog.Debug("Failed to close outbox", "error", closeErr, "visitor_id", visitorID)
		}
	}()

	widget := NewWidget(outbox, deps, h.cfg)

	h.mgr.Register(visitorID, tabID, ws, widget)
	defer h.mgr.Unregister(visitorID, tabID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go widget.Run(ctx)

	h.inputLoop(ctx, ws, widget, visitorID)

	cancel()
	<-widget.Done()

	endCtx, endCancel := context.WithTimeout(context.WithoutCancel(r.Context()), h.cfg.RequestTimeout)
	defer endCancel()
	widget.End(endCtx, "disconnected")

	slog.Info("Chat connection ended", "visitor_id", visitorID, "tab_id", tabID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || origin == allowed {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigins)
	return false
}

func (h *WebSocketHandler) inputLoop(ctx context.Context, ws *websocket.Conn, widget *Widget, visitorID string) {
	slog.Debug("Starting input loop", "visitor_id", visitorID)
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "visitor_id", visitorID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "visitor_id", visitorID)
			}
			return
		}

		ev, ok := DecodeInbound(data)
		if !ok {
			continue
		}
		if ev.Type == InboundPing {
			if err := writeJSON(ctx, ws, map[string]string{"type": "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
			continue
		}
		if !widget.Handle(ev) {
			return
		}
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
