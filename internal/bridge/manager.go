package bridge

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Conn is the part of a websocket connection the manager needs.
type Conn interface {
	Close(code websocket.StatusCode, reason string) error
}

type entry struct {
	conn   Conn
	widget *Widget
}

// Manager tracks the live widget of every visitor tab.
type Manager struct {
	mu     sync.RWMutex
	active map[string]map[string]entry
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		active: make(map[string]map[string]entry),
	}
}

// Get returns the live widget for a visitor tab, or nil.
func (m *Manager) Get(visitorID, tabID string) *Widget {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if tabs, ok := m.active[visitorID]; ok {
		return tabs[tabID].widget
	}
	return nil
}

// Register records the connection of a visitor tab. A previous connection
// for the same tab is closed.
func (m *Manager) Register(visitorID, tabID string, conn Conn, w *Widget) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.active[visitorID]; !exists {
		m.active[visitorID] = make(map[string]entry)
	}

	if existing, exists := m.active[visitorID][tabID]; exists && existing.conn != conn {
		_ = existing.conn.Close(websocket.StatusNormalClosure, "session replaced")
	}

	m.active[visitorID][tabID] = entry{conn: conn, widget: w}
	slog.Info("Chat widget registered", "visitor_id", visitorID, "tab_id", tabID)
}

// Unregister removes a connection if it is still the current one for the tab.
func (m *Manager) Unregister(visitorID, tabID string, conn Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tabs, ok := m.active[visitorID]; ok {
		if current, exists := tabs[tabID]; exists && current.conn == conn {
			delete(tabs, tabID)
			if len(tabs) == 0 {
				delete(m.active, visitorID)
			}
			slog.Info("Chat widget unregistered", "visitor_id", visitorID, "tab_id", tabID)
		}
	}
}

// Count returns the number of live widgets.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, tabs := range m.active {
		n += len(tabs)
	}
	return n
}

// CloseAll closes every connection, for server shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for visitorID, tabs := range m.active {
		for tabID, e := range tabs {
			_ = e.conn.Close(websocket.StatusGoingAway, "server shutting down")
			slog.Info("Chat widget closed", "visitor_id", visitorID, "tab_id", tabID)
		}
	}
	m.active = make(map[string]map[string]entry)
}
