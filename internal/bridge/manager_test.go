package bridge

import (
	"strconv"
	"sync"
	"testing"

	"github.com/coder/websocket"
)

type fakeConn struct {
	mu     sync.Mutex
	closed bool
	code   websocket.StatusCode
}

func (c *fakeConn) Close(code websocket.StatusCode, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.code = code
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestManager_Register(t *testing.T) {
	m := NewManager()
	w := &Widget{}
	m.Register("visitor", "tab-1", &fakeConn{}, w)

	if got := m.Get("visitor", "tab-1"); got != w {
		t.Errorf("Expected widget %p, got %p", w, got)
	}
	if m.Count() != 1 {
		t.Errorf("Expected 1 widget, got %d", m.Count())
	}
}

func TestManager_ReplaceClosesPrevious(t *testing.T) {
	m := NewManager()
	old := &fakeConn{}
	m.Register("visitor", "tab-1", old, &Widget{})

	next := &fakeConn{}
	w := &Widget{}
	m.Register("visitor", "tab-1", next, w)

	if !old.isClosed() {
		t.Error("Expected previous connection to be closed")
	}
	if next.isClosed() {
		t.Error("New connection must stay open")
	}
	if m.Get("visitor", "tab-1") != w {
		t.Error("Expected replacement widget to be active")
	}

	// The replaced connection's deferred unregister must not evict the new one.
	m.Unregister("visitor", "tab-1", old)
	if m.Get("visitor", "tab-1") != w {
		t.Error("Stale unregister removed the active widget")
	}
}

func TestManager_Unregister(t *testing.T) {
	m := NewManager()
	conn := &fakeConn{}
	m.Register("visitor", "tab-1", conn, &Widget{})
	m.Unregister("visitor", "tab-1", conn)

	if m.Get("visitor", "tab-1") != nil {
		t.Error("Expected no widget after unregister")
	}
	if m.Count() != 0 {
		t.Errorf("Expected 0 widgets, got %d", m.Count())
	}
}

func TestManager_CloseAll(t *testing.T) {
	m := NewManager()
	a, b := &fakeConn{}, &fakeConn{}
	m.Register("v1", "tab-1", a, &Widget{})
	m.Register("v2", "tab-1", b, &Widget{})

	m.CloseAll()

	if !a.isClosed() || !b.isClosed() {
		t.Error("Expected every connection to be closed")
	}
	if a.code != websocket.StatusGoingAway {
		t.Errorf("Expected going-away status, got %v", a.code)
	}
	if m.Count() != 0 {
		t.Errorf("Expected empty manager, got %d", m.Count())
	}
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager()
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			m.Register("visitor", "tab-"+strconv.Itoa(i), &fakeConn{}, &Widget{})
		}
	}()

	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			m.Get("visitor", "tab-"+strconv.Itoa(i))
		}
	}()

	wg.Wait()
	if m.Count() != 1000 {
		t.Errorf("Expected 1000 widgets, got %d", m.Count())
	}
}
