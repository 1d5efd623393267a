package dispatch

import (
	"sync"

	"courier-dispatch/internal/domain"
)

// Hub indexes open connections by handle.
type Hub struct {
	mu    sync.RWMutex
	conns map[domain.ConnHandle]Conn
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[domain.ConnHandle]Conn)}
}

// Add makes c addressable by its handle.
func (h *Hub) Add(c Conn) {
	h.mu.Lock()
	h.conns[c.Handle()] = c
	h.mu.Unlock()
}

// Remove drops c if it is still the connection stored under its handle.
func (h *Hub) Remove(c Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	cur, ok := h.conns[c.Handle()]
	if !ok || cur != c {
		return false
	}
	delete(h.conns, c.Handle())
	return true
}

// Get returns the connection for handle.
func (h *Hub) Get(handle domain.ConnHandle) (Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[handle]
	return c, ok
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// CloseAll closes every connection. Close runs outside the lock; each
// connection removes itself through its own disconnect path.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close()
	}
}
