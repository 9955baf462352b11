// Package chat is the websocket messaging gateway between chat clients and
// the attestation dispatcher.
package chat

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Registry tracks open connections per client. A client may be connected
// from several tabs at once.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[string]*websocket.Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]map[string]*websocket.Conn),
	}
}

// Connections returns a snapshot of the client's open connections.
func (r *Registry) Connections(clientID string) []*websocket.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conns := make([]*websocket.Conn, 0, len(r.active[clientID]))
	for _, conn := range r.active[clientID] {
		conns = append(conns, conn)
	}
	return conns
}

// Online reports whether the client has any open connection.
func (r *Registry) Online(clientID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active[clientID]) > 0
}

// Register adds conn as connection connID of clientID.
func (r *Registry) Register(clientID, connID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.active[clientID]; !exists {
		r.active[clientID] = make(map[string]*websocket.Conn)
	}

	r.active[clientID][connID] = conn
	slog.Info("Chat connection registered", "client_id", clientID, "conn_id", connID)
}

// Unregister removes conn if it is still the registered connection.
func (r *Registry) Unregister(clientID, connID string, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conns, ok := r.active[clientID]; ok {
		if current, exists := conns[connID]; exists && current == conn {
			delete(conns, connID)
			if len(conns) == 0 {
				delete(r.active, clientID)
			}
			slog.Info("Chat connection unregistered", "client_id", clientID, "conn_id", connID)
		}
	}
}

// CloseClient terminates every connection of a client. The sweeper calls it
// once the client's session expired.
func (r *Registry) CloseClient(clientID string) {
	r.mu.Lock()
	conns := r.active[clientID]
	delete(r.active, clientID)
	r.mu.Unlock()

	// Close waits for the peer's handshake, so it runs outside the lock.
	for connID, conn := range conns {
		_ = conn.Close(websocket.StatusNormalClosure, "session expired")
		slog.Info("Chat connection closed", "client_id", clientID, "conn_id", connID)
	}
}
