package app

import (
	"sync"

	"quiz-battle-service/internal/domain"
)

const sendBuffer = 32

// Conn is the registry's handle to one live player connection. The
// transport's writer goroutine drains Send; the engine only ever pushes
// into it after releasing its own locks.
type Conn struct {
	PlayerID string
	Send     chan domain.Event

	battleID string
}

// ConnectionRegistry maps player ids to their live connection. At most one
// entry per player; a later Register supersedes and closes the earlier one.
type ConnectionRegistry struct {
	mu    sync.RWMutex
	conns map[string]*Conn
}

func NewConnectionRegistry() *ConnectionRegistry {
	return &ConnectionRegistry{conns: make(map[string]*Conn)}
}

// Register creates a connection for the player, replacing any prior one.
// The superseded channel is closed so its writer goroutine unwinds. A
// battle binding survives the handoff; the session outlives any one
// connection.
func (r *ConnectionRegistry) Register(playerID string) *Conn {
	conn := &Conn{PlayerID: playerID, Send: make(chan domain.Event, sendBuffer)}

	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.conns[playerID]; ok {
		conn.battleID = old.battleID
		close(old.Send)
	}
	r.conns[playerID] = conn
	return conn
}

// Lookup returns the live connection for a player, if any.
func (r *ConnectionRegistry) Lookup(playerID string) (*Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[playerID]
	return conn, ok
}

// Bind attaches a player's connection to a battle session.
func (r *ConnectionRegistry) Bind(playerID, battleID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.conns[playerID]; ok {
		conn.battleID = battleID
	}
}

// Binding reports the battle a player's connection is bound to, if any.
func (r *ConnectionRegistry) Binding(playerID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[playerID]
	if !ok || conn.battleID == "" {
		return "", false
	}
	return conn.battleID, true
}

// Unbind clears a player's battle binding without touching the connection.
func (r *ConnectionRegistry) Unbind(playerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if conn, ok := r.conns[playerID]; ok {
		conn.battleID = ""
	}
}

// Unregister removes the connection and closes its channel. It is a no-op
// if the registry holds a newer connection for the same player (the old
// reader tearing down after being superseded). Returns the bound battle id
// and whether this call actually removed the entry.
func (r *ConnectionRegistry) Unregister(conn *Conn) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.conns[conn.PlayerID]
	if !ok || current != conn {
		return "", false
	}
	delete(r.conns, conn.PlayerID)
	close(conn.Send)
	return conn.battleID, true
}

// SendTo queues an event on a player's channel. Events to absent players
// are dropped; a full channel drops the event rather than blocking the
// engine on a slow client.
func (r *ConnectionRegistry) SendTo(playerID string, ev domain.Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[playerID]
	if !ok {
		return
	}
	select {
	case conn.Send <- ev:
	default:
	}
}
