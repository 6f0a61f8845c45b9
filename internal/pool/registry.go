// Package pool tracks live websocket connections per authenticated user.
// It owns only ephemeral handles; durable state lives in the database and
// delivery through the registry is best-effort.
package pool

import (
	"log/slog"
	"sync"
)

// Conn is the live connection handle tracked by the registry. Satisfied by
// *websocket.Conn; tests substitute fakes.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Event is the JSON frame pushed to clients. Data carries server-originated
// events (new_message, typing); Payload carries relayed call signaling.
type Event struct {
	Type    string      `json:"type"`
	Data    interface{} `json:"data,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Registry maps a user to at most one live connection. All access goes
// through the mutex; the map is never exposed.
type Registry struct {
	mu      sync.Mutex
	clients map[int]Conn
	log     *slog.Logger
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		clients: make(map[int]Conn),
		log:     log,
	}
}

// Register replaces any prior handle for the user. The replaced handle
// simply stops being addressable; it is not closed here.
func (r *Registry) Register(userID int, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[userID] = conn
	r.log.Debug("connection registered", "user_id", userID)
}

// Unregister removes the mapping only while conn is still the current
// handle, so a replaced connection closing late cannot evict its
// successor.
func (r *Registry) Unregister(userID int, conn Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.clients[userID] == conn {
		delete(r.clients, userID)
		r.log.Debug("connection unregistered", "user_id", userID)
	}
}

// Lookup returns the user's live connection. A miss is not an error: the
// user is offline and will catch up from the database on the next fetch.
func (r *Registry) Lookup(userID int) (Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.clients[userID]
	return conn, ok
}

// SendTo pushes payload to every listed user with a live connection.
// Offline users are skipped. A failed write closes and evicts the
// connection.
func (r *Registry) SendTo(userIDs []int, payload interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range userIDs {
		r.push(id, payload)
	}
}

// Broadcast pushes payload to every registered connection whose user
// matches the predicate.
func (r *Registry) Broadcast(payload interface{}, match func(userID int) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range r.clients {
		if match(id) {
			r.push(id, payload)
		}
	}
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// push writes to one client. Caller holds the mutex.
func (r *Registry) push(userID int, payload interface{}) {
	conn, ok := r.clients[userID]
	if !ok {
		return
	}
	if err := conn.WriteJSON(payload); err != nil {
		r.log.Warn("dropping dead connection", "user_id", userID, "error", err)
		conn.Close()
		delete(r.clients, userID)
	}
}
