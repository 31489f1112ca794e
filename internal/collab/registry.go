package collab

import (
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"
)

type connection struct {
	identity Identity
	rooms    map[string]struct{}
}

// Registry tracks live connections and their identity and room membership.
// A single identity may own multiple simultaneous connections (tabs, devices).
type Registry struct {
	mu    sync.RWMutex
	conns map[string]*connection
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]*connection)}
}

// Register adds a new connection for an authenticated identity and returns
// its connection id. Fails with ErrUnauthenticated when no identity was
// supplied by the upstream handshake.
func (r *Registry) Register(identity Identity) (string, error) {
	if identity.ID == "" {
		return "", ErrUnauthenticated
	}
	connID := uuid.New().String()

	r.mu.Lock()
	r.conns[connID] = &connection{
		identity: identity,
		rooms:    make(map[string]struct{}),
	}
	total := len(r.conns)
	r.mu.Unlock()

	log.Printf("[REGISTRY] Connection %s registered for %s. Total connections: %d", connID, identity.ID, total)
	return connID, nil
}

// Identity resolves a connection id to the identity that owns it.
func (r *Registry) Identity(connID string) (Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	if !ok {
		return Identity{}, false
	}
	return c.identity, true
}

// JoinRoom adds a room to the connection's membership set. Idempotent: the
// returned bool reports whether this was a new membership.
func (r *Registry) JoinRoom(connID, roomID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return false, ErrUnauthenticated
	}
	if _, joined := c.rooms[roomID]; joined {
		return false, nil
	}
	c.rooms[roomID] = struct{}{}
	return true, nil
}

// LeaveRoom removes a room from the connection's membership set. Idempotent.
func (r *Registry) LeaveRoom(connID, roomID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[connID]
	if !ok {
		return false, ErrUnauthenticated
	}
	if _, joined := c.rooms[roomID]; !joined {
		return false, nil
	}
	delete(c.rooms, roomID)
	return true, nil
}

// InRoom reports whether the connection has joined the room.
func (r *Registry) InRoom(connID, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	if !ok {
		return false
	}
	_, joined := c.rooms[roomID]
	return joined
}

// Rooms returns the rooms the connection has joined, in stable order.
func (r *Registry) Rooms(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[connID]
	if !ok {
		return nil
	}
	rooms := make([]string, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)
	return rooms
}

// Unregister removes the connection, returning its identity and the rooms it
// was still in so the caller can deregister presence. Safe to call twice:
// the second call reports ok=false and mutates nothing.
func (r *Registry) Unregister(connID string) (Identity, []string, bool) {
	r.mu.Lock()
	c, ok := r.conns[connID]
	if !ok {
		r.mu.Unlock()
		return Identity{}, nil, false
	}
	delete(r.conns, connID)
	total := len(r.conns)
	r.mu.Unlock()

	rooms := make([]string, 0, len(c.rooms))
	for roomID := range c.rooms {
		rooms = append(rooms, roomID)
	}
	sort.Strings(rooms)

	log.Printf("[REGISTRY] Connection %s unregistered. Total connections: %d", connID, total)
	return c.identity, rooms, true
}

// Count returns the number of live connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
