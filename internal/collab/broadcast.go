package collab

import (
	"log"
	"sync"
)

// Broadcaster fans events out to the connections present in a room. Delivery
// is best effort while connected: a detached or saturated target simply
// misses the event and recovers through its own resync on reconnect.
type Broadcaster struct {
	mu       sync.RWMutex
	outbound map[string]chan<- Event
	presence *Tracker
}

// NewBroadcaster creates a broadcaster over the given presence tracker.
func NewBroadcaster(presence *Tracker) *Broadcaster {
	return &Broadcaster{
		outbound: make(map[string]chan<- Event),
		presence: presence,
	}
}

// Attach registers a connection's outbound channel.
func (b *Broadcaster) Attach(connID string, ch chan<- Event) {
	b.mu.Lock()
	b.outbound[connID] = ch
	b.mu.Unlock()
}

// Detach removes a connection. Subsequent deliveries to it are skipped
// silently. Safe to call twice.
func (b *Broadcaster) Detach(connID string) {
	b.mu.Lock()
	delete(b.outbound, connID)
	b.mu.Unlock()
}

// SendTo delivers an event directly to one connection, reporting whether it
// was accepted. Used for acknowledgments and initial presence snapshots.
func (b *Broadcaster) SendTo(connID string, ev Event) bool {
	b.mu.RLock()
	ch, ok := b.outbound[connID]
	b.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case ch <- ev:
		return true
	default:
		log.Printf("[BCAST] Connection %s buffer full, dropping %s", connID, ev.Type)
		return false
	}
}

// BroadcastToRoom delivers an event to every connection present in the room,
// except the optionally excluded originator (which receives a direct
// acknowledgment instead).
func (b *Broadcaster) BroadcastToRoom(roomID string, ev Event, excludeConnID string) {
	for _, connID := range b.presence.RoomConnections(roomID) {
		if connID == excludeConnID {
			continue
		}
		b.SendTo(connID, ev)
	}
}
