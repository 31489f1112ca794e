// Package collab implements the real-time collaboration core: connection
// registry, room presence, the per-document operation log and transform
// engine, and best-effort room fan-out.
package collab

// Identity is an opaque reference to an authenticated user. Authentication
// happens upstream; by the time an identity reaches this package it is
// already validated and immutable for the lifetime of its connection.
type Identity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Event is an outbound message fanned out to room members or sent directly
// to a single connection.
type Event struct {
	Type    string `json:"type"`
	Room    string `json:"room,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Outbound event types.
const (
	EventPresenceJoined = "presence_joined"
	EventPresenceLeft   = "presence_left"
	EventOpApplied      = "op_applied"
	EventEditingStarted = "editing_started"
	EventEditingStopped = "editing_stopped"
)

// DocumentID derives the document key for one editable surface of a room.
func DocumentID(roomID, field string) string {
	return roomID + "/" + field
}
