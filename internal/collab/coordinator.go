package collab

import (
	"time"

	"collabcore/pkg/ot"
)

// Relay publishes room events to sibling instances. Implementations must be
// non-blocking from the caller's point of view; a nil relay means
// single-instance operation.
type Relay interface {
	Publish(roomID string, ev Event)
}

// PresenceSnapshot is the direct reply to a joining connection.
type PresenceSnapshot struct {
	Room       string     `json:"room"`
	Identities []Identity `json:"identities"`
}

// CommitAck acknowledges a submitted operation with its canonical form. The
// originator must reconcile its local speculative state to this rebased
// compound and version.
type CommitAck struct {
	Room    string         `json:"room"`
	Field   string         `json:"field"`
	Version int            `json:"version"`
	Ops     []ot.Operation `json:"ops"`
}

// ResyncState carries the materialized document for InvalidVersion recovery.
type ResyncState struct {
	Room    string `json:"room"`
	Field   string `json:"field"`
	Content string `json:"content"`
	Version int    `json:"version"`
}

// Coordinator is the collaboration core's hook surface. The transport layer
// calls the On* methods; the coordinator mutates registry, presence and
// document state and describes the outcome as a direct reply plus room
// fan-out through the broadcaster.
type Coordinator struct {
	registry *Registry
	presence *Tracker
	engine   *Engine
	store    *DocStore
	bcast    *Broadcaster
	relay    Relay
}

// NewCoordinator wires the core components together. relay may be nil.
func NewCoordinator(registry *Registry, presence *Tracker, engine *Engine, store *DocStore, bcast *Broadcaster, relay Relay) *Coordinator {
	return &Coordinator{
		registry: registry,
		presence: presence,
		engine:   engine,
		store:    store,
		bcast:    bcast,
		relay:    relay,
	}
}

// OnConnect registers a connection for an upstream-authenticated identity
// and attaches its outbound channel.
func (c *Coordinator) OnConnect(identity Identity, outbound chan<- Event) (string, error) {
	connID, err := c.registry.Register(identity)
	if err != nil {
		return "", err
	}
	c.bcast.Attach(connID, outbound)
	return connID, nil
}

// OnDisconnect leaves every room the connection was in and removes it.
// Idempotent. An operation already mid-flight in the engine is unaffected;
// only deliveries to the now-dead connection are skipped.
func (c *Coordinator) OnDisconnect(connID string) {
	c.bcast.Detach(connID)
	identity, rooms, ok := c.registry.Unregister(connID)
	if !ok {
		return
	}
	for _, roomID := range rooms {
		c.dropPresence(roomID, identity, connID)
	}
}

// OnJoinRoom joins the connection to a room. The returned snapshot is the
// direct "current presence" reply for the joiner; existing members get a
// presence_joined broadcast only when this is the identity's first
// connection in the room.
func (c *Coordinator) OnJoinRoom(connID, roomID string) (PresenceSnapshot, error) {
	identity, ok := c.registry.Identity(connID)
	if !ok {
		return PresenceSnapshot{}, ErrUnauthenticated
	}
	if _, err := c.registry.JoinRoom(connID, roomID); err != nil {
		return PresenceSnapshot{}, err
	}

	snapshot, joined := c.presence.AddPresence(roomID, identity, connID)
	if joined {
		c.publish(roomID, Event{
			Type:    EventPresenceJoined,
			Room:    roomID,
			Payload: map[string]any{"identity": identity},
		}, connID)
	}
	return PresenceSnapshot{Room: roomID, Identities: snapshot}, nil
}

// OnLeaveRoom removes the connection from a room. Idempotent.
func (c *Coordinator) OnLeaveRoom(connID, roomID string) error {
	identity, ok := c.registry.Identity(connID)
	if !ok {
		return ErrUnauthenticated
	}
	left, err := c.registry.LeaveRoom(connID, roomID)
	if err != nil {
		return err
	}
	if left {
		c.dropPresence(roomID, identity, connID)
	}
	return nil
}

// OnStartEditing records an advisory edit indicator and announces it.
func (c *Coordinator) OnStartEditing(connID, roomID, field string) error {
	identity, err := c.requireMember(connID, roomID)
	if err != nil {
		return err
	}
	c.presence.StartEditing(roomID, field, identity)
	c.publish(roomID, Event{
		Type:    EventEditingStarted,
		Room:    roomID,
		Payload: map[string]any{"field": field, "identity": identity},
	}, connID)
	return nil
}

// OnStopEditing clears an edit indicator and announces the stop.
func (c *Coordinator) OnStopEditing(connID, roomID, field string) error {
	identity, err := c.requireMember(connID, roomID)
	if err != nil {
		return err
	}
	if c.presence.StopEditing(roomID, field, identity.ID) {
		c.publish(roomID, Event{
			Type:    EventEditingStopped,
			Room:    roomID,
			Payload: map[string]any{"field": field, "identity": identity},
		}, connID)
	}
	return nil
}

// OnSubmitOperation rebases and commits a client operation, fans the
// committed form out to the rest of the room, and returns the originator's
// acknowledgment. Rejections reach only the submitter; other participants
// never learn of them.
func (c *Coordinator) OnSubmitOperation(connID, roomID, field string, op ot.Operation, baseVersion int) (CommitAck, error) {
	identity, err := c.requireMember(connID, roomID)
	if err != nil {
		return CommitAck{}, err
	}

	committed, err := c.engine.Apply(DocumentID(roomID, field), op, baseVersion, identity.ID)
	if err != nil {
		return CommitAck{}, err
	}

	c.publish(roomID, Event{
		Type: EventOpApplied,
		Room: roomID,
		Payload: map[string]any{
			"field":     field,
			"version":   committed.Version,
			"ops":       committed.Ops,
			"submitter": identity,
		},
	}, connID)

	return CommitAck{Room: roomID, Field: field, Version: committed.Version, Ops: committed.Ops}, nil
}

// OnResync returns the materialized document state so a client rejected with
// invalid_version can rebuild and retry.
func (c *Coordinator) OnResync(connID, roomID, field string) (ResyncState, error) {
	if _, err := c.requireMember(connID, roomID); err != nil {
		return ResyncState{}, err
	}
	content, version := c.store.Snapshot(DocumentID(roomID, field))
	return ResyncState{Room: roomID, Field: field, Content: content, Version: version}, nil
}

// SweepEditLocks expires indicators that have not been refreshed within ttl
// and fans out the implied stops. Covers stop notifications lost on
// disconnect.
func (c *Coordinator) SweepEditLocks(ttl time.Duration) {
	for _, stale := range c.presence.SweepStale(ttl) {
		c.publish(stale.Room, Event{
			Type:    EventEditingStopped,
			Room:    stale.Room,
			Payload: map[string]any{"field": stale.Field, "identity": stale.Identity, "stale": true},
		}, "")
	}
}

// Presence exposes a read-only room snapshot.
func (c *Coordinator) Presence(roomID string) []Identity {
	return c.presence.ListPresence(roomID)
}

func (c *Coordinator) requireMember(connID, roomID string) (Identity, error) {
	identity, ok := c.registry.Identity(connID)
	if !ok {
		return Identity{}, ErrUnauthenticated
	}
	if !c.registry.InRoom(connID, roomID) {
		return Identity{}, ErrRoomNotJoined
	}
	return identity, nil
}

func (c *Coordinator) dropPresence(roomID string, identity Identity, connID string) {
	left, clearedFields := c.presence.RemovePresence(roomID, identity.ID, connID)
	if !left {
		return
	}
	for _, field := range clearedFields {
		c.publish(roomID, Event{
			Type:    EventEditingStopped,
			Room:    roomID,
			Payload: map[string]any{"field": field, "identity": identity},
		}, connID)
	}
	c.publish(roomID, Event{
		Type:    EventPresenceLeft,
		Room:    roomID,
		Payload: map[string]any{"identity": identity},
	}, connID)
}

func (c *Coordinator) publish(roomID string, ev Event, excludeConnID string) {
	c.bcast.BroadcastToRoom(roomID, ev, excludeConnID)
	if c.relay != nil {
		c.relay.Publish(roomID, ev)
	}
}
