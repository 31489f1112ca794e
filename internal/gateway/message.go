package gateway

import "collabcore/pkg/ot"

// Message is the inbound wire shape. Every message names a room; edit
// submissions additionally carry a field, the operation, and the base
// version the client observed.
type Message struct {
	Type    string        `json:"type"`
	Room    string        `json:"room,omitempty"`
	Field   string        `json:"field,omitempty"`
	Version int           `json:"version,omitempty"` // base version for submit_op
	Op      *ot.Operation `json:"op,omitempty"`
}

// Inbound message types. The dispatch in Client.processMessage is closed
// over exactly this set; anything else is rejected as malformed.
const (
	MsgJoinRoom     = "join_room"
	MsgLeaveRoom    = "leave_room"
	MsgSubmitOp     = "submit_op"
	MsgStartEditing = "start_editing"
	MsgStopEditing  = "stop_editing"
	MsgResync       = "resync"
	MsgPing         = "ping"
)

// Direct-reply event types (fan-out types live in the collab package).
const (
	EventWelcome       = "welcome"
	EventPresenceState = "presence_state"
	EventOpAck         = "op_ack"
	EventResyncState   = "resync_state"
	EventError         = "error"
)
