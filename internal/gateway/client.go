package gateway

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"collabcore/internal/collab"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512KB
)

// Client pumps one websocket connection: inbound frames are decoded and
// dispatched to the coordinator, outbound events are marshaled and written
// with keepalive pings.
type Client struct {
	id       string
	identity collab.Identity
	conn     *websocket.Conn
	outbound chan collab.Event
	done     chan struct{}
	svc      *Service
}

// readPump reads frames from the websocket and dispatches them until the
// connection drops, then runs the disconnect path. The outbound channel is
// never closed; the broadcaster may still hold a reference briefly after
// detach, and writes to it are always non-blocking.
func (c *Client) readPump() {
	defer func() {
		c.svc.coord.OnDisconnect(c.id)
		close(c.done)
		c.conn.Close()
		c.svc.metrics.connectionClosed()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[GATEWAY] Websocket error on %s (user %s): %v", c.id, c.identity.ID, err)
			}
			return
		}
		c.svc.metrics.messageReceived()
		c.processMessage(data)
	}
}

// writePump writes outbound events to the websocket until the outbound
// channel closes.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case ev := <-c.outbound:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("[GATEWAY] Error marshaling event %s: %v", ev.Type, err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			c.svc.metrics.messageSent()

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// processMessage dispatches one inbound frame over the closed message set.
func (c *Client) processMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError(collab.ErrMalformedOperation, "invalid message encoding")
		return
	}

	switch msg.Type {
	case MsgJoinRoom:
		snapshot, err := c.svc.coord.OnJoinRoom(c.id, msg.Room)
		if err != nil {
			c.sendError(err, msg.Type)
			return
		}
		c.sendEvent(collab.Event{Type: EventPresenceState, Room: msg.Room, Payload: snapshot})

	case MsgLeaveRoom:
		if err := c.svc.coord.OnLeaveRoom(c.id, msg.Room); err != nil {
			c.sendError(err, msg.Type)
		}

	case MsgSubmitOp:
		if msg.Op == nil {
			c.sendError(collab.ErrMalformedOperation, "submit_op without op")
			return
		}
		ack, err := c.svc.coord.OnSubmitOperation(c.id, msg.Room, msg.Field, *msg.Op, msg.Version)
		if err != nil {
			c.sendError(err, msg.Type)
			return
		}
		c.sendEvent(collab.Event{Type: EventOpAck, Room: msg.Room, Payload: ack})

	case MsgStartEditing:
		if err := c.svc.coord.OnStartEditing(c.id, msg.Room, msg.Field); err != nil {
			c.sendError(err, msg.Type)
		}

	case MsgStopEditing:
		if err := c.svc.coord.OnStopEditing(c.id, msg.Room, msg.Field); err != nil {
			c.sendError(err, msg.Type)
		}

	case MsgResync:
		state, err := c.svc.coord.OnResync(c.id, msg.Room, msg.Field)
		if err != nil {
			c.sendError(err, msg.Type)
			return
		}
		c.sendEvent(collab.Event{Type: EventResyncState, Room: msg.Room, Payload: state})

	case MsgPing:
		// Keepalive only.

	default:
		c.sendError(collab.ErrMalformedOperation, fmt.Sprintf("unknown message type %q", msg.Type))
	}
}

// sendEvent queues a direct event for this client, dropping it if the
// client's buffer is saturated.
func (c *Client) sendEvent(ev collab.Event) {
	select {
	case c.outbound <- ev:
	default:
		log.Printf("[GATEWAY] Client %s not keeping up, dropped %s", c.id, ev.Type)
	}
}

func (c *Client) sendError(err error, context string) {
	log.Printf("[GATEWAY] Rejecting %s from user %s on %s: %v", context, c.identity.ID, c.id, err)
	c.sendEvent(collab.Event{
		Type: EventError,
		Payload: map[string]any{
			"code":    collab.Code(err),
			"message": err.Error(),
			"context": context,
		},
	})
}
