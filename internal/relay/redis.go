// Package relay bridges room events between service instances over Redis
// pub/sub, so members of a room connected to different instances still see
// each other's presence and committed operations.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"collabcore/internal/collab"
)

const channelPrefix = "collab:room:"

// envelope tags each relayed event with its origin instance so a bridge
// never re-delivers its own publications.
type envelope struct {
	Origin string       `json:"origin"`
	Event  collab.Event `json:"event"`
}

// Bridge publishes local room events and re-broadcasts remote ones.
type Bridge struct {
	rdb        *redis.Client
	instanceID string
	bcast      *collab.Broadcaster
}

// New connects to Redis and returns a bridge for the local broadcaster.
func New(ctx context.Context, addr string, bcast *collab.Broadcaster) (*Bridge, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return &Bridge{
		rdb:        rdb,
		instanceID: uuid.New().String(),
		bcast:      bcast,
	}, nil
}

// Publish sends a room event to sibling instances. Implements collab.Relay.
// Publish failures are logged and dropped: cross-instance fan-out is best
// effort, same as local delivery.
func (b *Bridge) Publish(roomID string, ev collab.Event) {
	payload, err := json.Marshal(envelope{Origin: b.instanceID, Event: ev})
	if err != nil {
		log.Printf("[RELAY] Error marshaling %s for room %s: %v", ev.Type, roomID, err)
		return
	}
	if err := b.rdb.Publish(context.Background(), channelPrefix+roomID, payload).Err(); err != nil {
		log.Printf("[RELAY] Error publishing to room %s: %v", roomID, err)
	}
}

// Run subscribes to all room channels and fans remote events out locally
// until ctx is canceled.
func (b *Bridge) Run(ctx context.Context) {
	pubsub := b.rdb.PSubscribe(ctx, channelPrefix+"*")
	defer pubsub.Close()

	log.Printf("[RELAY] Bridge %s subscribed", b.instanceID)
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("[RELAY] Dropping undecodable payload on %s: %v", msg.Channel, err)
				continue
			}
			if env.Origin == b.instanceID {
				continue
			}
			roomID := strings.TrimPrefix(msg.Channel, channelPrefix)
			b.bcast.BroadcastToRoom(roomID, env.Event, "")
		}
	}
}

// Close releases the Redis client.
func (b *Bridge) Close() error {
	return b.rdb.Close()
}
