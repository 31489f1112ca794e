package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"collabcore/internal/collab"
)

// SnapshotSaver persists materialized document content; the collaboration
// core itself keeps only the operation log and version in memory. nil means
// no durable sink is configured.
type SnapshotSaver interface {
	Save(ctx context.Context, docID, content string, version int) error
}

// Config holds transport-level service configuration.
type Config struct {
	EditLockTTL     time.Duration
	SweepInterval   time.Duration
	PersistInterval time.Duration
}

// Metrics tracks service counters, surfaced at /metrics.
type Metrics struct {
	mu                sync.Mutex
	ActiveConnections int64
	MessagesSent      int64
	MessagesReceived  int64
}

func (m *Metrics) connectionOpened() {
	m.mu.Lock()
	m.ActiveConnections++
	m.mu.Unlock()
}

func (m *Metrics) connectionClosed() {
	m.mu.Lock()
	m.ActiveConnections--
	m.mu.Unlock()
}

func (m *Metrics) messageSent() {
	m.mu.Lock()
	m.MessagesSent++
	m.mu.Unlock()
}

func (m *Metrics) messageReceived() {
	m.mu.Lock()
	m.MessagesReceived++
	m.mu.Unlock()
}

// Service hosts the websocket endpoint and the background loops (edit-lock
// sweeping, snapshot persistence) around the collaboration core.
type Service struct {
	coord    *collab.Coordinator
	store    *collab.DocStore
	upgrader websocket.Upgrader
	config   Config
	saver    SnapshotSaver
	metrics  *Metrics
}

// NewService creates a gateway over a wired coordinator. saver may be nil.
func NewService(coord *collab.Coordinator, store *collab.DocStore, cfg Config, saver SnapshotSaver) *Service {
	if cfg.EditLockTTL <= 0 {
		cfg.EditLockTTL = 15 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Second
	}
	if cfg.PersistInterval <= 0 {
		cfg.PersistInterval = 30 * time.Second
	}
	return &Service{
		coord: coord,
		store: store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// TODO: Restrict origins for production deployments.
				return true
			},
		},
		config:  cfg,
		saver:   saver,
		metrics: &Metrics{},
	}
}

// Start launches the background loops. They stop when ctx is canceled.
func (s *Service) Start(ctx context.Context) {
	go s.sweepLoop(ctx)
	if s.saver != nil {
		go s.persistLoop(ctx)
	}
	log.Println("[GATEWAY] Service started")
}

// HandleWebSocket upgrades a connection and starts its pumps. Identity is
// resolved upstream (token validation happens before traffic reaches this
// core); a request arriving without one is refused.
func (s *Service) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	identity := identityFromRequest(r)
	if identity.ID == "" {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[GATEWAY] WebSocket upgrade failed: %v", err)
		return
	}

	outbound := make(chan collab.Event, 256)
	connID, err := s.coord.OnConnect(identity, outbound)
	if err != nil {
		conn.Close()
		return
	}

	client := &Client{
		id:       connID,
		identity: identity,
		conn:     conn,
		outbound: outbound,
		done:     make(chan struct{}),
		svc:      s,
	}
	s.metrics.connectionOpened()

	go client.writePump()
	go client.readPump()

	client.sendEvent(collab.Event{
		Type: EventWelcome,
		Payload: map[string]any{
			"connectionId": connID,
			"identity":     identity,
		},
	})
	log.Printf("[GATEWAY] Connection %s opened for %s", connID, identity.ID)
}

// HandleMetrics serves the current counters as JSON.
func (s *Service) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	s.metrics.mu.Lock()
	out := map[string]int64{
		"active_connections": s.metrics.ActiveConnections,
		"messages_sent":      s.metrics.MessagesSent,
		"messages_received":  s.metrics.MessagesReceived,
	}
	s.metrics.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Service) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.coord.SweepEditLocks(s.config.EditLockTTL)
		}
	}
}

// persistLoop flushes materialized snapshots on an interval. Durable storage
// of the replayed text is a collaborator concern; losing a flush only means
// the next interval re-saves.
func (s *Service) persistLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.PersistInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.persistAll(context.Background())
			return
		case <-ticker.C:
			s.persistAll(ctx)
		}
	}
}

func (s *Service) persistAll(ctx context.Context) {
	for _, snap := range s.store.Snapshots() {
		if err := s.saver.Save(ctx, snap.ID, snap.Content, snap.Version); err != nil {
			log.Printf("[GATEWAY] Error saving snapshot of %s: %v", snap.ID, err)
		}
	}
}

// identityFromRequest pulls the upstream-authenticated identity off the
// request. The surrounding application validates tokens and forwards the
// resolved user in query parameters or headers.
func identityFromRequest(r *http.Request) collab.Identity {
	id := r.URL.Query().Get("user")
	name := r.URL.Query().Get("name")
	if id == "" {
		id = r.Header.Get("X-User-Id")
		name = r.Header.Get("X-User-Name")
	}
	if name == "" {
		name = id
	}
	return collab.Identity{ID: id, Name: name}
}
