package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/trackd/internal/observability"
	"github.com/harun/trackd/pkg/analytics"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const streamWriteTimeout = 5 * time.Second

// StreamMessage is the frame pushed to snapshot stream clients.
type StreamMessage struct {
	Type      string              `json:"type"`
	Seq       int64               `json:"seq"`
	Timestamp int64               `json:"timestamp"`
	Snapshot  *analytics.Snapshot `json:"snapshot"`
}

type streamClient struct {
	id          string
	conn        *websocket.Conn
	remoteAddr  string
	connectedAt time.Time

	writeMu sync.Mutex
	// lastID is the newest snapshot delivered. Snapshot IDs are ULIDs, so
	// they sort by creation time.
	lastID string
}

// sendSnapshot delivers snap unless the client already holds it or a newer
// one. The frame is encoded under the write lock so each client sees
// increasing sequence numbers.
func (c *streamClient) sendSnapshot(h *Hub, snap *analytics.Snapshot) (bool, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.lastID != "" && snap.ID <= c.lastID {
		return false, nil
	}
	data, err := h.encode("snapshot", snap)
	if err != nil {
		return false, err
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return false, err
	}
	c.lastID = snap.ID
	return true, nil
}

// Hub fans published snapshots out to connected websocket clients.
type Hub struct {
	upgrader websocket.Upgrader
	reader   *analytics.Reader
	logger   zerolog.Logger
	seq      uint64

	mu      sync.RWMutex
	clients map[string]*streamClient
	closed  bool
}

// NewHub creates a Hub. reader supplies the snapshot sent on connect and
// may be nil; checkOrigin may be nil to accept every origin.
func NewHub(reader *analytics.Reader, checkOrigin func(*http.Request) bool, logger zerolog.Logger) *Hub {
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		reader:   reader,
		logger:   logger,
		clients:  make(map[string]*streamClient),
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *streamClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c.id] = c
	observability.SetStreamClients(len(h.clients))
	return true
}

func (h *Hub) remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, id)
	observability.SetStreamClients(len(h.clients))
}

func (h *Hub) snapshotClients() []*streamClient {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*streamClient, 0, len(h.clients))
	for _, c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Hub) nextSeq() int64 {
	return int64(atomic.AddUint64(&h.seq, 1))
}

func (h *Hub) encode(msgType string, snap *analytics.Snapshot) ([]byte, error) {
	return json.Marshal(StreamMessage{
		Type:      msgType,
		Seq:       h.nextSeq(),
		Timestamp: time.Now().UnixMilli(),
		Snapshot:  snap,
	})
}

// Publish sends snap to every connected client. Its signature matches
// analytics.PublishFunc.
func (h *Hub) Publish(_ context.Context, snap *analytics.Snapshot) {
	clients := h.snapshotClients()
	if len(clients) == 0 {
		h.logger.Debug().Str("snapshot_id", snap.ID).Msg("No stream clients to publish to")
		return
	}

	sent, failed := 0, 0
	for _, c := range clients {
		ok, err := c.sendSnapshot(h, snap)
		switch {
		case err != nil:
			h.logger.Warn().Err(err).Str("client_id", c.id).Msg("Failed to push snapshot to client")
			failed++
		case ok:
			sent++
		}
	}

	h.logger.Debug().
		Str("snapshot_id", snap.ID).
		Int("success", sent).
		Int("skipped", len(clients)-sent-failed).
		Int("failed", failed).
		Msg("Snapshot broadcast complete")
}

// ServeHTTP upgrades the request and keeps the client registered until it
// disconnects. The latest snapshot, when one exists, is sent on connect. A
// client registered before the cache read may already have received that
// snapshot or a newer one from Publish; stale frames are never sent.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to upgrade stream connection")
		return
	}

	id, _ := gonanoid.New()
	client := &streamClient{
		id:          id,
		conn:        conn,
		remoteAddr:  r.RemoteAddr,
		connectedAt: time.Now(),
	}
	if !h.add(client) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}
	defer func() {
		h.remove(id)
		conn.Close()
		h.logger.Debug().Str("client_id", id).Msg("Stream client disconnected")
	}()

	h.logger.Debug().Str("client_id", id).Str("ip", r.RemoteAddr).Msg("Stream client connected")

	if h.reader != nil {
		snap, err := h.reader.Latest(r.Context())
		switch {
		case err == nil:
			if _, err := client.sendSnapshot(h, snap); err != nil {
				return
			}
		case !errors.Is(err, analytics.ErrNoDataYet):
			h.logger.Warn().Err(err).Msg("Failed to load latest snapshot for stream client")
		}
	}

	// Inbound frames are ignored; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Str("client_id", id).Msg("Stream client error")
			}
			return
		}
	}
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*streamClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		c.conn.Close()
	}
}
