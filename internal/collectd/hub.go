package collectd

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hay-kot/studytrack/internal/core/events"
	"github.com/hay-kot/studytrack/internal/core/session"
)

// Stream message types.
const (
	MessageEvents  = "events"
	MessageSession = "session"
)

const (
	clientBuffer = 64
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
)

// StreamMessage is one frame on the live stream.
type StreamMessage struct {
	Type    string         `json:"type"`
	Events  []events.Event `json:"events,omitempty"`
	Session *SessionDigest `json:"session,omitempty"`
}

// SessionDigest is the stream's summary of a synced session.
type SessionDigest struct {
	SessionID       string     `json:"sessionId"`
	UserID          *string    `json:"userId"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	Duration        float64    `json:"duration"`
	ActiveDuration  float64    `json:"activeDuration"`
	PageViews       int        `json:"pageViews"`
	Interactions    int        `json:"interactions"`
	EngagementScore int        `json:"engagementScore"`
}

// Digest summarizes d for the stream.
func Digest(d session.Data) *SessionDigest {
	return &SessionDigest{
		SessionID:       d.SessionID,
		UserID:          d.UserID,
		StartTime:       d.StartTime,
		EndTime:         d.EndTime,
		Duration:        d.Duration,
		ActiveDuration:  d.ActiveDuration,
		PageViews:       len(d.NavigationPath),
		Interactions:    len(d.ContentInteractions),
		EngagementScore: d.EngagementMetrics.EngagementScore,
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans received data out to websocket subscribers. Slow subscribers drop
// frames rather than stall ingestion.
type Hub struct {
	upgrader websocket.Upgrader
	log      zerolog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	dropped int
}

// NewHub creates a Hub. An empty allowedOrigins accepts any origin.
func NewHub(allowedOrigins []string, log zerolog.Logger) *Hub {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}

	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(origins) == 0 || origins["*"] || origin == "" || origins[origin]
			},
		},
		log:     log.With().Str("component", "hub").Logger(),
		clients: make(map[*client]struct{}),
	}
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many frames were dropped for slow subscribers.
func (h *Hub) Dropped() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// HandleWebSocket upgrades the request and registers a subscriber.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	h.register(c)

	go h.writePump(c)
	go h.readPump(c)
}

// Publish sends msg to every subscriber.
func (h *Hub) Publish(msg StreamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("encode stream message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.dropped++
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Debug().Int("subscribers", n).Msg("stream subscriber connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	h.log.Debug().Int("subscribers", n).Msg("stream subscriber disconnected")
}

// readPump discards inbound frames and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
