package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/session"
	"github.com/gorilla/websocket"
)

const (
	// DefaultFrameInterval throttles landmark broadcasts to ~15 FPS.
	DefaultFrameInterval = 66 * time.Millisecond

	clientBuffer = 64
	writeWait    = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// Message is one websocket payload. Exactly one of Event, Frame or Session
// is set, matching Type.
type Message struct {
	Type    string            `json:"type"`
	Event   *session.Event    `json:"event,omitempty"`
	Frame   *detector.Frame   `json:"frame,omitempty"`
	Session *session.Snapshot `json:"session,omitempty"`
}

// Message types.
const (
	MessageEvent   = "event"
	MessageFrame   = "frame"
	MessageSession = "session"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans session events and tracked frames out to websocket clients. It
// is a session observer and a frame observer: both callbacks only enqueue,
// and a client that cannot keep up loses messages instead of stalling the
// session.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}

	snapshot func() session.Snapshot
	interval time.Duration
	lastSent time.Time
	latest   atomic.Pointer[detector.Frame]
	dropped  atomic.Int64
}

// NewHub creates a Hub. snapshot, when non-nil, supplies the state sent to
// each client as it connects.
func NewHub(snapshot func() session.Snapshot) *Hub {
	return &Hub{
		clients:  make(map[*client]struct{}),
		snapshot: snapshot,
		interval: DefaultFrameInterval,
	}
}

// SetFrameInterval changes the minimum spacing between frame broadcasts.
// Zero broadcasts every frame. It must be called before frames arrive.
func (h *Hub) SetFrameInterval(d time.Duration) {
	h.interval = d
}

// OnEvent implements session.Observer.
func (h *Hub) OnEvent(e session.Event) {
	h.broadcast(Message{Type: MessageEvent, Event: &e})
}

// OnFrame records f as the latest frame and broadcasts it when the frame
// interval has elapsed. It is called from a single goroutine.
func (h *Hub) OnFrame(f detector.Frame) {
	h.latest.Store(&f)

	now := time.Now()
	if h.interval > 0 && now.Sub(h.lastSent) < h.interval {
		return
	}
	h.lastSent = now
	h.broadcast(Message{Type: MessageFrame, Frame: &f})
}

// Latest returns the most recent frame seen by the hub.
func (h *Hub) Latest() (detector.Frame, bool) {
	f := h.latest.Load()
	if f == nil {
		return detector.Frame{}, false
	}
	return *f, true
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many messages were discarded for slow clients.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.conn.Close()
	}
}

func (h *Hub) broadcast(m Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.clients) == 0 {
		return
	}

	msg, err := json.Marshal(m)
	if err != nil {
		log.Printf("ws: encode %s message: %v", m.Type, err)
		return
	}

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}

// ServeHTTP upgrades the request and streams messages until the client
// disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer)}
	if h.snapshot != nil {
		snap := h.snapshot()
		if msg, err := json.Marshal(Message{Type: MessageSession, Session: &snap}); err == nil {
			c.send <- msg
		}
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	done := make(chan struct{})
	go h.writeLoop(c, done)

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(done)
	conn.Close()
}

func (h *Hub) writeLoop(c *client, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}
