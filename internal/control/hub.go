package control

import (
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ibeckermayer/xsweep/internal/types"
)

// Event types sent to WebSocket clients
const (
	EventProgress = "progress"
	EventStopped  = "stopped"
	EventStatus   = "status"
	EventError    = "error"
)

// Event is one message on the /events stream. Progress fields are inlined.
type Event struct {
	Type string `json:"type"`
	*types.Progress
	State   *types.Status `json:"state,omitempty"`
	Elapsed string        `json:"elapsed,omitempty"`
	Error   string        `json:"error,omitempty"`
}

const clientBuffer = 64

type client struct {
	conn *websocket.Conn
	send chan Event
}

// Hub fans run events out to every connected client. It is a progress.Sink.
// A client that falls behind loses events rather than slowing the run.
type Hub struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates an empty hub
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		logger:  logger.Named("hub"),
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) Progress(p types.Progress) {
	h.broadcast(Event{Type: EventProgress, Progress: &p})
}

func (h *Hub) Stopped() {
	h.broadcast(Event{Type: EventStopped})
}

func (h *Hub) broadcast(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- e:
		default:
			h.logger.Debug("Dropped event for slow client", zap.String("type", e.Type))
		}
	}
}

func (h *Hub) add(conn *websocket.Conn) *client {
	c := &client{conn: conn, send: make(chan Event, clientBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("Client connected", zap.Int("clients", n))
	return c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		close(c.send)
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll disconnects every client
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.conn.Close()
	}
}
