package dashboard

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// clientSendBuffer is the per-client outbound channel size, matching the
// teacher's WebSocketBufferSize constant.
const clientSendBuffer = 256

// Message is one broadcast envelope sent to every connected dashboard
// client over /ws.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	MessageHealth     = "health_update"
	MessageQueueDepth = "queue_update"
	MessageCandidate  = "candidate_update"
	MessageEscalation = "escalation"
)

// client is one connected WebSocket browser.
type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// Hub fans out broadcast messages to every connected dashboard client.
// Grounded on the teacher's internal/server.Hub, generalized from
// DashboardState/Alert/Activity payloads to the status events this
// read-only surface reports.
type Hub struct {
	mu         sync.RWMutex
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan []byte
}

// NewHub returns a Hub with its main loop not yet started; call Run in its
// own goroutine.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, clientSendBuffer),
	}
}

// Run drives the hub's register/unregister/broadcast loop until stop is
// closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast marshals msg as JSON and fans it out to every connected client.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
		// The dashboard never accepts commands over the socket; it is
		// read-only, so incoming frames are discarded.
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
