package wsfeed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"hliquity_mirror/internal/store"

	"github.com/gorilla/websocket"
)

const (
	writeDeadline  = 10 * time.Second
	pingInterval   = 30 * time.Second
	pongWait       = 35 * time.Second // must be > pingInterval
	maxMessageSize = 512              // clients only send pongs
	sendBufferSize = 64
)

// Recorder observes feed connections.
type Recorder interface {
	IncrementConnections()
	DecrementConnections()
	RecordFeedDrop()
}

// Message is one JSON frame sent to feed clients.
type Message struct {
	Type     string            `json:"type"` // "state" on connect, then "change" or "alert"
	Seq      uint64            `json:"seq"`
	BlockTag uint64            `json:"block_tag"`
	Fields   []store.Field     `json:"fields,omitempty"`
	Changes  store.StateChange `json:"changes,omitempty"`
	State    any               `json:"state,omitempty"`
	Alert    any               `json:"alert,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans state changes out to WebSocket clients.
// Run must be called in a dedicated goroutine before ServeWS is used.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool

	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}

	seq      uint64
	recorder Recorder
	// greeting renders the current state for a newly connected client.
	greeting func() (any, bool)
	upgrader websocket.Upgrader
}

// NewHub creates a Hub. greeting may be nil.
func NewHub(recorder Recorder, greeting func() (any, bool)) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
		recorder:   recorder,
		greeting:   greeting,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true // Read-only public feed
			},
		},
	}
}

// Run processes registration, unregistration and broadcast until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			// Greeting after registration: every later broadcast is queued behind it.
			if greeting := h.greet(); greeting != nil {
				c.send <- greeting
			}
			if h.recorder != nil {
				h.recorder.IncrementConnections()
			}
			slog.Info("Feed client connected", slog.Int("total", total))

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
				if h.recorder != nil {
					h.recorder.DecrementConnections()
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow client: drop the frame for this client only.
					if h.recorder != nil {
						h.recorder.RecordFeedDrop()
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// ConnectedCount returns the current number of connected clients.
func (h *Hub) ConnectedCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Listener returns a store listener that broadcasts each non-empty change.
// It never blocks the sequencer: frames are dropped when the hub is behind.
func (h *Hub) Listener() store.Listener[store.BlockState] {
	return func(n store.Notification[store.BlockState]) {
		if len(n.StateChange) == 0 {
			return
		}
		h.enqueue(Message{
			Type:     "change",
			Seq:      atomic.AddUint64(&h.seq, 1),
			BlockTag: n.NewState.Extra.BlockTag,
			Fields:   n.StateChange.Fields(),
			Changes:  n.StateChange,
		})
	}
}

// PublishAlert broadcasts a risk alert. Like Listener it never blocks.
func (h *Hub) PublishAlert(blockTag uint64, alert any) {
	h.enqueue(Message{Type: "alert", Seq: atomic.AddUint64(&h.seq, 1), BlockTag: blockTag, Alert: alert})
}

func (h *Hub) enqueue(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("Feed encode failed", slog.Any("error", err))
		return
	}
	select {
	case h.broadcast <- data:
	default:
		if h.recorder != nil {
			h.recorder.RecordFeedDrop()
		}
	}
}

// ServeWS upgrades the request and starts the client pumps.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("Feed upgrade failed", slog.Any("error", err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) greet() []byte {
	if h.greeting == nil {
		return nil
	}
	state, ok := h.greeting()
	if !ok {
		return nil
	}
	data, err := json.Marshal(Message{Type: "state", Seq: atomic.LoadUint64(&h.seq), State: state})
	if err != nil {
		slog.Error("Feed greeting encode failed", slog.Any("error", err))
		return nil
	}
	return data
}

// readPump keeps the connection alive and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump drains the send queue and pings every pingInterval.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
