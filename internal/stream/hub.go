package stream

import (
	"sync"
	"time"

	"github.com/mediagate/modgate/internal/model"
	"github.com/mediagate/modgate/internal/pkg/logger"

	"github.com/gorilla/websocket"
)

const writeTimeout = 5 * time.Second

// Hub fans moderation events out to connected dashboard clients. Slow
// clients are dropped rather than allowed to block the write path.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	events  chan model.ModerationEvent
	done    chan struct{}
}

type client struct {
	conn *websocket.Conn
	send chan model.ModerationEvent
}

func NewHub(bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		events:  make(chan model.ModerationEvent, bufferSize),
		done:    make(chan struct{}),
	}
}

func (h *Hub) Start() {
	go h.loop()
}

func (h *Hub) Stop() {
	close(h.done)
}

// Publish enqueues an event for broadcast. Never blocks; when the buffer
// is full the event is dropped with a warning.
func (h *Hub) Publish(event model.ModerationEvent) {
	select {
	case h.events <- event:
	case <-h.done:
	default:
		logger.Warn("moderation event buffer full, dropping event", "type", event.Type)
	}
}

// Register attaches an upgraded websocket connection to the feed and
// services it until the connection dies or the hub stops.
func (h *Hub) Register(conn *websocket.Conn) {
	c := &client{conn: conn, send: make(chan model.ModerationEvent, 32)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) loop() {
	for {
		select {
		case event := <-h.events:
			h.broadcast(event)
		case <-h.done:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) broadcast(event model.ModerationEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- event:
		default:
			// client fell behind
			close(c.send)
			delete(h.clients, c)
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for event := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteJSON(event); err != nil {
			h.drop(c)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
		time.Now().Add(writeTimeout))
}

// readPump drains (and ignores) client frames so pings and close frames
// are processed.
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.drop(c)
			return
		}
	}
}

func (h *Hub) drop(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}
