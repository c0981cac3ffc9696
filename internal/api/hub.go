package api

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"github.com/slassabe/iot2mqtt/internal/message"
)

// Event is what the admin API's /events websocket streams: one line per
// pipeline message the fan-out consumer forwarded, plus log entries
// tailed from internal/logger's broadcast hook.
type Event struct {
	Kind      string                 `json:"kind"` // "message" or "log"
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan Event
}

// Hub fans pipeline messages and log entries out to every connected
// websocket client, dropping to a slow client rather than blocking the
// rest of the hub.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*client
	nextID   int
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// Broadcast enqueues an event for every connected client.
func (h *Hub) Broadcast(ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- ev:
		default:
		}
	}
}

// ConsumeMessage adapts the pipeline fan-out's Consume signature, turning
// every forwarded message into a broadcast event.
func (h *Hub) ConsumeMessage(m message.Message) {
	h.Broadcast(Event{
		Kind:      "message",
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"device":       m.DeviceName,
			"protocol":     string(m.Protocol),
			"message_type": string(m.MessageType),
		},
	})
}

// BroadcastLog adapts internal/logger's BroadcastFunc signature.
func (h *Hub) BroadcastLog(level, msg string, fields map[string]interface{}) {
	data := map[string]interface{}{"level": level, "message": msg}
	for k, v := range fields {
		data[k] = v
	}
	h.Broadcast(Event{Kind: "log", Timestamp: time.Now(), Data: data})
}

// ClientCount reports how many websocket clients are currently attached,
// surfaced by GET /healthz.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Handle is the gofiber/contrib/websocket.New callback for GET /events.
func (h *Hub) Handle(conn *websocket.Conn) {
	h.mu.Lock()
	h.nextID++
	c := &client{id: fmt.Sprintf("ws-%d", h.nextID), conn: conn, send: make(chan Event, 256)}
	h.clients[c.id] = c
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c.id)
		h.mu.Unlock()
		conn.Close()
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev := <-c.send:
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
