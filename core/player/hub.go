package player

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"mixfm/logger"
)

// EventType labels a push event sent to a listener's connected players.
type EventType string

const (
	EventQueueUpdated  EventType = "queue_updated"  // queue regenerated or cleared
	EventTrackAdvanced EventType = "track_advanced" // playback moved to the next track
	EventSyncStatus    EventType = "sync_status"    // library sync progress
	EventPing          EventType = "ping"
	EventPong          EventType = "pong"
)

// Event is the wire format pushed over the websocket.
type Event struct {
	Type      EventType       `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// Client is one connected player device. A listener may have several.
type Client struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID int64
}

// Hub fans push events out to every connected device of a listener. It has
// no cross-listener traffic: events for one listener never reach another.
type Hub struct {
	clients    map[int64]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	done       chan struct{}
}

// NewHub creates a player event hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[int64]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run drives registration until Stop is called. Run in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop shuts down the hub and closes every client send channel.
func (h *Hub) Stop() {
	close(h.done)
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.UserID] == nil {
		h.clients[client.UserID] = make(map[*Client]bool)
	}
	h.clients[client.UserID][client] = true

	logger.Info("player connected",
		logger.Int64("listenerId", client.UserID),
		logger.Int("devices", len(h.clients[client.UserID])))
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	devices := h.clients[client.UserID]
	if devices == nil || !devices[client] {
		return
	}
	delete(devices, client)
	close(client.Send)
	if len(devices) == 0 {
		delete(h.clients, client.UserID)
	}
}

func (h *Hub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, devices := range h.clients {
		for client := range devices {
			close(client.Send)
		}
	}
	h.clients = make(map[int64]map[*Client]bool)
}

// Register adds a client to the hub.
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Notify pushes an event to every device of the listener. Devices with a
// full send buffer are skipped; the next queue read resynchronizes them.
func (h *Hub) Notify(listenerID int64, eventType EventType, payload interface{}) {
	event := &Event{Type: eventType, Timestamp: time.Now().UnixMilli()}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			logger.Warn("failed to marshal push event",
				logger.String("type", string(eventType)), logger.ErrorField(err))
			return
		}
		event.Data = data
	}

	message, err := json.Marshal(event)
	if err != nil {
		logger.Warn("failed to marshal push envelope", logger.ErrorField(err))
		return
	}

	h.mu.RLock()
	devices := make([]*Client, 0, len(h.clients[listenerID]))
	for client := range h.clients[listenerID] {
		devices = append(devices, client)
	}
	h.mu.RUnlock()

	for _, client := range devices {
		select {
		case client.Send <- message:
		default:
		}
	}
}

// ReadPump drains the connection, answering pings, until it closes.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, message, err := c.Conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					logger.Warn("websocket read error",
						logger.Int64("listenerId", c.UserID), logger.ErrorField(err))
				}
				return
			}

			var event Event
			if err := json.Unmarshal(message, &event); err != nil {
				continue
			}
			if event.Type == EventPing {
				pong := &Event{Type: EventPong, Timestamp: time.Now().UnixMilli()}
				if data, err := json.Marshal(pong); err == nil {
					select {
					case c.Send <- data:
					default:
					}
				}
			}
		}
	}
}

// WritePump flushes the send channel to the connection and keeps the
// connection alive with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Coalesce whatever queued up behind this message.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
