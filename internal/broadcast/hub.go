// Package broadcast fans stream events out to websocket clients grouped in rooms.
package broadcast

import (
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	clientBuffer   = 16
	broadcastQueue = 100
)

// Event is one message pushed to every client in Room.
type Event struct {
	Room  string `json:"-"`
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Client is one websocket connection joined to a room.
type Client struct {
	room string
	conn *websocket.Conn
	send chan Event
}

// Hub manages websocket connections per room and broadcasts events to them.
type Hub struct {
	rooms     map[string]map[*Client]bool
	broadcast chan Event
	mu        sync.Mutex
	closed    bool
}

// NewHub creates a Hub and starts its broadcast loop.
func NewHub() *Hub {
	hub := &Hub{
		rooms:     make(map[string]map[*Client]bool),
		broadcast: make(chan Event, broadcastQueue),
	}
	go hub.run()
	return hub
}

func (h *Hub) run() {
	for ev := range h.broadcast {
		h.mu.Lock()
		for c := range h.rooms[ev.Room] {
			select {
			case c.send <- ev:
			default:
				logrus.WithFields(logrus.Fields{
					"room":     ev.Room,
					"conn_ptr": fmt.Sprintf("%p", c.conn),
				}).Warn("Client too slow, disconnecting")
				h.remove(c)
			}
		}
		h.mu.Unlock()
	}

	h.mu.Lock()
	for _, clients := range h.rooms {
		for c := range clients {
			h.remove(c)
		}
	}
	h.mu.Unlock()
}

// RegisterClient joins conn to room and starts writing events to it.
func (h *Hub) RegisterClient(room string, conn *websocket.Conn) *Client {
	c := &Client{room: room, conn: conn, send: make(chan Event, clientBuffer)}

	h.mu.Lock()
	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[*Client]bool)
	}
	h.rooms[room][c] = true
	h.mu.Unlock()

	go h.writePump(c)
	logrus.WithFields(logrus.Fields{
		"room":     room,
		"conn_ptr": fmt.Sprintf("%p", conn),
	}).Info("Client registered with hub")
	return c
}

// UnregisterClient removes c from its room and closes its connection.
func (h *Hub) UnregisterClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(c)
}

// remove must be called with h.mu held.
func (h *Hub) remove(c *Client) {
	clients, ok := h.rooms[c.room]
	if !ok || !clients[c] {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.rooms, c.room)
	}
	close(c.send)
	logrus.WithFields(logrus.Fields{
		"room":     c.room,
		"conn_ptr": fmt.Sprintf("%p", c.conn),
	}).Info("Client unregistered from hub")
}

func (h *Hub) writePump(c *Client) {
	defer c.conn.Close()
	for ev := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logrus.WithError(err).WithField("room", c.room).Warn("Failed to send event to client")
			}
			h.UnregisterClient(c)
			for range c.send {
			}
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// Publish queues ev for broadcast. It never blocks; when the queue is full
// the event is dropped.
func (h *Hub) Publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	select {
	case h.broadcast <- ev:
	default:
		logrus.WithField("room", ev.Room).Warn("Broadcast queue full, dropping event")
	}
}

// ClientCount returns how many clients are joined to room.
func (h *Hub) ClientCount(room string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[room])
}

// Close stops the broadcast loop and disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.closed = true
		close(h.broadcast)
	}
}
