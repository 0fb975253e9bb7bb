package chatws

import (
	"encoding/json"
	"log"
	"sync"

	websocket "github.com/gofiber/contrib/websocket"
)

// Event is the envelope for everything pushed over a socket.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Hub owns the presence map. All mutations and lookups go through Run's
// goroutine, so connection churn from many sockets never races.
type Hub struct {
	clients    map[int64]*Client
	register   chan *Client
	unregister chan *Client
	emit       chan directedEvent
	snapshot   chan chan []int64
}

// Client's send channel is written from the hub goroutine and from the
// client's own ReadPump (error frames), while the hub may close it on
// overwrite or slow-consumer drop. The mutex plus closed flag keeps those
// writers off a closed channel.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID int64

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

type directedEvent struct {
	userID  int64
	payload []byte
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[int64]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		emit:       make(chan directedEvent, 64),
		snapshot:   make(chan chan []int64),
	}
}

func NewClient(hub *Hub, conn *websocket.Conn, userID int64) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, 32),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			// One connection per user: a newer socket wins and the
			// older one silently loses its presence entry.
			if previous, ok := h.clients[client.userID]; ok && previous != client {
				previous.closeSend()
			}
			h.clients[client.userID] = client
			h.broadcastOnline()
		case client := <-h.unregister:
			// Only drop the entry if this client still owns it; a
			// connection that was overwritten must not evict its
			// replacement on close.
			if current, ok := h.clients[client.userID]; ok && current == client {
				delete(h.clients, client.userID)
				client.closeSend()
				h.broadcastOnline()
			}
		case event := <-h.emit:
			h.sendToUser(event.userID, event.payload)
		case reply := <-h.snapshot:
			reply <- h.onlineIDs()
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Emit pushes one event to the user's connection if they are online;
// offline users are silently skipped.
func (h *Hub) Emit(userID int64, eventType string, data any) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		log.Printf("chat hub encode %s event: %v", eventType, err)
		return
	}
	h.emit <- directedEvent{userID: userID, payload: payload}
}

// Fanout delivers one event to every participant except excludeID. The
// sender never receives its own message and offline participants are
// skipped by Emit.
func (h *Hub) Fanout(participantIDs []int64, excludeID int64, eventType string, data any) {
	payload, err := json.Marshal(Event{Type: eventType, Data: data})
	if err != nil {
		log.Printf("chat hub encode %s event: %v", eventType, err)
		return
	}
	for _, participantID := range participantIDs {
		if participantID == excludeID {
			continue
		}
		h.emit <- directedEvent{userID: participantID, payload: payload}
	}
}

// OnlineIDs returns a snapshot of currently connected user ids.
func (h *Hub) OnlineIDs() []int64 {
	reply := make(chan []int64, 1)
	h.snapshot <- reply
	return <-reply
}

func (h *Hub) onlineIDs() []int64 {
	ids := make([]int64, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}

func (h *Hub) broadcastOnline() {
	payload, err := json.Marshal(Event{Type: "onlineUsers", Data: h.onlineIDs()})
	if err != nil {
		log.Printf("chat hub encode onlineUsers event: %v", err)
		return
	}
	for _, client := range h.clients {
		h.push(client, payload)
	}
}

func (h *Hub) sendToUser(userID int64, payload []byte) {
	client, ok := h.clients[userID]
	if !ok {
		return
	}
	h.push(client, payload)
}

func (h *Hub) push(client *Client, payload []byte) {
	if client.enqueue(payload) {
		return
	}
	// Slow consumer: drop the connection rather than block the hub.
	if current, ok := h.clients[client.userID]; ok && current == client {
		delete(h.clients, client.userID)
	}
	client.closeSend()
}

// enqueue queues a frame without blocking. False means the connection is
// closed or its buffer is full.
func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump consumes client frames. Sends happen over HTTP; the socket only
// carries the typing relay, forwarded 1:1 to the named recipient.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming struct {
			Type        string `json:"type"`
			RecipientID int64  `json:"recipient_id"`
		}
		if err := json.Unmarshal(payload, &incoming); err != nil {
			c.writeError("invalid message payload")
			continue
		}

		switch incoming.Type {
		case "typing":
			c.hub.Emit(incoming.RecipientID, "displayTyping", map[string]any{"sender_id": c.userID})
		case "stopTyping":
			c.hub.Emit(incoming.RecipientID, "hideTyping", map[string]any{"sender_id": c.userID})
		default:
			c.writeError("unsupported message type")
		}
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (c *Client) writeError(message string) {
	payload, err := json.Marshal(Event{Type: "error", Data: message})
	if err != nil {
		return
	}
	if !c.enqueue(payload) {
		c.hub.Unregister(c)
	}
}
