package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Realtime event names emitted to tenant rooms.
const (
	EventQR              = "qr"
	EventConnection      = "connection"
	EventMessageNew      = "message:new"
	EventMessageSent     = "message:sent"
	EventMessageStatus   = "message:status"
	EventNotificationNew = "notification:new"
	EventPresence        = "presence"
	EventCallUpdate      = "call:update"
	EventAISuggestion    = "ai:suggestion"
)

// Emitter is the fan-out surface the pipeline components depend on. Hub
// implements it; tests substitute a recorder.
type Emitter interface {
	Emit(tenantID, event string, data any)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client represents a connected WebSocket client scoped to one tenant room.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	tenantID string
}

type tenantMessage struct {
	tenantID string
	payload  []byte
}

// Hub maintains the set of active clients and fans events out to the clients
// of the addressed tenant.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan tenantMessage
	register   chan *Client
	unregister chan *Client
	mu         sync.Mutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan tenantMessage, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Debug().Str("tenant", client.tenantID).Msg("websocket client registered")
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if client.tenantID != msg.tenantID {
					continue
				}
				select {
				case client.send <- msg.payload:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

type wsEvent struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Emit sends an event to every client in the tenant's room.
func (h *Hub) Emit(tenantID, event string, data any) {
	payload, err := json.Marshal(wsEvent{Type: event, Data: data})
	if err != nil {
		log.Error().Err(err).Str("event", event).Msg("marshal ws event")
		return
	}
	h.broadcast <- tenantMessage{tenantID: tenantID, payload: payload}
}

// ServeWs upgrades an HTTP request into a client in the tenant's room.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request, tenantID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("websocket upgrade")
		return
	}
	client := &Client{hub: h, conn: conn, send: make(chan []byte, 256), tenantID: tenantID}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
		// Clients only listen; inbound frames are heartbeats at most.
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for message := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
