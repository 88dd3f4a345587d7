package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The bridge only listens on loopback; the webview is the
		// single expected origin.
		return true
	},
}

// Hub relays backend events to the webview. A desktop app has exactly
// one UI process, so the hub tracks a single client; a reconnect
// replaces the previous connection.
type Hub struct {
	client     *Client
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	logger     *zap.Logger
}

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	isActive bool
}

func NewHub() *Hub {
	return &Hub{
		client:     &Client{isActive: false},
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     zap.NewNop(),
	}
}

// SetLogger routes hub diagnostics through the process logger. Must be
// called before Run starts.
func (h *Hub) SetLogger(logger *zap.Logger) {
	h.logger = logger
}

// Message is the envelope for every event pushed to the UI.
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			if h.client.isActive {
				// A reconnect replaces the previous connection.
				close(h.client.send)
				h.client.conn.Close()
			}
			h.client = client
			h.client.isActive = true
			h.logger.Info("UI client connected")

		case client := <-h.unregister:
			if client != h.client {
				// A replaced connection winding down its pumps; the
				// live client stays attached.
				continue
			}
			h.client.isActive = false
			h.logger.Info("UI client disconnected")

		case message := <-h.broadcast:
			if !h.client.isActive {
				continue
			}
			select {
			case h.client.send <- message:
			default:
				close(h.client.send)
				h.client.isActive = false
			}
		}
	}
}

// Broadcast pushes a typed event to the UI. Never blocks: events are
// dropped when the channel is full or no client is connected.
func (h *Hub) Broadcast(eventType string, data interface{}) {
	msg := Message{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}

	jsonData, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn("Failed to marshal message", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- jsonData:
	default:
		h.logger.Warn("Broadcast channel full, skipping message")
	}
}

func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		isActive: true,
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, 256),
	}

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for message := range c.send {
		c.conn.WriteMessage(websocket.TextMessage, message)
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}
