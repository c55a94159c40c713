// Package websocket fans out booking and calendar events to connected
// back-office clients.
package websocket

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Hub maintains the set of active WebSocket clients and broadcasts messages.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *zap.SugaredLogger

	mu sync.RWMutex
}

// NewHub creates a new WebSocket hub.
func NewHub(logger *zap.SugaredLogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's event loop and returns when ctx is cancelled.
// This should be called in a goroutine.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debugw("websocket client connected", "clients", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Debugw("websocket client disconnected", "clients", total)

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// Slow consumer.
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast queues a message for all connected clients. It never blocks.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message")
	}
}

// Register adds a client to the hub. After the hub stopped the client's
// send channel is closed immediately.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.send)
	}
}

// Unregister removes a client from the hub.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Client represents a WebSocket client connection.
type Client struct {
	hub     *Hub
	send    chan []byte
	replies chan []byte
}

// NewClient creates a new WebSocket client.
func NewClient(hub *Hub) *Client {
	return &Client{
		hub:     hub,
		send:    make(chan []byte, 256),
		replies: make(chan []byte, 16),
	}
}

// Send returns the channel of messages queued for the client.
func (c *Client) Send() <-chan []byte {
	return c.send
}

// Reply queues a direct response to this client. Replies are dropped when
// the client is not draining them.
func (c *Client) Reply(message []byte) {
	select {
	case c.replies <- message:
	default:
	}
}

// Replies returns the channel of direct responses queued for the client.
func (c *Client) Replies() <-chan []byte {
	return c.replies
}
