package sse

import (
	"encoding/json"
	"sync"

	"facespace/internal/core/models"

	log "github.com/sirupsen/logrus"
)

// Client is the message channel of one connected SSE client.
type Client chan []byte

// Hub fans recognition events out to all connected clients.
type Hub struct {
	clients    map[Client]bool
	broadcast  chan []byte
	register   chan Client
	unregister chan Client
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.Mutex
}

// NewHub creates a hub. Run must be started before clients register.
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 100),
		register:   make(chan Client),
		unregister: make(chan Client),
		done:       make(chan struct{}),
		clients:    make(map[Client]bool),
	}
}

// Run processes registrations and broadcasts until Stop is called.
func (h *Hub) Run() {
	log.Info("SSE hub started")

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()
			log.Debugf("SSE client registered. Total clients: %d", clientCount)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
				log.Debugf("SSE client unregistered. Total clients: %d", len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client <- message:
				default:
					log.Warn("SSE client channel full, removing client")
					delete(h.clients, client)
					close(client)
				}
			}
			h.mu.Unlock()

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				delete(h.clients, client)
				close(client)
			}
			h.mu.Unlock()
			log.Info("SSE hub stopped")
			return
		}
	}
}

// Stop terminates Run and disconnects all clients. It may be called more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register adds a client.
func (h *Hub) Register(client Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client)
	}
}

// Unregister removes a client and closes its channel.
func (h *Hub) Unregister(client Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast queues a message for all clients and drops it if the queue is full.
func (h *Hub) Broadcast(message []byte) {
	select {
	case h.broadcast <- message:
	default:
		log.Warn("SSE broadcast channel full, message dropped")
	}
}

// PublishRecognition broadcasts a recognition event as JSON.
func (h *Hub) PublishRecognition(event models.RecognitionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.Broadcast(data)
	return nil
}
