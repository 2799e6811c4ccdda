package websocket

import (
	"github.com/rs/zerolog/log"

	"github.com/isdelr/mealie-backup/internal/models"
)

// Hub maintains the set of active clients and broadcasts messages to them.
type Hub struct {
	// Registered clients.
	clients map[*Client]bool

	// Outbound messages for every client.
	Broadcast chan []byte

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	done chan struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		Broadcast:  make(chan []byte, 64),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
	}
}

// Run starts the Hub's message processing loop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			for client := range h.clients {
				close(client.Send)
				delete(h.clients, client)
			}
			return
		case client := <-h.Register:
			h.clients[client] = true
			log.Info().Int("total_clients", len(h.clients)).Msg("Client connected")
		case client := <-h.Unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.Send)
				log.Info().Int("total_clients", len(h.clients)).Msg("Client disconnected")
			}
		case message := <-h.Broadcast:
			for client := range h.clients {
				select {
				case client.Send <- message:
				default:
					close(client.Send)
					delete(h.clients, client)
				}
			}
		}
	}
}

// Stop ends the Run loop and disconnects all clients.
func (h *Hub) Stop() {
	close(h.done)
}

// PublishEvent broadcasts a recorded event. Events are dropped rather than
// blocking the caller when the hub is backed up.
func (h *Hub) PublishEvent(event models.Event) {
	msg := NewMessage("event", event)
	if msg == nil {
		return
	}
	select {
	case h.Broadcast <- msg:
	default:
		log.Warn().Str("event_id", event.ID).Msg("Websocket hub busy, dropping event")
	}
}
