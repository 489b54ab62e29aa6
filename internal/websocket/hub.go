package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/your-username/logsgate/internal/models"
	"github.com/your-username/logsgate/internal/monitoring"
)

// Message types sent to stream clients
const (
	TypeConnection = "connection"
	TypeLog        = "log"
	TypeSubmission = "submission"
	TypeStatus     = "status"
)

type envelope struct {
	payload []byte
	// record is set for log messages so per-client filters can apply
	record *models.LogRecord
}

type Hub struct {
	// Registered clients
	clients map[*Client]bool

	// Outbound messages for clients
	broadcast chan envelope

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Closed when Run returns
	done chan struct{}

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan envelope, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		done:       make(chan struct{}),
	}
}

// Run dispatches messages until ctx is cancelled, then disconnects every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mu.Unlock()
			monitoring.SetStreamClients(0)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			monitoring.SetStreamClients(n)
			log.Info().Str("client_id", client.id).Msg("Client connected")

			welcome := models.StreamMessage{
				Type: TypeConnection,
				Data: map[string]string{
					"status":  "connected",
					"message": "Connected to log stream",
				},
			}
			if msg, err := json.Marshal(welcome); err == nil {
				client.send <- msg
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Info().Str("client_id", client.id).Msg("Client disconnected")
			}
			n := len(h.clients)
			h.mu.Unlock()
			monitoring.SetStreamClients(n)

		case env := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if env.record != nil && !client.accepts(env.record) {
					continue
				}
				select {
				case client.send <- env.payload:
				default:
					// slow consumer, drop it
					close(client.send)
					delete(h.clients, client)
					log.Warn().Str("client_id", client.id).Msg("Client send buffer full, disconnecting")
				}
			}
			h.mu.Unlock()
		}
	}
}

// BroadcastLog streams an accepted record to every matching client
func (h *Hub) BroadcastLog(record *models.LogRecord) {
	msg, err := json.Marshal(models.StreamMessage{Type: TypeLog, Data: record})
	if err != nil {
		return
	}
	h.publish(envelope{payload: msg, record: record})
}

// BroadcastSubmission streams the outcome of a bulk submission to every client
func (h *Hub) BroadcastSubmission(sub models.Submission) {
	msg, err := json.Marshal(models.StreamMessage{Type: TypeSubmission, Data: sub})
	if err != nil {
		return
	}
	h.publish(envelope{payload: msg})
}

// publish never blocks the ingest path; messages are dropped when the hub
// is behind.
func (h *Hub) publish(env envelope) {
	if h.GetConnectedClients() == 0 {
		return
	}
	select {
	case h.broadcast <- env:
	default:
		log.Warn().Msg("Stream broadcast buffer full, dropping message")
	}
}

// GetConnectedClients returns the number of connected clients
func (h *Hub) GetConnectedClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
