package websocket

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/your-username/logsgate/internal/models"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024
)

type Client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu       sync.RWMutex
	filters  []models.StreamFilter
	isPaused bool
}

// HandleWebSocket upgrades GET /stream. Browsers are held to the same
// origins as the CORS policy; non-browser clients send no Origin.
func HandleWebSocket(hub *Hub, allowedOrigins []string) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range allowedOrigins {
				if allowed == "*" || strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Error().Err(err).Msg("Failed to upgrade connection")
			return
		}

		client := &Client{
			id:   uuid.New().String(),
			hub:  hub,
			conn: conn,
			send: make(chan []byte, 256),
		}

		select {
		case client.hub.register <- client:
		case <-hub.done:
			conn.Close()
			return
		}

		go client.writePump()
		go client.readPump()
	}
}

// readPump handles incoming messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("client_id", c.id).Msg("WebSocket error")
			}
			break
		}

		var msg models.StreamMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Debug().Err(err).Str("client_id", c.id).Msg("Failed to parse WebSocket message")
			c.sendStatus("error", "invalid message")
			continue
		}

		switch msg.Type {
		case "filter":
			c.mu.Lock()
			c.filters = msg.Filters
			c.mu.Unlock()
			log.Debug().Str("client_id", c.id).Interface("filters", msg.Filters).Msg("Client filters updated")
			c.sendStatus("filters_updated", "Filters updated successfully")
		case "pause":
			c.setPaused(true)
			c.sendStatus("paused", "Stream paused")
		case "resume":
			c.setPaused(false)
			c.sendStatus("resumed", "Stream resumed")
		case "ping":
			c.sendStatus("pong", "")
		default:
			log.Debug().Str("type", msg.Type).Msg("Unknown message type")
		}
	}
}

// writePump handles outgoing messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) setPaused(paused bool) {
	c.mu.Lock()
	c.isPaused = paused
	c.mu.Unlock()
}

// accepts reports whether a record passes the client's filters. Message
// filters match substrings; every other field must be equal, ignoring case.
func (c *Client) accepts(record *models.LogRecord) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.isPaused {
		return false
	}
	for _, f := range c.filters {
		if !matchFilter(record, f) {
			return false
		}
	}
	return true
}

func matchFilter(record *models.LogRecord, f models.StreamFilter) bool {
	var value string
	switch f.Field {
	case "level":
		value = record.Level
	case "message":
		return strings.Contains(strings.ToLower(record.Message), strings.ToLower(f.Value))
	case "resourceId":
		value = record.ResourceID
	case "traceId":
		value = record.TraceID
	case "spanId":
		value = record.SpanID
	case "commit":
		value = record.Commit
	case "parentResourceId":
		value = record.Metadata.ParentResourceID
	default:
		return false
	}
	return strings.EqualFold(value, f.Value)
}

// sendStatus sends a status message to the client
func (c *Client) sendStatus(status, message string) {
	msg := models.StreamMessage{
		Type: TypeStatus,
		Data: map[string]string{
			"status":  status,
			"message": message,
		},
	}

	if msgBytes, err := json.Marshal(msg); err == nil {
		select {
		case c.send <- msgBytes:
		default:
		}
	}
}
