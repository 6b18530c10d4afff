package websocket

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jmoiron/sqlx"

	"shuttleops-backend/internal/database"
	"shuttleops-backend/internal/tracking"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 2048 // location_update frames carry a full fix payload
)

// Client represents a WebSocket client connection
type Client struct {
	UserID   string
	UserRole string // "driver" or "dispatcher"
	conn     *websocket.Conn
	hub      *Hub
	send     chan []byte
	db       *sqlx.DB
	tracker  *tracking.Manager
}

// IncomingMessage represents a message from the client
type IncomingMessage struct {
	Type      string                 `json:"type"`
	Timestamp string                 `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// NewClient creates a new WebSocket client
func NewClient(userID, userRole string, conn *websocket.Conn, hub *Hub, db *sqlx.DB, tracker *tracking.Manager) *Client {
	return &Client{
		UserID:   userID,
		UserRole: userRole,
		conn:     conn,
		hub:      hub,
		send:     make(chan []byte, 256),
		db:       db,
		tracker:  tracker,
	}
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		c.markAsDisconnected()
		c.hub.unregister <- c
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
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg IncomingMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Invalid message format: %v", err)
			continue
		}

		switch msg.Type {
		case "ping":
			// Respond with pong
			response := map[string]interface{}{
				"type":      "pong",
				"timestamp": time.Now().Format(time.RFC3339),
			}
			responseData, _ := json.Marshal(response)
			c.send <- responseData

		case "location_update":
			c.handleLocationUpdate(msg.Data)

		case "gps_error":
			c.handleGPSError(msg.Data)
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
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
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// handleLocationUpdate feeds a device fix into the driver's tracking session.
// The session decides whether the fix is due for relay; every fix still
// updates the live position.
func (c *Client) handleLocationUpdate(data map[string]interface{}) {
	latitude, ok := data["latitude"].(float64)
	if !ok {
		log.Printf("❌ Invalid latitude in location update from %s", c.UserID)
		return
	}

	longitude, ok := data["longitude"].(float64)
	if !ok {
		log.Printf("❌ Invalid longitude in location update from %s", c.UserID)
		return
	}

	var accuracy *float64
	if a, ok := data["accuracy"].(float64); ok {
		accuracy = &a
	}

	recordedAt := time.Now()
	if ts, ok := data["timestamp"].(float64); ok && ts > 0 {
		recordedAt = time.Unix(int64(ts), 0)
	}

	sample := tracking.Sample{
		Latitude:   latitude,
		Longitude:  longitude,
		Accuracy:   accuracy,
		RecordedAt: recordedAt,
	}

	if c.tracker == nil || !c.tracker.Feed(c.UserID, sample) {
		log.Printf("⚠️ [WEBSOCKET] Location update from %s with no live session, dropping", c.UserID)
	}
}

// handleGPSError forwards a device-side positioning failure into the session.
// A permission denial ends tracking; anything else is recorded and tracking
// continues.
func (c *Client) handleGPSError(data map[string]interface{}) {
	code, _ := data["code"].(string)
	log.Printf("⚠️ [WEBSOCKET] GPS error from %s: %s", c.UserID, code)

	if c.tracker == nil {
		return
	}

	switch code {
	case "permission_denied":
		c.tracker.FeedError(c.UserID, tracking.ErrPermissionDenied)
	default:
		c.tracker.FeedError(c.UserID, tracking.ErrGPSUnavailable)
	}
}

// markAsDisconnected flags the driver's stored position as stale when the
// socket drops. Dispatcher dashboards fall back to the DB row.
func (c *Client) markAsDisconnected() {
	if c.UserRole != "driver" || c.db == nil {
		return
	}
	if err := database.MarkDriverDisconnected(c.db, c.UserID); err != nil {
		log.Printf("❌ Error marking driver %s disconnected: %v", c.UserID, err)
	}
}
