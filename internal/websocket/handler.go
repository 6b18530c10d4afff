package websocket

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/jmoiron/sqlx"

	"shuttleops-backend/internal/middleware"
	"shuttleops-backend/internal/tracking"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins in development
		// TODO: Restrict in production
		return true
	},
}

// HandleWebSocket upgrades HTTP connection to WebSocket
func HandleWebSocket(hub *Hub, db *sqlx.DB, tracker *tracking.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Browsers cannot set headers on WebSocket handshakes, so the token
		// arrives as a query parameter
		tokenString := r.URL.Query().Get("token")

		var userClaims middleware.UserClaims

		if tokenString != "" {
			claims, err := middleware.ParseToken(tokenString)
			if err != nil {
				log.Printf("❌ Invalid token in query parameter: %v", err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			userClaims = *claims
		} else {
			// Fallback: Get user from context (set by Auth middleware)
			var ok bool
			userClaims, ok = middleware.GetUserFromContext(r)
			if !ok {
				log.Println("❌ No user in context for WebSocket connection")
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("❌ WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(userClaims.UserID, userClaims.Role, conn, hub, db, tracker)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()

		log.Printf("✅ WebSocket connection established for user: %s (%s)", userClaims.Email, userClaims.UserID)
	}
}
