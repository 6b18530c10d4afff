package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"

	"shuttleops-backend/internal/database"
	"shuttleops-backend/internal/middleware"
	"shuttleops-backend/internal/models"
	"shuttleops-backend/internal/tracking"
	"shuttleops-backend/pkg/utils"
)

type LocationRequest struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Accuracy  *float64 `json:"accuracy"`
	RouteID   *string  `json:"route_id"`
	Timestamp *int64   `json:"timestamp"`
}

type FCMTokenRequest struct {
	Token      string `json:"token"`
	DeviceType string `json:"device_type"`
}

// PostLocation is the HTTP fallback for devices without a websocket. The fix
// goes through the driver's tracking session when one is live; otherwise only
// the stored current position is refreshed.
func PostLocation(db *sqlx.DB, tracker *tracking.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req LocationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Latitude < -90 || req.Latitude > 90 || req.Longitude < -180 || req.Longitude > 180 {
			utils.RespondError(w, http.StatusBadRequest, "Coordinates out of range")
			return
		}

		recordedAt := time.Now()
		if req.Timestamp != nil && *req.Timestamp > 0 {
			recordedAt = time.Unix(*req.Timestamp, 0)
		}

		sample := tracking.Sample{
			Latitude:   req.Latitude,
			Longitude:  req.Longitude,
			Accuracy:   req.Accuracy,
			RecordedAt: recordedAt,
		}

		if tracker != nil && tracker.Feed(user.UserID, sample) {
			utils.Success(w, map[string]interface{}{"tracked": true})
			return
		}

		// No live session: keep the stored position fresh anyway
		loc := &models.DriverLocation{
			DriverID:  user.UserID,
			RouteID:   req.RouteID,
			Latitude:  req.Latitude,
			Longitude: req.Longitude,
			Accuracy:  req.Accuracy,
			Timestamp: recordedAt.Unix(),
		}
		if err := database.UpsertCurrentLocation(db, loc); err != nil {
			log.Printf("❌ Error saving location for driver %s: %v", user.UserID, err)
			utils.RespondError(w, http.StatusInternalServerError, "Failed to save location")
			return
		}

		utils.Success(w, map[string]interface{}{"tracked": false})
	}
}

// GetStatus returns the driver's tracking state alongside their last stored
// position.
func GetStatus(db *sqlx.DB, tracker *tracking.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		status := models.DriverStatus{DriverID: user.UserID}
		if u, err := database.GetUserByEmail(db, user.Email); err == nil {
			status.Name = u.Name
		}
		if session := tracker.Session(user.UserID); session != nil {
			routeID := session.RouteID()
			status.RouteID = &routeID
			status.Tracking = session.State() == tracking.StateTracking
		}

		loc, err := database.GetCurrentLocation(db, user.UserID)
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Failed to load location")
			return
		}
		status.LastLocation = loc

		utils.Success(w, status)
	}
}

// GetCurrentLocation returns a driver's last stored position.
func GetCurrentLocation(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		loc, err := database.GetCurrentLocation(db, user.UserID)
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Failed to load location")
			return
		}
		if loc == nil {
			utils.RespondError(w, http.StatusNotFound, "No location recorded")
			return
		}

		utils.Success(w, loc)
	}
}

// RegisterFCMToken stores a device push token for the authenticated user.
func RegisterFCMToken(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		var req FCMTokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
		if req.Token == "" {
			utils.RespondError(w, http.StatusBadRequest, "Token is required")
			return
		}
		if req.DeviceType != "ios" && req.DeviceType != "android" {
			utils.RespondError(w, http.StatusBadRequest, "device_type must be 'ios' or 'android'")
			return
		}

		if err := database.SaveFCMToken(db, user.UserID, req.Token, req.DeviceType); err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Failed to save token")
			return
		}

		log.Printf("✅ FCM token registered for user %s (%s)", user.UserID, req.DeviceType)
		utils.Success(w, map[string]interface{}{"ok": true})
	}
}
