package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"shuttleops-backend/internal/models"
)

// UpsertCurrentLocation replaces the driver's single current-position row.
// The trail table keeps history; this table is the fallback for dashboards
// when the websocket stream is down.
func UpsertCurrentLocation(db *sqlx.DB, loc *models.DriverLocation) error {
	query := `
		INSERT INTO driver_current_location (
			driver_id, latitude, longitude, heading, speed, accuracy, route_id, timestamp, is_connected, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE, EXTRACT(EPOCH FROM NOW())::BIGINT)
		ON CONFLICT (driver_id)
		DO UPDATE SET
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			heading = EXCLUDED.heading,
			speed = EXCLUDED.speed,
			accuracy = EXCLUDED.accuracy,
			route_id = EXCLUDED.route_id,
			timestamp = EXCLUDED.timestamp,
			is_connected = TRUE,
			updated_at = EXTRACT(EPOCH FROM NOW())::BIGINT
	`
	if _, err := db.Exec(
		query,
		loc.DriverID,
		loc.Latitude,
		loc.Longitude,
		loc.Heading,
		loc.Speed,
		loc.Accuracy,
		loc.RouteID,
		loc.Timestamp,
	); err != nil {
		return fmt.Errorf("failed to upsert current location: %w", err)
	}
	return nil
}

// InsertLocationTrail appends one fix to the append-only trail.
func InsertLocationTrail(db *sqlx.DB, loc *models.DriverLocation, seq uint64) error {
	query := `
		INSERT INTO driver_locations (driver_id, route_id, latitude, longitude, accuracy, seq, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	if _, err := db.Exec(
		query,
		loc.DriverID,
		loc.RouteID,
		loc.Latitude,
		loc.Longitude,
		loc.Accuracy,
		int64(seq),
		loc.Timestamp,
	); err != nil {
		return fmt.Errorf("failed to insert location trail: %w", err)
	}
	return nil
}

// GetCurrentLocation returns the driver's last known position, or nil when
// the driver has never reported one.
func GetCurrentLocation(db *sqlx.DB, driverID string) (*models.DriverLocation, error) {
	var loc models.DriverLocation
	query := `
		SELECT driver_id, latitude, longitude, heading, speed, accuracy, route_id, timestamp, updated_at AS created_at
		FROM driver_current_location
		WHERE driver_id = $1
	`
	err := db.Get(&loc, query, driverID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load current location: %w", err)
	}
	return &loc, nil
}

// MarkDriverDisconnected flips the connectivity flag without discarding the
// last position.
func MarkDriverDisconnected(db *sqlx.DB, driverID string) error {
	query := `
		UPDATE driver_current_location
		SET is_connected = FALSE, updated_at = EXTRACT(EPOCH FROM NOW())::BIGINT
		WHERE driver_id = $1
	`
	if _, err := db.Exec(query, driverID); err != nil {
		return fmt.Errorf("failed to mark driver disconnected: %w", err)
	}
	return nil
}

// RecordRouteCompletionLocal mirrors a completion report into the local
// reporting table.
func RecordRouteCompletionLocal(db *sqlx.DB, routeID, driverID string, completedAt int64, stopsCompleted, stopsTotal int) error {
	query := `
		INSERT INTO route_completions (route_id, driver_id, completed_at, stops_completed, stops_total)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := db.Exec(query, routeID, driverID, completedAt, stopsCompleted, stopsTotal); err != nil {
		return fmt.Errorf("failed to record route completion: %w", err)
	}
	return nil
}

// GetUserByEmail loads a user for login. sql.ErrNoRows passes through so the
// caller can distinguish bad credentials from DB failures.
func GetUserByEmail(db *sqlx.DB, email string) (*models.User, error) {
	var user models.User
	err := db.Get(&user, "SELECT * FROM users WHERE email = $1", email)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SaveFCMToken registers or refreshes a device token for push delivery.
func SaveFCMToken(db *sqlx.DB, userID, token, deviceType string) error {
	query := `
		INSERT INTO fcm_tokens (user_id, token, device_type)
		VALUES ($1, $2, $3)
		ON CONFLICT(token) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			device_type = EXCLUDED.device_type,
			updated_at = EXTRACT(EPOCH FROM NOW())::BIGINT
	`
	if _, err := db.Exec(query, userID, token, deviceType); err != nil {
		return fmt.Errorf("failed to save FCM token: %w", err)
	}
	return nil
}

// GetFCMTokens returns all registered device tokens for a user.
func GetFCMTokens(db *sqlx.DB, userID string) ([]string, error) {
	var tokens []string
	if err := db.Select(&tokens, "SELECT token FROM fcm_tokens WHERE user_id = $1", userID); err != nil {
		return nil, fmt.Errorf("failed to load FCM tokens: %w", err)
	}
	return tokens, nil
}
