package websocket

import (
	"log"
	"sync/atomic"

	"github.com/jmoiron/sqlx"

	"shuttleops-backend/internal/database"
	"shuttleops-backend/internal/models"
	"shuttleops-backend/internal/tracking"
)

// LocationPublisher fans accepted fixes out to dispatcher dashboards over the
// hub and mirrors them into the database as the disconnection fallback.
type LocationPublisher struct {
	hub *Hub
	db  *sqlx.DB
	seq atomic.Uint64
}

func NewLocationPublisher(hub *Hub, db *sqlx.DB) *LocationPublisher {
	return &LocationPublisher{hub: hub, db: db}
}

// PublishSample implements tracking.Publisher. It never blocks the tracking
// session: broadcast drops on full buffers and DB failures are logged only.
func (p *LocationPublisher) PublishSample(driverID, routeID string, sample tracking.Sample) {
	if p.hub != nil {
		p.hub.BroadcastToRole("dispatcher", map[string]interface{}{
			"type":      "driver_location_update",
			"driver_id": driverID,
			"route_id":  routeID,
			"latitude":  sample.Latitude,
			"longitude": sample.Longitude,
			"accuracy":  sample.Accuracy,
			"timestamp": sample.RecordedAt.Unix(),
		})
	}

	if p.db == nil {
		return
	}

	loc := &models.DriverLocation{
		DriverID:  driverID,
		RouteID:   &routeID,
		Latitude:  sample.Latitude,
		Longitude: sample.Longitude,
		Accuracy:  sample.Accuracy,
		Timestamp: sample.RecordedAt.Unix(),
	}
	if err := database.UpsertCurrentLocation(p.db, loc); err != nil {
		log.Printf("❌ Error saving location to database: %v", err)
		return
	}
	if err := database.InsertLocationTrail(p.db, loc, p.seq.Add(1)); err != nil {
		log.Printf("❌ Error appending location trail: %v", err)
	}
}
