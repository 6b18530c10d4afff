package main

import (
	"context"
	"log"
	"math"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"shuttleops-backend/internal/dispatch"
	"shuttleops-backend/internal/driver"
	"shuttleops-backend/internal/metrics"
	"shuttleops-backend/internal/models"
	"shuttleops-backend/internal/tracking"
)

// The agent simulates one driver's device for a full route: it starts the
// route, streams GPS fixes faster than the relay interval so throttling is
// visible, checks in every stop and completes the route. It runs against the
// in-memory facade by default, or a real dispatch backend when
// DISPATCH_API_URL is set.

type logPublisher struct{}

func (logPublisher) PublishSample(driverID, routeID string, sample tracking.Sample) {
	log.Printf("📡 [AGENT] position driver=%s route=%s lat=%.5f lng=%.5f", driverID, routeID, sample.Latitude, sample.Longitude)
}

func jitter(lat, lng, meters float64) (float64, float64) {
	latMetersPerDeg := 111320.0
	lngMetersPerDeg := 111320.0 * math.Cos(lat*math.Pi/180)
	dLat := (rand.Float64()*2 - 1) * (meters / latMetersPerDeg)
	dLng := (rand.Float64()*2 - 1) * (meters / lngMetersPerDeg)
	return lat + dLat, lng + dLng
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds > 0 {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

func seedRoute(facade *dispatch.Memory, driverID string) *models.Route {
	now := time.Now().UTC()
	start := now.Add(-10 * time.Minute).Unix()
	end := now.Add(2 * time.Hour).Unix()

	names := []string{"Pickup A", "Pickup B", "Campus Gate"}
	coords := [][2]float64{
		{37.3329, -121.8866},
		{37.3361, -121.8869},
		{37.3343, -121.8936},
	}
	stops := make([]models.Stop, len(names))
	for i := range names {
		stops[i] = models.Stop{
			ID:           uuid.New().String(),
			EmployeeName: &names[i],
			Latitude:     coords[i][0],
			Longitude:    coords[i][1],
		}
	}

	route := models.Route{
		ID:        uuid.New().String(),
		Name:      "Morning Campus Loop",
		Status:    string(models.RouteStatusScheduled),
		StartTime: &start,
		EndTime:   &end,
		DriverID:  &driverID,
		Stops:     stops,
	}
	for i := range route.Stops {
		route.Stops[i].RouteID = route.ID
		seq := i + 1
		route.Stops[i].Sequence = &seq
	}

	facade.SeedRoute(route)
	return &route
}

func main() {
	log.Println("🚐 [AGENT] Shuttle device agent starting")

	driverID := os.Getenv("AGENT_DRIVER_ID")
	if driverID == "" {
		driverID = "driver-sim-1"
	}
	tick := envDuration("AGENT_TICK_SECONDS", 2*time.Second)
	dwell := envDuration("AGENT_DWELL_SECONDS", 15*time.Second)

	var facade dispatch.Facade
	memory := dispatch.NewMemory()
	usingMemory := os.Getenv("DISPATCH_API_URL") == ""
	if usingMemory {
		facade = memory
		log.Println("🔌 [AGENT] Using in-memory dispatch facade")
	} else {
		facade = dispatch.NewClient(os.Getenv("DISPATCH_API_URL"), os.Getenv("DISPATCH_API_TOKEN"))
		log.Printf("🔌 [AGENT] Using dispatch backend at %s", os.Getenv("DISPATCH_API_URL"))
	}

	var route *models.Route
	if usingMemory {
		route = seedRoute(memory, driverID)
	} else {
		routeID := os.Getenv("AGENT_ROUTE_ID")
		if routeID == "" {
			log.Fatal("❌ [AGENT] AGENT_ROUTE_ID is required when DISPATCH_API_URL is set")
		}
		var err error
		route, err = facade.GetRoute(context.Background(), routeID)
		if err != nil {
			log.Fatalf("❌ [AGENT] Could not load route %s: %v", routeID, err)
		}
	}

	collector := metrics.NewCollector()
	tracker := tracking.NewManager(facade, logPublisher{}, collector)
	svc := driver.NewService(facade, tracker, nil, collector)

	ctx := context.Background()

	route, err := svc.StartRoute(ctx, driverID, route.ID, true)
	if err != nil {
		log.Fatalf("❌ [AGENT] Failed to start route: %v", err)
	}
	log.Printf("✅ [AGENT] Route started: %s (%s)", route.Name, route.ID)

	// Walk the route: stream jittered fixes around each stop, then check in
	for i, stop := range route.Stops {
		name := stop.ID
		if stop.EmployeeName != nil {
			name = *stop.EmployeeName
		}
		log.Printf("🧭 [AGENT] Driving to stop %d/%d: %s", i+1, len(route.Stops), name)

		deadline := time.Now().Add(dwell)
		for time.Now().Before(deadline) {
			lat, lng := jitter(stop.Latitude, stop.Longitude, 40)
			accuracy := 5 + rand.Float64()*20
			tracker.Feed(driverID, tracking.Sample{
				Latitude:   lat,
				Longitude:  lng,
				Accuracy:   &accuracy,
				RecordedAt: time.Now(),
			})
			time.Sleep(tick)
		}

		route, err = svc.CheckinStop(ctx, driverID, route.ID, stop.ID, false)
		if err != nil {
			log.Fatalf("❌ [AGENT] Checkin failed at stop %s: %v", stop.ID, err)
		}
		log.Printf("✅ [AGENT] Stop checked in: %s (%d/%d done)", name, route.CompletedStops(), len(route.Stops))
	}

	route, err = svc.CompleteRoute(ctx, driverID, route.ID)
	if err != nil {
		log.Fatalf("❌ [AGENT] Failed to complete route: %v", err)
	}
	log.Printf("🏁 [AGENT] Route completed: %s, %d%% of stops done", route.ID, int(route.CompletionPercentage()*100))

	if usingMemory {
		log.Printf("📊 [AGENT] Location pushes relayed to dispatch: %d", len(memory.Pushes()))
	}
}
