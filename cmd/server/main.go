package main

import (
	"log"
	"net/http"
	"os"

	"shuttleops-backend/internal/database"
	"shuttleops-backend/internal/dispatch"
	"shuttleops-backend/internal/driver"
	"shuttleops-backend/internal/handlers"
	"shuttleops-backend/internal/metrics"
	"shuttleops-backend/internal/middleware"
	"shuttleops-backend/internal/services"
	"shuttleops-backend/internal/tracking"
	"shuttleops-backend/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
)

func main() {
	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Println("🚀 SHUTTLEOPS DRIVER GATEWAY STARTING")
	log.Println("═══════════════════════════════════════════════════════════════════")

	// Load .env file
	log.Println("📂 Loading environment variables...")
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  Warning: .env file not found, using environment variables from system")
	} else {
		log.Println("✅ .env file loaded successfully")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("❌ FATAL ERROR: DATABASE_URL environment variable is required")
	}

	db, err := database.Connect(dbURL)
	if err != nil {
		log.Fatalf("❌ FATAL ERROR: Database connection failed: %v", err)
	}
	defer db.Close()

	log.Println("🔄 Running database migrations...")
	if err := database.Migrate(db); err != nil {
		log.Fatalf("❌ FATAL ERROR: Database migrations failed: %v", err)
	}

	log.Println("🌱 Seeding database with initial data...")
	if err := database.SeedUsers(db); err != nil {
		log.Fatalf("❌ FATAL ERROR: User seeding failed: %v", err)
	}

	// Dispatch backend client: the gateway owns no route state of its own
	dispatchURL := os.Getenv("DISPATCH_API_URL")
	if dispatchURL == "" {
		log.Fatal("❌ FATAL ERROR: DISPATCH_API_URL environment variable is required")
	}
	facade := dispatch.NewClient(dispatchURL, os.Getenv("DISPATCH_API_TOKEN"))
	log.Printf("✅ Dispatch backend configured: %s", dispatchURL)

	// Initialize Firebase Cloud Messaging
	// Supports both file path and base64-encoded credentials (for Railway/cloud deployments)
	var fcmService *services.FCMService
	fcmCredsBase64 := os.Getenv("FIREBASE_CREDENTIALS_BASE64")

	if fcmCredsBase64 != "" {
		fcmService, err = services.NewFCMServiceFromBase64(fcmCredsBase64)
		if err != nil {
			log.Printf("⚠️  Failed to initialize FCM from base64: %v (push notifications disabled)", err)
			fcmService = nil
		} else {
			log.Println("✅ Firebase Cloud Messaging initialized from base64 credentials")
		}
	} else {
		fcmCredentialsFile := os.Getenv("FIREBASE_CREDENTIALS_FILE")
		if fcmCredentialsFile == "" {
			fcmCredentialsFile = "./firebase-service-account.json"
		}

		fcmService, err = services.NewFCMService(fcmCredentialsFile)
		if err != nil {
			log.Printf("⚠️  Failed to initialize FCM from file: %v (push notifications disabled)", err)
			fcmService = nil
		} else {
			log.Println("✅ Firebase Cloud Messaging initialized from file")
		}
	}

	// Initialize WebSocket hub
	wsHub := websocket.NewHub()
	go wsHub.Run()
	log.Println("✅ WebSocket hub started")

	// Tracking: sessions relay due fixes to dispatch and fan the rest out to
	// dispatcher dashboards over the hub, with the DB as fallback
	collector := metrics.NewCollector()
	publisher := websocket.NewLocationPublisher(wsHub, db)
	tracker := tracking.NewManager(facade, publisher, collector)
	log.Println("✅ Tracking manager started")

	// Dispatchers get route_status_update frames even when FCM is disabled.
	notifier := services.NewRouteNotifier(db, fcmService, wsHub)
	driverService := driver.NewService(facade, tracker, notifier, collector)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// Prometheus metrics
	r.Handle("/metrics", collector.Handler())

	// Authentication routes (no auth required)
	r.Post("/api/auth/login", handlers.Login(db))

	// WebSocket endpoint (authentication handled in handler via query param)
	r.Get("/ws", websocket.HandleWebSocket(wsHub, db, tracker))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Driver endpoints (require authentication)
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth)
			r.Use(middleware.RequireRole("driver"))

			// Route views
			r.Get("/driver/dashboard", handlers.GetDashboard(driverService))
			r.Get("/driver/routes", handlers.GetRoutes(driverService))
			r.Get("/driver/routes/{id}", handlers.GetRoute(driverService))
			r.Get("/driver/schedule", handlers.GetSchedule(driverService))

			// Route transitions and stop check-ins
			r.Post("/driver/routes/{id}/start", handlers.StartRoute(driverService))
			r.Post("/driver/routes/{id}/complete", handlers.CompleteRoute(driverService))
			r.Post("/driver/routes/{id}/stops/{stopId}/checkin", handlers.CheckinStop(driverService))

			// Location fallback (websocket is the primary channel)
			r.Post("/driver/location", handlers.PostLocation(db, tracker))
			r.Get("/driver/location", handlers.GetCurrentLocation(db))
			r.Get("/driver/status", handlers.GetStatus(db, tracker))

			// FCM token registration
			r.Post("/driver/fcm-token", handlers.RegisterFCMToken(db))
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
		log.Printf("⚠️  PORT not set, using default: %s", port)
	}

	log.Println("═══════════════════════════════════════════════════════════════════")
	log.Println("✅ ALL INITIALIZATION COMPLETE")
	log.Printf("🚀 Server starting on http://localhost:%s", port)
	log.Println("🔌 Ready to accept requests!")
	log.Println("═══════════════════════════════════════════════════════════════════")

	if err := http.ListenAndServe(":"+port, r); err != nil {
		log.Fatalf("❌ FATAL ERROR: Server failed to start: %v", err)
	}
}
