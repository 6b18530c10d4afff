package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"shuttleops-backend/internal/dispatch"
	"shuttleops-backend/internal/driver"
	"shuttleops-backend/internal/middleware"
	"shuttleops-backend/pkg/utils"
)

type StartRouteRequest struct {
	GPSAvailable *bool `json:"gps_available"`
}

type CheckinStopRequest struct {
	Skipped bool `json:"skipped"`
}

// StartRoute transitions a route to ACTIVE and opens tracking for the driver.
func StartRoute(svc *driver.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		routeID := chi.URLParam(r, "id")

		// Missing body means an older app build; assume GPS is present
		gpsAvailable := true
		var req StartRouteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.GPSAvailable != nil {
			gpsAvailable = *req.GPSAvailable
		}

		route, err := svc.StartRoute(r.Context(), user.UserID, routeID, gpsAvailable)
		if err != nil {
			respondRouteError(w, err)
			return
		}

		utils.Success(w, route)
	}
}

// CompleteRoute transitions a route to COMPLETED and tears down tracking.
func CompleteRoute(svc *driver.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		routeID := chi.URLParam(r, "id")

		route, err := svc.CompleteRoute(r.Context(), user.UserID, routeID)
		if err != nil {
			respondRouteError(w, err)
			return
		}

		utils.Success(w, route)
	}
}

// CheckinStop marks a stop completed or skipped and returns the refetched
// route so the client renders the dispatcher's state, not a local guess.
func CheckinStop(svc *driver.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		routeID := chi.URLParam(r, "id")
		stopID := chi.URLParam(r, "stopId")

		var req CheckinStopRequest
		if r.Body != nil {
			json.NewDecoder(r.Body).Decode(&req)
		}

		route, err := svc.CheckinStop(r.Context(), user.UserID, routeID, stopID, req.Skipped)
		if err != nil {
			respondRouteError(w, err)
			return
		}

		utils.Success(w, route)
	}
}

func respondRouteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dispatch.ErrNotFound):
		utils.RespondError(w, http.StatusNotFound, "Route not found")
	case strings.Contains(err.Error(), "placeholder"):
		utils.RespondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		utils.RespondError(w, http.StatusInternalServerError, err.Error())
	}
}
