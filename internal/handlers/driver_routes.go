package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"shuttleops-backend/internal/dispatch"
	"shuttleops-backend/internal/driver"
	"shuttleops-backend/internal/middleware"
	"shuttleops-backend/pkg/utils"
)

// GetDashboard returns the driver's home-screen view: grouped routes with the
// upcoming and completed buckets trimmed to display windows, the active route
// and the next route to surface.
func GetDashboard(svc *driver.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		dashboard, err := svc.Dashboard(r.Context(), user.UserID)
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Failed to load dashboard")
			return
		}

		utils.Success(w, dashboard)
	}
}

// GetRoutes returns all of the driver's routes grouped by effective status.
func GetRoutes(svc *driver.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		buckets, err := svc.Routes(r.Context(), user.UserID)
		if err != nil {
			if errors.Is(err, dispatch.ErrNotFound) {
				utils.RespondError(w, http.StatusNotFound, "Driver not found")
				return
			}
			utils.RespondError(w, http.StatusInternalServerError, "Failed to load routes")
			return
		}

		utils.Success(w, buckets)
	}
}

// GetRoute returns one route's detail. Virtual occurrence ids resolve to
// their underlying template route.
func GetRoute(svc *driver.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := middleware.GetUserFromContext(r); !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		route, err := svc.Route(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, dispatch.ErrNotFound) {
				utils.RespondError(w, http.StatusNotFound, "Route not found")
				return
			}
			utils.RespondError(w, http.StatusInternalServerError, "Failed to load route")
			return
		}

		utils.Success(w, route)
	}
}

// GetSchedule returns concrete routes plus synthesized recurring occurrences
// for the requested window. Defaults to the next 7 days.
func GetSchedule(svc *driver.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.GetUserFromContext(r)
		if !ok {
			utils.RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		now := time.Now()
		from := now
		to := now.AddDate(0, 0, 7)

		if v := r.URL.Query().Get("from"); v != "" {
			parsed, err := time.Parse("2006-01-02", v)
			if err != nil {
				utils.RespondError(w, http.StatusBadRequest, "Invalid 'from' date, expected YYYY-MM-DD")
				return
			}
			from = parsed
		}
		if v := r.URL.Query().Get("to"); v != "" {
			parsed, err := time.Parse("2006-01-02", v)
			if err != nil {
				utils.RespondError(w, http.StatusBadRequest, "Invalid 'to' date, expected YYYY-MM-DD")
				return
			}
			to = parsed
		}
		if to.Before(from) {
			utils.RespondError(w, http.StatusBadRequest, "'to' must not be before 'from'")
			return
		}

		routes, err := svc.Schedule(r.Context(), user.UserID, from, to)
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "Failed to load schedule")
			return
		}

		utils.Success(w, map[string]interface{}{
			"from":   from.Format("2006-01-02"),
			"to":     to.Format("2006-01-02"),
			"routes": routes,
		})
	}
}
