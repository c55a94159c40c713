package handlers

import (
	"net/http"
	"strings"

	"github.com/homestay-booking/backend/internal/api/middleware"
	"github.com/homestay-booking/backend/internal/availability"
	"github.com/homestay-booking/backend/internal/calendar"
	"github.com/homestay-booking/backend/internal/storage"
	"github.com/homestay-booking/backend/internal/storage/models"
	"github.com/homestay-booking/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := store.Health.Ping(r.Context()) == nil

		response := HealthResponse{Status: "healthy", DBConnected: dbConnected}
		status := http.StatusOK
		if !dbConnected {
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, status, response)
	}
}

// StatusResponse represents the system status response.
type StatusResponse struct {
	IntegrationsCount   int                      `json:"integrations_count"`
	FailingRooms        []string                 `json:"failing_rooms"`
	ActiveBookings      int                      `json:"active_bookings"`
	ConnectedClients    int                      `json:"connected_clients"`
	Scheduler           calendar.SchedulerStatus `json:"scheduler"`
	OverlappingBookings int                      `json:"overlapping_bookings"`
}

// Status returns a handler that provides system status information.
func Status(store *storage.Store, syncService *calendar.SyncService, scheduler *calendar.Scheduler, hub *websocket.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		configs, err := syncService.ConfiguredRooms(ctx)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query integrations")
			return
		}
		active, err := store.Bookings.List(ctx, models.BookingFilter{Statuses: models.ActiveBookingStatuses})
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query bookings")
			return
		}

		response := StatusResponse{
			IntegrationsCount:   len(configs),
			FailingRooms:        []string{},
			ActiveBookings:      len(active),
			ConnectedClients:    hub.ClientCount(),
			Scheduler:           scheduler.Status(),
			OverlappingBookings: len(availability.FindBookingConflicts(active)),
		}
		for _, cfg := range configs {
			if strings.HasPrefix(cfg.LastSync, models.LastSyncErrorPrefix) {
				response.FailingRooms = append(response.FailingRooms, cfg.RoomID)
			}
		}

		writeJSON(w, http.StatusOK, response)
	}
}
