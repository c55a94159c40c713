package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/homestay-booking/backend/internal/api/middleware"
	"github.com/homestay-booking/backend/internal/calendar"
	"github.com/homestay-booking/backend/internal/storage"
	"github.com/homestay-booking/backend/internal/storage/models"
	"github.com/homestay-booking/backend/internal/websocket"
	"go.uber.org/zap"
)

type PutIntegrationRequest struct {
	CalendarURL string `json:"calendar_url" validate:"required,url"`
	Enabled     *bool  `json:"enabled"`
}

// RemoveIntegrationResponse reports what a cascade delete removed.
type RemoveIntegrationResponse struct {
	RoomID              string `json:"room_id"`
	BookingsDeleted     int64  `json:"bookings_deleted"`
	BlockedDatesDeleted int64  `json:"blocked_dates_deleted"`
}

// ListIntegrations returns the sync configuration of every room with a feed.
func ListIntegrations(syncService *calendar.SyncService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		configs, err := syncService.ConfiguredRooms(r.Context())
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query integrations")
			return
		}
		if configs == nil {
			configs = []models.SyncConfiguration{}
		}

		writeJSON(w, http.StatusOK, configs)
	}
}

// PutIntegration sets a room's Airbnb feed URL and sync switch.
func PutIntegration(store *storage.Store, syncService *calendar.SyncService, events *websocket.EventBroadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		roomID := mux.Vars(r)["roomID"]

		var req PutIntegrationRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if u, err := url.Parse(req.CalendarURL); err != nil || (u.Scheme != "https" && u.Scheme != "http") {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "calendar_url must be an http(s) URL")
			return
		}

		enabled := true
		if req.Enabled != nil {
			enabled = *req.Enabled
		}
		if err := syncService.ConfigureRoom(ctx, roomID, req.CalendarURL, enabled); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to save integration")
			return
		}

		cfg, err := storage.GetSyncConfiguration(ctx, store.Settings, roomID)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to read integration")
			return
		}

		dataChanged(events, roomID, websocket.EntityIntegrations)
		writeJSON(w, http.StatusOK, cfg)
	}
}

// DeleteIntegration removes a room's feed and every Airbnb-sourced row of
// the room.
func DeleteIntegration(store *storage.Store, syncService *calendar.SyncService, events *websocket.EventBroadcaster, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		roomID := mux.Vars(r)["roomID"]

		if _, err := storage.GetSyncConfiguration(ctx, store.Settings, roomID); errors.Is(err, storage.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Room has no calendar integration")
			return
		} else if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to read integration")
			return
		}

		bookings, blocks, err := syncService.RemoveIntegration(ctx, roomID)
		if err != nil {
			logger.Errorw("removing integration failed", "room_id", roomID, "error", err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to remove integration")
			return
		}

		dataChanged(events, roomID, websocket.EntityIntegrations, websocket.EntityBookings, websocket.EntityBlockedDates)
		writeJSON(w, http.StatusOK, RemoveIntegrationResponse{
			RoomID:              roomID,
			BookingsDeleted:     bookings,
			BlockedDatesDeleted: blocks,
		})
	}
}
