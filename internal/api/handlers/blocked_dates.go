package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/homestay-booking/backend/internal/api/middleware"
	"github.com/homestay-booking/backend/internal/storage"
	"github.com/homestay-booking/backend/internal/storage/models"
	"github.com/homestay-booking/backend/internal/websocket"
)

type CreateBlockedDateRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
	Reason    string `json:"reason" validate:"required,max=200"`
	Notes     string `json:"notes" validate:"max=2000"`
}

// ListBlockedDates returns all blocked ranges of a room, manual and Airbnb.
func ListBlockedDates(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		blocked, err := store.BlockedDates.ListByRoom(r.Context(), mux.Vars(r)["roomID"])
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query blocked dates")
			return
		}
		if blocked == nil {
			blocked = []models.BlockedDate{}
		}

		writeJSON(w, http.StatusOK, blocked)
	}
}

// CreateBlockedDate adds a manual block to a room.
func CreateBlockedDate(store *storage.Store, events *websocket.EventBroadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBlockedDateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.StartDate >= req.EndDate {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "End date must be after start date")
			return
		}

		roomID := mux.Vars(r)["roomID"]
		block := models.BlockedDate{
			RoomID:    roomID,
			StartDate: req.StartDate,
			EndDate:   req.EndDate,
			Reason:    strings.TrimSpace(req.Reason),
			Notes:     req.Notes,
			Source:    models.BlockSourceManual,
		}
		if err := store.BlockedDates.Create(r.Context(), &block); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create blocked date")
			return
		}

		dataChanged(events, roomID, websocket.EntityBlockedDates)
		writeJSON(w, http.StatusCreated, block)
	}
}

// DeleteBlockedDate removes a manual block. Airbnb blocks can only be
// removed by syncing or by removing the room's integration.
func DeleteBlockedDate(store *storage.Store, events *websocket.EventBroadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		block, err := store.BlockedDates.GetByID(ctx, mux.Vars(r)["id"])
		if errors.Is(err, storage.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Blocked date not found")
			return
		}
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to get blocked date")
			return
		}
		if block.Source != models.BlockSourceManual {
			middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "Airbnb blocked dates are managed by calendar sync")
			return
		}

		if err := store.BlockedDates.Delete(ctx, block.ID); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to delete blocked date")
			return
		}

		dataChanged(events, block.RoomID, websocket.EntityBlockedDates)
		w.WriteHeader(http.StatusNoContent)
	}
}
