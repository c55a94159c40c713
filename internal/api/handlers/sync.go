package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/homestay-booking/backend/internal/api/middleware"
	"github.com/homestay-booking/backend/internal/availability"
	"github.com/homestay-booking/backend/internal/calendar"
	"github.com/homestay-booking/backend/internal/storage"
	"github.com/homestay-booking/backend/internal/storage/models"
	"github.com/homestay-booking/backend/internal/websocket"
	"go.uber.org/zap"
)

type UnblockRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date" validate:"required,datetime=2006-01-02"`
}

// UnblockResponse reports the manual blocks removed and the follow-up sync.
type UnblockResponse struct {
	RoomID        string             `json:"room_id"`
	RemovedBlocks int                `json:"removed_blocks"`
	Sync          *models.SyncResult `json:"sync,omitempty"`
	SyncError     string             `json:"sync_error,omitempty"`
}

// SyncStatusResponse combines scheduler state with per-room configuration.
type SyncStatusResponse struct {
	Scheduler    calendar.SchedulerStatus   `json:"scheduler"`
	Integrations []models.SyncConfiguration `json:"integrations"`
}

// SyncRoom force-syncs one room and returns once reconciliation is done.
func SyncRoom(scheduler *calendar.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := mux.Vars(r)["roomID"]

		result, err := scheduler.ForceSync(r.Context(), roomID)
		if errors.Is(err, calendar.ErrRoomNotConfigured) {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Room has no calendar integration")
			return
		}
		if err != nil {
			middleware.WriteErrorWithDetails(w, http.StatusBadGateway, middleware.ErrUpstream, err.Error(), result)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// SyncAll runs a full pass over every enabled room.
func SyncAll(scheduler *calendar.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pass, err := scheduler.SyncAll(r.Context())
		if errors.Is(err, calendar.ErrSyncInProgress) {
			middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "A calendar sync is already running")
			return
		}
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to run calendar sync")
			return
		}

		writeJSON(w, http.StatusOK, pass)
	}
}

// SyncStatus returns the scheduler state and every room's last sync outcome.
func SyncStatus(scheduler *calendar.Scheduler, syncService *calendar.SyncService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		configs, err := syncService.ConfiguredRooms(r.Context())
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query integrations")
			return
		}
		if configs == nil {
			configs = []models.SyncConfiguration{}
		}

		writeJSON(w, http.StatusOK, SyncStatusResponse{
			Scheduler:    scheduler.Status(),
			Integrations: configs,
		})
	}
}

// QuickUnblock deletes the room's manual blocks overlapping the range and
// then force-syncs, so any remaining Airbnb blocks reflect the live feed.
func QuickUnblock(store *storage.Store, scheduler *calendar.Scheduler, events *websocket.EventBroadcaster, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		roomID := mux.Vars(r)["roomID"]

		var req UnblockRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.StartDate >= req.EndDate {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "End date must be after start date")
			return
		}

		manual, err := store.BlockedDates.ListByRoomAndSource(ctx, roomID, models.BlockSourceManual)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query blocked dates")
			return
		}

		resp := UnblockResponse{RoomID: roomID}
		for _, b := range manual {
			if !availability.Overlaps(req.StartDate, req.EndDate, b.StartDate, b.EndDate) {
				continue
			}
			if err := store.BlockedDates.Delete(ctx, b.ID); err != nil {
				logger.Errorw("deleting manual block failed", "room_id", roomID, "block_id", b.ID, "error", err)
				middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to delete blocked date")
				return
			}
			resp.RemovedBlocks++
		}
		if resp.RemovedBlocks > 0 {
			dataChanged(events, roomID, websocket.EntityBlockedDates)
		}

		result, err := scheduler.ForceSync(ctx, roomID)
		switch {
		case errors.Is(err, calendar.ErrRoomNotConfigured):
		case err != nil:
			resp.SyncError = err.Error()
		default:
			resp.Sync = result
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
