package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/homestay-booking/backend/internal/api/middleware"
	"github.com/homestay-booking/backend/internal/availability"
	"github.com/homestay-booking/backend/internal/storage"
	"github.com/homestay-booking/backend/internal/storage/models"
	"go.uber.org/zap"
)

// AvailabilityRecorder receives availability decisions.
type AvailabilityRecorder interface {
	AvailabilityChecked(reason string, degraded bool)
}

// AvailabilityResponse wraps a check result with the requested range.
type AvailabilityResponse struct {
	RoomID   string `json:"room_id"`
	CheckIn  string `json:"check_in"`
	CheckOut string `json:"check_out"`
	availability.Result
}

// RoomEventsResponse holds the persisted rows that occupy a room in a window.
type RoomEventsResponse struct {
	RoomID       string               `json:"room_id"`
	Bookings     []models.Booking     `json:"bookings"`
	BlockedDates []models.BlockedDate `json:"blocked_dates"`
}

// CheckAvailability answers whether a room is free for [check_in, check_out).
func CheckAvailability(checker *availability.Checker, recorder AvailabilityRecorder, logger *zap.SugaredLogger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := mux.Vars(r)["roomID"]
		checkIn := r.URL.Query().Get("check_in")
		checkOut := r.URL.Query().Get("check_out")
		if checkIn == "" || checkOut == "" {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "check_in and check_out are required")
			return
		}

		result, err := checker.Check(r.Context(), roomID, checkIn, checkOut)
		if errors.Is(err, availability.ErrInvalidDate) {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
			return
		}
		if err != nil {
			logger.Errorw("availability check failed", "room_id", roomID, "error", err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to check availability")
			return
		}

		if recorder != nil {
			recorder.AvailabilityChecked(string(result.Reason), result.Degraded)
		}
		writeJSON(w, http.StatusOK, AvailabilityResponse{
			RoomID:   roomID,
			CheckIn:  checkIn,
			CheckOut: checkOut,
			Result:   result,
		})
	}
}

// RoomEvents returns active bookings and blocked dates of a room that
// overlap the optional [from, to) window, for calendar rendering.
func RoomEvents(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		roomID := mux.Vars(r)["roomID"]
		from := r.URL.Query().Get("from")
		to := r.URL.Query().Get("to")

		for _, d := range []string{from, to} {
			if d == "" {
				continue
			}
			if err := availability.ValidateDate(d); err != nil {
				middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
				return
			}
		}

		bookings, err := store.Bookings.List(ctx, models.BookingFilter{
			RoomID:   roomID,
			Statuses: models.ActiveBookingStatuses,
		})
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query bookings")
			return
		}
		blocked, err := store.BlockedDates.ListByRoom(ctx, roomID)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query blocked dates")
			return
		}

		resp := RoomEventsResponse{
			RoomID:       roomID,
			Bookings:     []models.Booking{},
			BlockedDates: []models.BlockedDate{},
		}
		for _, b := range bookings {
			if inWindow(b.CheckInDate, b.CheckOutDate, from, to) {
				resp.Bookings = append(resp.Bookings, b)
			}
		}
		for _, b := range blocked {
			if inWindow(b.StartDate, b.EndDate, from, to) {
				resp.BlockedDates = append(resp.BlockedDates, b)
			}
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

// inWindow treats an empty bound as unbounded.
func inWindow(start, end, from, to string) bool {
	if from != "" && end <= from {
		return false
	}
	if to != "" && start >= to {
		return false
	}
	return true
}
