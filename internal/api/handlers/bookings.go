package handlers

import (
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/mux"
	"github.com/homestay-booking/backend/internal/api/middleware"
	"github.com/homestay-booking/backend/internal/availability"
	"github.com/homestay-booking/backend/internal/storage"
	"github.com/homestay-booking/backend/internal/storage/models"
	"github.com/homestay-booking/backend/internal/websocket"
	"go.uber.org/zap"
)

// Booking request types

type CreateBookingRequest struct {
	RoomID          string  `json:"room_id" validate:"required"`
	CheckInDate     string  `json:"check_in_date" validate:"required,datetime=2006-01-02"`
	CheckOutDate    string  `json:"check_out_date" validate:"required,datetime=2006-01-02"`
	GuestName       string  `json:"guest_name" validate:"required,max=200"`
	Email           string  `json:"email" validate:"required,email"`
	Phone           string  `json:"phone" validate:"max=50"`
	NumGuests       int     `json:"num_guests" validate:"required,min=1,max=20"`
	SpecialRequests string  `json:"special_requests" validate:"max=2000"`
	TotalAmount     float64 `json:"total_amount" validate:"gte=0"`
}

type UpdateBookingRequest struct {
	BookingStatus   *string `json:"booking_status" validate:"omitempty,oneof=confirmed pending cancelled"`
	PaymentStatus   *string `json:"payment_status" validate:"omitempty,oneof=pending paid refunded"`
	GuestName       *string `json:"guest_name" validate:"omitempty,min=1,max=200"`
	Email           *string `json:"email" validate:"omitempty,email"`
	Phone           *string `json:"phone" validate:"omitempty,max=50"`
	SpecialRequests *string `json:"special_requests" validate:"omitempty,max=2000"`
}

// BookingConflictResponse is returned with 409 when dates are taken.
type BookingConflictResponse struct {
	Availability availability.Result `json:"availability"`
}

// ListBookings returns bookings filtered by room_id, source and status.
func ListBookings(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := models.BookingFilter{
			RoomID: q.Get("room_id"),
			Source: q.Get("source"),
		}
		if status := q.Get("status"); status != "" {
			filter.Statuses = strings.Split(status, ",")
		}

		bookings, err := store.Bookings.List(r.Context(), filter)
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to query bookings")
			return
		}
		if bookings == nil {
			bookings = []models.Booking{}
		}

		writeJSON(w, http.StatusOK, bookings)
	}
}

// GetBooking returns a single booking by ID.
func GetBooking(store *storage.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		booking, err := store.Bookings.GetByID(r.Context(), mux.Vars(r)["id"])
		if errors.Is(err, storage.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Booking not found")
			return
		}
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to get booking")
			return
		}

		writeJSON(w, http.StatusOK, booking)
	}
}

// CreateBooking records a direct website booking after an availability check.
func CreateBooking(store *storage.Store, checker *availability.Checker, events *websocket.EventBroadcaster, logger *zap.SugaredLogger) http.HandlerFunc {
	// Serializes check-then-insert within this process.
	var mu sync.Mutex

	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if !decodeBody(w, r, &req) {
			return
		}

		ctx := r.Context()
		mu.Lock()
		defer mu.Unlock()

		result, err := checker.Check(ctx, req.RoomID, req.CheckInDate, req.CheckOutDate)
		if err != nil {
			logger.Errorw("availability check failed", "room_id", req.RoomID, "error", err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to check availability")
			return
		}
		if result.Reason == availability.ReasonInvalidDateRange {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, "Check-out must be after check-in")
			return
		}
		if !result.Available {
			middleware.WriteErrorWithDetails(w, http.StatusConflict, middleware.ErrConflict,
				"Room is not available for the selected dates", BookingConflictResponse{Availability: result})
			return
		}

		booking := models.Booking{
			RoomID:          req.RoomID,
			CheckInDate:     req.CheckInDate,
			CheckOutDate:    req.CheckOutDate,
			GuestName:       strings.TrimSpace(req.GuestName),
			Email:           req.Email,
			Phone:           req.Phone,
			NumGuests:       req.NumGuests,
			BookingStatus:   models.BookingStatusPending,
			PaymentStatus:   models.PaymentStatusPending,
			BookingSource:   models.BookingSourceWebsite,
			SpecialRequests: req.SpecialRequests,
			TotalAmount:     req.TotalAmount,
		}
		if err := store.Bookings.Create(ctx, &booking); err != nil {
			logger.Errorw("creating booking failed", "room_id", req.RoomID, "error", err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to create booking")
			return
		}

		if result.Degraded {
			logger.Warnw("booking accepted without airbnb data", "booking_id", booking.ID, "room_id", booking.RoomID)
		}
		dataChanged(events, booking.RoomID, websocket.EntityBookings)
		writeJSON(w, http.StatusCreated, booking)
	}
}

// UpdateBooking changes status, payment or contact details of a website
// booking. Airbnb bookings are owned by calendar sync and cannot be edited.
func UpdateBooking(store *storage.Store, checker *availability.Checker, events *websocket.EventBroadcaster) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		var req UpdateBookingRequest
		if !decodeBody(w, r, &req) {
			return
		}

		booking, err := store.Bookings.GetByID(ctx, mux.Vars(r)["id"])
		if errors.Is(err, storage.ErrNotFound) {
			middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Booking not found")
			return
		}
		if err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to get booking")
			return
		}
		if booking.BookingSource == models.BookingSourceAirbnb {
			middleware.WriteError(w, http.StatusConflict, middleware.ErrConflict, "Airbnb bookings are managed by calendar sync")
			return
		}

		wasActive := booking.IsActive()
		if req.BookingStatus != nil {
			booking.BookingStatus = *req.BookingStatus
		}
		if req.PaymentStatus != nil {
			booking.PaymentStatus = *req.PaymentStatus
		}
		if req.GuestName != nil {
			booking.GuestName = strings.TrimSpace(*req.GuestName)
		}
		if req.Email != nil {
			booking.Email = *req.Email
		}
		if req.Phone != nil {
			booking.Phone = *req.Phone
		}
		if req.SpecialRequests != nil {
			booking.SpecialRequests = *req.SpecialRequests
		}

		// Reactivating a cancelled booking must not double-book the room.
		if !wasActive && booking.IsActive() {
			result, err := checker.Check(ctx, booking.RoomID, booking.CheckInDate, booking.CheckOutDate)
			if err != nil {
				middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to check availability")
				return
			}
			if !result.Available {
				middleware.WriteErrorWithDetails(w, http.StatusConflict, middleware.ErrConflict,
					"Room is no longer available for these dates", BookingConflictResponse{Availability: result})
				return
			}
		}

		if err := store.Bookings.Update(ctx, booking); err != nil {
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to update booking")
			return
		}

		dataChanged(events, booking.RoomID, websocket.EntityBookings)
		writeJSON(w, http.StatusOK, booking)
	}
}
