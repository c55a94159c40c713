package models

import (
	"time"
)

// Booking is a reservation of a room for a run of nights.
// CheckInDate and CheckOutDate are calendar dates (YYYY-MM-DD) forming the
// closed-open range [check_in, check_out).
type Booking struct {
	ID                string    `json:"id"`
	RoomID            string    `json:"room_id"`
	CheckInDate       string    `json:"check_in_date"`
	CheckOutDate      string    `json:"check_out_date"`
	GuestName         string    `json:"guest_name"`
	Email             string    `json:"email"`
	Phone             string    `json:"phone"`
	NumGuests         int       `json:"num_guests"`
	BookingStatus     string    `json:"booking_status"`
	PaymentStatus     string    `json:"payment_status"`
	BookingSource     string    `json:"booking_source"`
	ExternalBookingID *string   `json:"external_booking_id,omitempty"`
	SpecialRequests   string    `json:"special_requests"`
	TotalAmount       float64   `json:"total_amount"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// Booking status constants
const (
	BookingStatusConfirmed = "confirmed"
	BookingStatusPending   = "pending"
	BookingStatusCancelled = "cancelled"
)

// Payment status constants
const (
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusRefunded = "refunded"
)

// Booking source constants
const (
	BookingSourceWebsite = "website"
	BookingSourceAirbnb  = "airbnb"
)

// ActiveBookingStatuses are the statuses that hold a room.
var ActiveBookingStatuses = []string{BookingStatusConfirmed, BookingStatusPending}

// IsActive reports whether the booking occupies its dates.
func (b *Booking) IsActive() bool {
	return b.BookingStatus == BookingStatusConfirmed || b.BookingStatus == BookingStatusPending
}

// ExternalID returns the external booking id or an empty string.
func (b *Booking) ExternalID() string {
	if b.ExternalBookingID == nil {
		return ""
	}
	return *b.ExternalBookingID
}

// BookingFilter narrows a booking listing. Empty fields match everything.
type BookingFilter struct {
	RoomID   string
	Source   string
	Statuses []string
}

// Matches reports whether b satisfies the filter.
func (f BookingFilter) Matches(b *Booking) bool {
	if f.RoomID != "" && b.RoomID != f.RoomID {
		return false
	}
	if f.Source != "" && b.BookingSource != f.Source {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if b.BookingStatus == s {
			return true
		}
	}
	return false
}

// BookingConflict describes two active bookings of the same room whose
// date ranges overlap.
type BookingConflict struct {
	RoomID       string `json:"room_id"`
	BookingID    string `json:"booking_id"`
	OtherID      string `json:"conflicting_booking_id"`
	OverlapStart string `json:"overlap_start"`
	OverlapEnd   string `json:"overlap_end"`
}
