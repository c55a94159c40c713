// Package availability answers whether a room can be booked for a date range.
package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/homestay-booking/backend/internal/storage"
	"github.com/homestay-booking/backend/internal/storage/models"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

// ErrInvalidDate is returned for dates that are not YYYY-MM-DD.
var ErrInvalidDate = errors.New("invalid date")

// Reason explains a Result.
type Reason string

// Result reasons. Conflicts are reported in this order of precedence.
const (
	ReasonAvailable              Reason = "available"
	ReasonInvalidDateRange       Reason = "invalid_date_range"
	ReasonWebsiteBookingConflict Reason = "website_booking_conflict"
	ReasonAirbnbBookingConflict  Reason = "airbnb_booking_conflict"
	ReasonBlockedDateConflict    Reason = "blocked_date_conflict"
	ReasonAirbnbCheckFailed      Reason = "airbnb_check_failed"
)

// Result is the outcome of an availability check.
type Result struct {
	Available     bool   `json:"available"`
	Reason        Reason `json:"reason"`
	ConflictID    string `json:"conflict_id,omitempty"`
	ConflictStart string `json:"conflict_start,omitempty"`
	ConflictEnd   string `json:"conflict_end,omitempty"`
	// Degraded is set when Airbnb-sourced rows could not be read and the
	// answer only reflects local data.
	Degraded bool `json:"degraded,omitempty"`
}

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Dates are YYYY-MM-DD, which order correctly as strings.
func Overlaps(aStart, aEnd, bStart, bEnd string) bool {
	return aStart < bEnd && aEnd > bStart
}

// ValidateDate checks that s is a YYYY-MM-DD calendar date.
func ValidateDate(s string) error {
	if _, err := time.Parse(dateLayout, s); err != nil {
		return fmt.Errorf("%w %q: want YYYY-MM-DD", ErrInvalidDate, s)
	}
	return nil
}

// Checker scans persisted bookings and blocked dates for overlaps.
type Checker struct {
	bookings storage.BookingStore
	blocked  storage.BlockedDateStore
	logger   *zap.SugaredLogger
}

// NewChecker creates an availability checker.
func NewChecker(bookings storage.BookingStore, blocked storage.BlockedDateStore, logger *zap.SugaredLogger) *Checker {
	return &Checker{bookings: bookings, blocked: blocked, logger: logger}
}

// Check reports whether roomID is free for the nights [checkIn, checkOut).
//
// Zero-night and reversed ranges are rejected before any lookup. Failures
// reading website bookings or manual blocks are returned as errors. Failures
// reading Airbnb-sourced rows fall back to an available answer marked
// ReasonAirbnbCheckFailed and Degraded.
func (c *Checker) Check(ctx context.Context, roomID, checkIn, checkOut string) (Result, error) {
	if err := ValidateDate(checkIn); err != nil {
		return Result{}, err
	}
	if err := ValidateDate(checkOut); err != nil {
		return Result{}, err
	}
	if checkIn >= checkOut {
		return Result{Available: false, Reason: ReasonInvalidDateRange}, nil
	}

	website, err := c.bookings.List(ctx, models.BookingFilter{
		RoomID:   roomID,
		Source:   models.BookingSourceWebsite,
		Statuses: models.ActiveBookingStatuses,
	})
	if err != nil {
		return Result{}, fmt.Errorf("listing website bookings: %w", err)
	}
	if r, ok := bookingConflict(website, checkIn, checkOut, ReasonWebsiteBookingConflict); ok {
		return r, nil
	}

	airbnbFailed := false
	airbnb, err := c.bookings.List(ctx, models.BookingFilter{
		RoomID:   roomID,
		Source:   models.BookingSourceAirbnb,
		Statuses: models.ActiveBookingStatuses,
	})
	if err != nil {
		airbnbFailed = true
		c.logger.Warnw("airbnb booking lookup failed", "room_id", roomID, "error", err)
	} else if r, ok := bookingConflict(airbnb, checkIn, checkOut, ReasonAirbnbBookingConflict); ok {
		return r, nil
	}

	manual, err := c.blocked.ListByRoomAndSource(ctx, roomID, models.BlockSourceManual)
	if err != nil {
		return Result{}, fmt.Errorf("listing blocked dates: %w", err)
	}
	if r, ok := blockedConflict(manual, checkIn, checkOut); ok {
		return r, nil
	}

	airbnbBlocks, err := c.blocked.ListByRoomAndSource(ctx, roomID, models.BlockSourceAirbnbBlocked)
	if err != nil {
		airbnbFailed = true
		c.logger.Warnw("airbnb blocked date lookup failed", "room_id", roomID, "error", err)
	} else if r, ok := blockedConflict(airbnbBlocks, checkIn, checkOut); ok {
		return r, nil
	}

	if airbnbFailed {
		return Result{Available: true, Reason: ReasonAirbnbCheckFailed, Degraded: true}, nil
	}
	return Result{Available: true, Reason: ReasonAvailable}, nil
}

func bookingConflict(bookings []models.Booking, checkIn, checkOut string, reason Reason) (Result, bool) {
	for _, b := range bookings {
		if !b.IsActive() {
			continue
		}
		if Overlaps(checkIn, checkOut, b.CheckInDate, b.CheckOutDate) {
			return Result{
				Reason:        reason,
				ConflictID:    b.ID,
				ConflictStart: b.CheckInDate,
				ConflictEnd:   b.CheckOutDate,
			}, true
		}
	}
	return Result{}, false
}

func blockedConflict(blocked []models.BlockedDate, checkIn, checkOut string) (Result, bool) {
	for _, b := range blocked {
		if Overlaps(checkIn, checkOut, b.StartDate, b.EndDate) {
			return Result{
				Reason:        ReasonBlockedDateConflict,
				ConflictID:    b.ID,
				ConflictStart: b.StartDate,
				ConflictEnd:   b.EndDate,
			}, true
		}
	}
	return Result{}, false
}

// FindBookingConflicts returns every pair of active bookings of the same room
// whose ranges overlap.
func FindBookingConflicts(bookings []models.Booking) []models.BookingConflict {
	active := make([]models.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.IsActive() {
			active = append(active, b)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		if active[i].RoomID != active[j].RoomID {
			return active[i].RoomID < active[j].RoomID
		}
		return active[i].CheckInDate < active[j].CheckInDate
	})

	var conflicts []models.BookingConflict
	for i := range active {
		for j := i + 1; j < len(active); j++ {
			a, b := active[i], active[j]
			// Sorted by check-in: once b starts after a ends, no later one overlaps a.
			if a.RoomID != b.RoomID || b.CheckInDate >= a.CheckOutDate {
				break
			}
			conflicts = append(conflicts, models.BookingConflict{
				RoomID:       a.RoomID,
				BookingID:    a.ID,
				OtherID:      b.ID,
				OverlapStart: max(a.CheckInDate, b.CheckInDate),
				OverlapEnd:   min(a.CheckOutDate, b.CheckOutDate),
			})
		}
	}
	return conflicts
}
