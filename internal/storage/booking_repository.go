package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/homestay-booking/backend/internal/storage/models"
)

const bookingColumns = `id, room_id, check_in_date, check_out_date, guest_name, email, phone,
	num_guests, booking_status, payment_status, booking_source, external_booking_id,
	special_requests, total_amount, created_at, updated_at`

// BookingRepository provides data access for bookings.
type BookingRepository struct {
	BaseRepository
}

// NewBookingRepository creates a new booking repository.
func NewBookingRepository(db *DB) *BookingRepository {
	return &BookingRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Create inserts a new booking, assigning its id and timestamps.
func (r *BookingRepository) Create(ctx context.Context, b *models.Booking) error {
	b.ID = GenerateID()
	b.CreatedAt = r.Now()
	b.UpdatedAt = b.CreatedAt

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO bookings (`+bookingColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		b.ID, b.RoomID, b.CheckInDate, b.CheckOutDate, b.GuestName, b.Email, b.Phone,
		b.NumGuests, b.BookingStatus, b.PaymentStatus, b.BookingSource, b.ExternalBookingID,
		b.SpecialRequests, b.TotalAmount, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting booking: %w", err)
	}

	return nil
}

// GetByID retrieves a booking by its ID.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	row := r.DB().QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)

	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying booking: %w", err)
	}

	return b, nil
}

// Update writes every mutable column of an existing booking.
func (r *BookingRepository) Update(ctx context.Context, b *models.Booking) error {
	b.UpdatedAt = r.Now()

	result, err := r.DB().ExecContext(ctx, `
		UPDATE bookings SET
			check_in_date = ?, check_out_date = ?, guest_name = ?, email = ?, phone = ?,
			num_guests = ?, booking_status = ?, payment_status = ?, external_booking_id = ?,
			special_requests = ?, total_amount = ?, updated_at = ?
		WHERE id = ?
	`,
		b.CheckInDate, b.CheckOutDate, b.GuestName, b.Email, b.Phone,
		b.NumGuests, b.BookingStatus, b.PaymentStatus, b.ExternalBookingID,
		b.SpecialRequests, b.TotalAmount, b.UpdatedAt, b.ID,
	)
	if err != nil {
		return fmt.Errorf("updating booking: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return fmt.Errorf("booking %s: %w", b.ID, ErrNotFound)
	}

	return nil
}

// List returns bookings matching the filter ordered by check-in date.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	var (
		where []string
		args  []any
	)
	if filter.RoomID != "" {
		where = append(where, "room_id = ?")
		args = append(args, filter.RoomID)
	}
	if filter.Source != "" {
		where = append(where, "booking_source = ?")
		args = append(args, filter.Source)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "booking_status IN ("+placeholders(len(filter.Statuses))+")")
		for _, s := range filter.Statuses {
			args = append(args, s)
		}
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY check_in_date, created_at"

	rows, err := r.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying bookings: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning booking: %w", err)
		}
		bookings = append(bookings, *b)
	}

	return bookings, rows.Err()
}

// DeleteByRoomAndSource removes every booking of a room from one source.
func (r *BookingRepository) DeleteByRoomAndSource(ctx context.Context, roomID, source string) (int64, error) {
	result, err := r.DB().ExecContext(ctx,
		"DELETE FROM bookings WHERE room_id = ? AND booking_source = ?", roomID, source)
	if err != nil {
		return 0, fmt.Errorf("deleting bookings: %w", err)
	}

	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var b models.Booking
	err := row.Scan(
		&b.ID, &b.RoomID, &b.CheckInDate, &b.CheckOutDate, &b.GuestName, &b.Email, &b.Phone,
		&b.NumGuests, &b.BookingStatus, &b.PaymentStatus, &b.BookingSource, &b.ExternalBookingID,
		&b.SpecialRequests, &b.TotalAmount, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
