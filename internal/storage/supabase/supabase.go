// Package supabase stores bookings, blocked dates and calendar settings in a
// hosted Postgres database through its PostgREST interface.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/homestay-booking/backend/internal/storage"
	"github.com/homestay-booking/backend/internal/storage/models"
	"github.com/supabase-community/postgrest-go"
	supa "github.com/supabase-community/supabase-go"
)

const (
	tableBookings     = "bookings"
	tableBlockedDates = "blocked_dates"
	tableSettings     = "calendar_settings"

	returnRepresentation = "representation"
)

// postgrest-go orders descending unless told otherwise.
var ascending = &postgrest.OrderOpts{Ascending: true}

// NewClient connects to a Supabase project with the service role key.
func NewClient(url, serviceKey string) (*supa.Client, error) {
	client, err := supa.NewClient(url, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating supabase client: %w", err)
	}
	return client, nil
}

// NewStore returns the repositories backed by client.
func NewStore(client *supa.Client) *storage.Store {
	return &storage.Store{
		Bookings:     &BookingRepository{client: client},
		BlockedDates: &BlockedDateRepository{client: client},
		Settings:     &SettingsRepository{client: client},
		Health:       &healthCheck{client: client},
	}
}

// decode unmarshals a PostgREST response body into out.
func decode(data []byte, out any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

type healthCheck struct {
	client *supa.Client
}

// Ping issues a one-row read against the settings table.
func (h *healthCheck) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := h.client.From(tableSettings).Select("key", "", false).Limit(1, "").Execute()
	return err
}

// BookingRepository provides data access for bookings.
type BookingRepository struct {
	client *supa.Client
}

// Create inserts a new booking.
func (r *BookingRepository) Create(ctx context.Context, b *models.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.ID = storage.GenerateID()
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt

	if _, _, err := r.client.From(tableBookings).Insert(b, false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("inserting booking: %w", err)
	}
	return nil
}

// GetByID retrieves a booking by its ID.
func (r *BookingRepository) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, _, err := r.client.From(tableBookings).Select("*", "", false).Eq("id", id).Execute()
	if err != nil {
		return nil, fmt.Errorf("querying booking: %w", err)
	}

	var bookings []models.Booking
	if err := decode(data, &bookings); err != nil {
		return nil, fmt.Errorf("decoding booking: %w", err)
	}
	if len(bookings) == 0 {
		return nil, fmt.Errorf("booking %s: %w", id, storage.ErrNotFound)
	}
	return &bookings[0], nil
}

// Update writes the mutable columns of an existing booking.
func (r *BookingRepository) Update(ctx context.Context, b *models.Booking) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.UpdatedAt = time.Now().UTC()

	changes := map[string]any{
		"check_in_date":       b.CheckInDate,
		"check_out_date":      b.CheckOutDate,
		"guest_name":          b.GuestName,
		"email":               b.Email,
		"phone":               b.Phone,
		"num_guests":          b.NumGuests,
		"booking_status":      b.BookingStatus,
		"payment_status":      b.PaymentStatus,
		"external_booking_id": b.ExternalBookingID,
		"special_requests":    b.SpecialRequests,
		"total_amount":        b.TotalAmount,
		"updated_at":          b.UpdatedAt,
	}

	data, _, err := r.client.From(tableBookings).Update(changes, returnRepresentation, "").Eq("id", b.ID).Execute()
	if err != nil {
		return fmt.Errorf("updating booking: %w", err)
	}

	var updated []models.Booking
	if err := decode(data, &updated); err != nil {
		return fmt.Errorf("decoding booking: %w", err)
	}
	if len(updated) == 0 {
		return fmt.Errorf("booking %s: %w", b.ID, storage.ErrNotFound)
	}
	return nil
}

// List returns bookings matching the filter ordered by check-in date.
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	query := r.client.From(tableBookings).Select("*", "", false)
	if filter.RoomID != "" {
		query = query.Eq("room_id", filter.RoomID)
	}
	if filter.Source != "" {
		query = query.Eq("booking_source", filter.Source)
	}
	if len(filter.Statuses) > 0 {
		query = query.In("booking_status", filter.Statuses)
	}

	data, _, err := query.Order("check_in_date", ascending).Execute()
	if err != nil {
		return nil, fmt.Errorf("querying bookings: %w", err)
	}

	var bookings []models.Booking
	if err := decode(data, &bookings); err != nil {
		return nil, fmt.Errorf("decoding bookings: %w", err)
	}
	return bookings, nil
}

// DeleteByRoomAndSource removes every booking of a room from one source.
func (r *BookingRepository) DeleteByRoomAndSource(ctx context.Context, roomID, source string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, _, err := r.client.From(tableBookings).Delete(returnRepresentation, "").
		Eq("room_id", roomID).
		Eq("booking_source", source).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("deleting bookings: %w", err)
	}

	var deleted []models.Booking
	if err := decode(data, &deleted); err != nil {
		return 0, fmt.Errorf("decoding deleted bookings: %w", err)
	}
	return int64(len(deleted)), nil
}

// BlockedDateRepository provides data access for blocked date ranges.
type BlockedDateRepository struct {
	client *supa.Client
}

// Create inserts a new blocked date range.
func (r *BlockedDateRepository) Create(ctx context.Context, b *models.BlockedDate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.ID = storage.GenerateID()
	b.CreatedAt = time.Now().UTC()
	b.UpdatedAt = b.CreatedAt

	if _, _, err := r.client.From(tableBlockedDates).Insert(b, false, "", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("inserting blocked date: %w", err)
	}
	return nil
}

// GetByID retrieves a blocked date by its ID.
func (r *BlockedDateRepository) GetByID(ctx context.Context, id string) (*models.BlockedDate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, _, err := r.client.From(tableBlockedDates).Select("*", "", false).Eq("id", id).Execute()
	if err != nil {
		return nil, fmt.Errorf("querying blocked date: %w", err)
	}

	var blocked []models.BlockedDate
	if err := decode(data, &blocked); err != nil {
		return nil, fmt.Errorf("decoding blocked date: %w", err)
	}
	if len(blocked) == 0 {
		return nil, fmt.Errorf("blocked date %s: %w", id, storage.ErrNotFound)
	}
	return &blocked[0], nil
}

// Update rewrites the range and text of an existing blocked date.
func (r *BlockedDateRepository) Update(ctx context.Context, b *models.BlockedDate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.UpdatedAt = time.Now().UTC()

	changes := map[string]any{
		"start_date": b.StartDate,
		"end_date":   b.EndDate,
		"reason":     b.Reason,
		"notes":      b.Notes,
		"updated_at": b.UpdatedAt,
	}

	data, _, err := r.client.From(tableBlockedDates).Update(changes, returnRepresentation, "").Eq("id", b.ID).Execute()
	if err != nil {
		return fmt.Errorf("updating blocked date: %w", err)
	}

	var updated []models.BlockedDate
	if err := decode(data, &updated); err != nil {
		return fmt.Errorf("decoding blocked date: %w", err)
	}
	if len(updated) == 0 {
		return fmt.Errorf("blocked date %s: %w", b.ID, storage.ErrNotFound)
	}
	return nil
}

// Delete removes a blocked date by ID.
func (r *BlockedDateRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, _, err := r.client.From(tableBlockedDates).Delete(returnRepresentation, "").Eq("id", id).Execute()
	if err != nil {
		return fmt.Errorf("deleting blocked date: %w", err)
	}

	var deleted []models.BlockedDate
	if err := decode(data, &deleted); err != nil {
		return fmt.Errorf("decoding deleted blocked date: %w", err)
	}
	if len(deleted) == 0 {
		return fmt.Errorf("blocked date %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// ListByRoom returns all blocked ranges of a room.
func (r *BlockedDateRepository) ListByRoom(ctx context.Context, roomID string) ([]models.BlockedDate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, _, err := r.client.From(tableBlockedDates).Select("*", "", false).
		Eq("room_id", roomID).
		Order("start_date", ascending).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("querying blocked dates: %w", err)
	}

	var blocked []models.BlockedDate
	if err := decode(data, &blocked); err != nil {
		return nil, fmt.Errorf("decoding blocked dates: %w", err)
	}
	return blocked, nil
}

// ListByRoomAndSource returns the blocked ranges of a room from one source.
func (r *BlockedDateRepository) ListByRoomAndSource(ctx context.Context, roomID, source string) ([]models.BlockedDate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, _, err := r.client.From(tableBlockedDates).Select("*", "", false).
		Eq("room_id", roomID).
		Eq("source", source).
		Order("start_date", ascending).
		Execute()
	if err != nil {
		return nil, fmt.Errorf("querying blocked dates: %w", err)
	}

	var blocked []models.BlockedDate
	if err := decode(data, &blocked); err != nil {
		return nil, fmt.Errorf("decoding blocked dates: %w", err)
	}
	return blocked, nil
}

// DeleteByRoomAndSource removes every blocked range of a room from one source.
func (r *BlockedDateRepository) DeleteByRoomAndSource(ctx context.Context, roomID, source string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, _, err := r.client.From(tableBlockedDates).Delete(returnRepresentation, "").
		Eq("room_id", roomID).
		Eq("source", source).
		Execute()
	if err != nil {
		return 0, fmt.Errorf("deleting blocked dates: %w", err)
	}

	var deleted []models.BlockedDate
	if err := decode(data, &deleted); err != nil {
		return 0, fmt.Errorf("decoding deleted blocked dates: %w", err)
	}
	return int64(len(deleted)), nil
}

// SettingsRepository provides access to the calendar_settings table.
type SettingsRepository struct {
	client *supa.Client
}

type settingRow struct {
	Key       string    `json:"key"`
	Value     string    `json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Get returns the value stored under key.
func (r *SettingsRepository) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	data, _, err := r.client.From(tableSettings).Select("key, value", "", false).Eq("key", key).Execute()
	if err != nil {
		return "", false, fmt.Errorf("querying setting %s: %w", key, err)
	}

	var rows []settingRow
	if err := decode(data, &rows); err != nil {
		return "", false, fmt.Errorf("decoding setting: %w", err)
	}
	if len(rows) == 0 {
		return "", false, nil
	}
	return rows[0].Value, true, nil
}

// Set upserts a setting.
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row := settingRow{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	if _, _, err := r.client.From(tableSettings).Insert(row, true, "key", "minimal", "").Execute(); err != nil {
		return fmt.Errorf("updating setting %s: %w", key, err)
	}
	return nil
}

// Delete removes the given keys. Missing keys are ignored.
func (r *SettingsRepository) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, _, err := r.client.From(tableSettings).Delete("minimal", "").In("key", keys).Execute(); err != nil {
		return fmt.Errorf("deleting settings: %w", err)
	}
	return nil
}

// List returns every setting.
func (r *SettingsRepository) List(ctx context.Context) (map[string]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, _, err := r.client.From(tableSettings).Select("key, value", "", false).Execute()
	if err != nil {
		return nil, fmt.Errorf("querying settings: %w", err)
	}

	var rows []settingRow
	if err := decode(data, &rows); err != nil {
		return nil, fmt.Errorf("decoding settings: %w", err)
	}

	settings := make(map[string]string, len(rows))
	for _, row := range rows {
		settings[row.Key] = row.Value
	}
	return settings, nil
}
