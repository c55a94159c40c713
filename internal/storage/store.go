package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/homestay-booking/backend/internal/storage/models"
)

// ErrNotFound is returned when a row addressed by id does not exist.
var ErrNotFound = errors.New("not found")

// BookingStore persists bookings.
type BookingStore interface {
	Create(ctx context.Context, b *models.Booking) error
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	Update(ctx context.Context, b *models.Booking) error
	List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, error)
	DeleteByRoomAndSource(ctx context.Context, roomID, source string) (int64, error)
}

// BlockedDateStore persists blocked date ranges.
type BlockedDateStore interface {
	Create(ctx context.Context, b *models.BlockedDate) error
	GetByID(ctx context.Context, id string) (*models.BlockedDate, error)
	Update(ctx context.Context, b *models.BlockedDate) error
	Delete(ctx context.Context, id string) error
	ListByRoom(ctx context.Context, roomID string) ([]models.BlockedDate, error)
	ListByRoomAndSource(ctx context.Context, roomID, source string) ([]models.BlockedDate, error)
	DeleteByRoomAndSource(ctx context.Context, roomID, source string) (int64, error)
}

// SettingsStore is the calendar_settings key-value table.
type SettingsStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, keys ...string) error
	List(ctx context.Context) (map[string]string, error)
}

// Pinger reports whether the backing database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Store groups the repositories of one persistence backend.
type Store struct {
	Bookings     BookingStore
	BlockedDates BlockedDateStore
	Settings     SettingsStore
	Health       Pinger
}

// ListSyncConfigurations returns the sync configuration of every room that
// has a calendar URL.
func ListSyncConfigurations(ctx context.Context, settings SettingsStore) ([]models.SyncConfiguration, error) {
	all, err := settings.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing calendar settings: %w", err)
	}
	return models.SyncConfigurationsFromSettings(all), nil
}

// GetSyncConfiguration returns a single room's sync configuration, or
// ErrNotFound when the room has no calendar URL.
func GetSyncConfiguration(ctx context.Context, settings SettingsStore, roomID string) (*models.SyncConfiguration, error) {
	configs, err := ListSyncConfigurations(ctx, settings)
	if err != nil {
		return nil, err
	}
	for i := range configs {
		if configs[i].RoomID == roomID {
			return &configs[i], nil
		}
	}
	return nil, fmt.Errorf("sync configuration for room %s: %w", roomID, ErrNotFound)
}
