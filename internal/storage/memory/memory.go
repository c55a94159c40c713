// Package memory is an in-process storage backend. It backs tests and the
// demo mode, and counts writes so callers can assert idempotence.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/homestay-booking/backend/internal/storage"
	"github.com/homestay-booking/backend/internal/storage/models"
)

// Store holds bookings, blocked dates and settings in maps.
type Store struct {
	mu       sync.RWMutex
	bookings map[string]models.Booking
	blocked  map[string]models.BlockedDate
	settings map[string]string
	writes   int
	now      func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		bookings: make(map[string]models.Booking),
		blocked:  make(map[string]models.BlockedDate),
		settings: make(map[string]string),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AsStore exposes s through the storage.Store repositories.
func (s *Store) AsStore() *storage.Store {
	return &storage.Store{
		Bookings:     bookingRepo{s},
		BlockedDates: blockedRepo{s},
		Settings:     settingsRepo{s},
		Health:       s,
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Writes returns the number of booking and blocked date mutations so far.
// Settings writes are not counted.
func (s *Store) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

type bookingRepo struct{ s *Store }

func (r bookingRepo) Create(_ context.Context, b *models.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if ext := b.ExternalID(); ext != "" {
		for _, existing := range r.s.bookings {
			if existing.RoomID == b.RoomID && existing.BookingSource == b.BookingSource && existing.ExternalID() == ext {
				return fmt.Errorf("inserting booking: duplicate external id %s", ext)
			}
		}
	}

	b.ID = storage.GenerateID()
	b.CreatedAt = r.s.now()
	b.UpdatedAt = b.CreatedAt
	r.s.bookings[b.ID] = *b
	r.s.writes++
	return nil
}

func (r bookingRepo) GetByID(_ context.Context, id string) (*models.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, storage.ErrNotFound)
	}
	return &b, nil
}

func (r bookingRepo) Update(_ context.Context, b *models.Booking) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.bookings[b.ID]
	if !ok {
		return fmt.Errorf("booking %s: %w", b.ID, storage.ErrNotFound)
	}
	b.RoomID = existing.RoomID
	b.BookingSource = existing.BookingSource
	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = r.s.now()
	r.s.bookings[b.ID] = *b
	r.s.writes++
	return nil
}

func (r bookingRepo) List(_ context.Context, filter models.BookingFilter) ([]models.Booking, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []models.Booking
	for _, b := range r.s.bookings {
		if filter.Matches(&b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CheckInDate != out[j].CheckInDate {
			return out[i].CheckInDate < out[j].CheckInDate
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r bookingRepo) DeleteByRoomAndSource(_ context.Context, roomID, source string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, b := range r.s.bookings {
		if b.RoomID == roomID && b.BookingSource == source {
			delete(r.s.bookings, id)
			n++
		}
	}
	r.s.writes += int(n)
	return n, nil
}

type blockedRepo struct{ s *Store }

func (r blockedRepo) Create(_ context.Context, b *models.BlockedDate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if b.Source == models.BlockSourceAirbnbBlocked {
		for _, existing := range r.s.blocked {
			if existing.RoomID == b.RoomID && existing.Source == b.Source && existing.RangeKey() == b.RangeKey() {
				return fmt.Errorf("inserting blocked date: duplicate range %s", b.RangeKey())
			}
		}
	}

	b.ID = storage.GenerateID()
	b.CreatedAt = r.s.now()
	b.UpdatedAt = b.CreatedAt
	r.s.blocked[b.ID] = *b
	r.s.writes++
	return nil
}

func (r blockedRepo) GetByID(_ context.Context, id string) (*models.BlockedDate, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	b, ok := r.s.blocked[id]
	if !ok {
		return nil, fmt.Errorf("blocked date %s: %w", id, storage.ErrNotFound)
	}
	return &b, nil
}

func (r blockedRepo) Update(_ context.Context, b *models.BlockedDate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	existing, ok := r.s.blocked[b.ID]
	if !ok {
		return fmt.Errorf("blocked date %s: %w", b.ID, storage.ErrNotFound)
	}
	b.RoomID = existing.RoomID
	b.Source = existing.Source
	b.CreatedAt = existing.CreatedAt
	b.UpdatedAt = r.s.now()
	r.s.blocked[b.ID] = *b
	r.s.writes++
	return nil
}

func (r blockedRepo) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.blocked[id]; !ok {
		return fmt.Errorf("blocked date %s: %w", id, storage.ErrNotFound)
	}
	delete(r.s.blocked, id)
	r.s.writes++
	return nil
}

func (r blockedRepo) ListByRoom(_ context.Context, roomID string) ([]models.BlockedDate, error) {
	return r.list(func(b *models.BlockedDate) bool { return b.RoomID == roomID }), nil
}

func (r blockedRepo) ListByRoomAndSource(_ context.Context, roomID, source string) ([]models.BlockedDate, error) {
	return r.list(func(b *models.BlockedDate) bool { return b.RoomID == roomID && b.Source == source }), nil
}

func (r blockedRepo) DeleteByRoomAndSource(_ context.Context, roomID, source string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for id, b := range r.s.blocked {
		if b.RoomID == roomID && b.Source == source {
			delete(r.s.blocked, id)
			n++
		}
	}
	r.s.writes += int(n)
	return n, nil
}

func (r blockedRepo) list(match func(*models.BlockedDate) bool) []models.BlockedDate {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var out []models.BlockedDate
	for _, b := range r.s.blocked {
		if match(&b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartDate != out[j].StartDate {
			return out[i].StartDate < out[j].StartDate
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

type settingsRepo struct{ s *Store }

func (r settingsRepo) Get(_ context.Context, key string) (string, bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	v, ok := r.s.settings[key]
	return v, ok, nil
}

func (r settingsRepo) Set(_ context.Context, key, value string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.settings[key] = value
	return nil
}

func (r settingsRepo) Delete(_ context.Context, keys ...string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, k := range keys {
		delete(r.s.settings, k)
	}
	return nil
}

func (r settingsRepo) List(context.Context) (map[string]string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	out := make(map[string]string, len(r.s.settings))
	for k, v := range r.s.settings {
		out[k] = v
	}
	return out, nil
}
