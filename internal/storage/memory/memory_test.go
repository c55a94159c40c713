package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/homestay-booking/backend/internal/storage"
	"github.com/homestay-booking/backend/internal/storage/models"
)

func TestStoreCountsWrites(t *testing.T) {
	s := New()
	store := s.AsStore()
	ctx := context.Background()

	ext := "HMABCD1234"
	b := &models.Booking{RoomID: "room-1", CheckInDate: "2024-03-10", CheckOutDate: "2024-03-12", BookingSource: models.BookingSourceAirbnb, ExternalBookingID: &ext}
	if err := store.Bookings.Create(ctx, b); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := store.Bookings.Create(ctx, &models.Booking{RoomID: "room-1", BookingSource: models.BookingSourceAirbnb, ExternalBookingID: &ext}); err == nil {
		t.Error("duplicate external id accepted")
	}

	b.BookingSource = models.BookingSourceWebsite
	b.BookingStatus = models.BookingStatusCancelled
	if err := store.Bookings.Update(ctx, b); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if b.BookingSource != models.BookingSourceAirbnb {
		t.Errorf("Update changed booking source to %q", b.BookingSource)
	}

	if err := store.Settings.Set(ctx, "k", "v"); err != nil {
		t.Fatal(err)
	}

	if got := s.Writes(); got != 2 {
		t.Errorf("Writes() = %d, want 2", got)
	}
}

func TestStoreBlockedDates(t *testing.T) {
	store := New().AsStore()
	ctx := context.Background()

	airbnb := &models.BlockedDate{RoomID: "room-1", StartDate: "2024-04-01", EndDate: "2024-04-03", Source: models.BlockSourceAirbnbBlocked}
	manual := &models.BlockedDate{RoomID: "room-1", StartDate: "2024-04-01", EndDate: "2024-04-03", Source: models.BlockSourceManual}
	for _, b := range []*models.BlockedDate{airbnb, manual} {
		if err := store.BlockedDates.Create(ctx, b); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}
	dup := *airbnb
	if err := store.BlockedDates.Create(ctx, &dup); err == nil {
		t.Error("duplicate airbnb range accepted")
	}

	n, err := store.BlockedDates.DeleteByRoomAndSource(ctx, "room-1", models.BlockSourceAirbnbBlocked)
	if err != nil || n != 1 {
		t.Fatalf("DeleteByRoomAndSource = %d, %v", n, err)
	}
	if _, err := store.BlockedDates.GetByID(ctx, airbnb.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetByID(deleted) err = %v", err)
	}
	if err := store.BlockedDates.Delete(ctx, airbnb.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Delete(deleted) err = %v", err)
	}
	rows, _ := store.BlockedDates.ListByRoom(ctx, "room-1")
	if len(rows) != 1 || rows[0].ID != manual.ID {
		t.Errorf("remaining = %+v", rows)
	}
}
