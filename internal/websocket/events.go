package websocket

import (
	"fmt"

	"github.com/homestay-booking/backend/internal/storage/models"
)

// Entities named in data.changed events.
const (
	EntityBookings     = "bookings"
	EntityBlockedDates = "blocked_dates"
	EntityIntegrations = "integrations"
)

// EventBroadcaster turns domain events into WebSocket messages. It satisfies
// calendar.Notifier.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// SyncCompleted sends calendar.sync_completed, followed by data.changed when
// the sync wrote anything.
func (b *EventBroadcaster) SyncCompleted(result models.SyncResult) {
	b.broadcast(NewMessage(TypeCalendarSyncCompleted, CalendarSyncPayload{
		RoomID:            result.RoomID,
		EventsFound:       result.EventsFound,
		BookingsCreated:   result.BookingsCreated,
		BookingsUpdated:   result.BookingsUpdated,
		BookingsCancelled: result.BookingsCancelled,
		BlocksCreated:     result.BlocksCreated,
		BlocksUpdated:     result.BlocksUpdated,
		BlocksDeleted:     result.BlocksDeleted,
		WriteErrors:       result.WriteErrors,
		SyncedAt:          result.SyncedAt,
	}))

	if result.Writes() > 0 {
		b.DataChanged(result.RoomID, EntityBookings, EntityBlockedDates)
	}
}

// SyncFailed sends calendar.sync_error.
func (b *EventBroadcaster) SyncFailed(roomID string, err error) {
	b.broadcast(NewMessage(TypeCalendarSyncError, CalendarSyncErrorPayload{
		RoomID:  roomID,
		Error:   "sync_error",
		Message: err.Error(),
	}))
}

// ConflictsDetected sends booking.conflict_detected plus a warning
// notification for the back-office.
func (b *EventBroadcaster) ConflictsDetected(roomID string, conflicts []models.BookingConflict) {
	b.broadcast(NewMessage(TypeBookingConflictDetected, BookingConflictPayload{
		RoomID:    roomID,
		Conflicts: conflicts,
	}))
	b.Notify("warning", "Overlapping bookings",
		fmt.Sprintf("Room %s has %d overlapping booking pair(s)", roomID, len(conflicts)))
}

// DataChanged asks clients to refetch the named collections.
func (b *EventBroadcaster) DataChanged(roomID string, entities ...string) {
	b.broadcast(NewMessage(TypeDataChanged, DataChangedPayload{
		RoomID:   roomID,
		Entities: entities,
	}))
}

// Notify sends a dismissible notification to all connected clients.
func (b *EventBroadcaster) Notify(level, title, message string) {
	b.broadcast(NewMessage(TypeNotification, NotificationPayload{
		Level:       level,
		Title:       title,
		Message:     message,
		Dismissible: true,
	}))
}

func (b *EventBroadcaster) broadcast(msg Message) {
	data, err := msg.JSON()
	if err != nil {
		b.hub.logger.Errorw("encoding websocket message failed", "type", msg.Type, "error", err)
		return
	}

	b.hub.Broadcast(data)
}
