package websocket

import (
	"encoding/json"
	"time"

	"github.com/homestay-booking/backend/internal/storage/models"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeCalendarSyncCompleted   MessageType = "calendar.sync_completed"
	TypeCalendarSyncError       MessageType = "calendar.sync_error"
	TypeBookingConflictDetected MessageType = "booking.conflict_detected"
	TypeDataChanged             MessageType = "data.changed"
	TypeNotification            MessageType = "notification"

	// Client -> Server command types
	TypePing MessageType = "ping"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// CalendarSyncPayload is the payload for calendar.sync_completed events.
type CalendarSyncPayload struct {
	RoomID            string    `json:"room_id"`
	EventsFound       int       `json:"events_found"`
	BookingsCreated   int       `json:"bookings_created"`
	BookingsUpdated   int       `json:"bookings_updated"`
	BookingsCancelled int       `json:"bookings_cancelled"`
	BlocksCreated     int       `json:"blocks_created"`
	BlocksUpdated     int       `json:"blocks_updated"`
	BlocksDeleted     int       `json:"blocks_deleted"`
	WriteErrors       int       `json:"write_errors"`
	SyncedAt          time.Time `json:"synced_at"`
}

// CalendarSyncErrorPayload is the payload for calendar.sync_error events.
type CalendarSyncErrorPayload struct {
	RoomID  string `json:"room_id"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// BookingConflictPayload is the payload for booking.conflict_detected events.
type BookingConflictPayload struct {
	RoomID    string                   `json:"room_id"`
	Conflicts []models.BookingConflict `json:"conflicts"`
}

// DataChangedPayload tells clients which collections to refetch.
type DataChangedPayload struct {
	RoomID   string   `json:"room_id,omitempty"`
	Entities []string `json:"entities"`
}

// NotificationPayload is the payload for notification events.
type NotificationPayload struct {
	Level       string `json:"level"` // info, warning, error, success
	Title       string `json:"title"`
	Message     string `json:"message"`
	Dismissible bool   `json:"dismissible"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
