package models

import (
	"time"
)

// BlockedDate marks the range [start_date, end_date) of a room unavailable.
type BlockedDate struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"room_id"`
	StartDate string    `json:"start_date"`
	EndDate   string    `json:"end_date"`
	Reason    string    `json:"reason"`
	Notes     string    `json:"notes"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Blocked date sources. Manual blocks belong to admins and are never removed
// by sync; airbnb_blocked rows are owned by the sync process.
const (
	BlockSourceManual        = "manual"
	BlockSourceAirbnbBlocked = "airbnb_blocked"
)

// RangeKey identifies a blocked range within a room.
func (b *BlockedDate) RangeKey() string {
	return b.StartDate + "|" + b.EndDate
}
