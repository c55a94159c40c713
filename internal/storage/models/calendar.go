// Package models contains the domain models for the application.
package models

import (
	"sort"
	"strings"
	"time"
)

// CalendarEvent is a VEVENT decoded from an upstream iCal feed.
// It only lives for the duration of a sync pass.
type CalendarEvent struct {
	UID         string `json:"uid"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	StartDate   string `json:"start_date"`
	EndDate     string `json:"end_date"`
	Status      string `json:"status,omitempty"`
}

// SyncConfiguration describes how one room's external calendar is synced.
type SyncConfiguration struct {
	RoomID      string `json:"room_id"`
	CalendarURL string `json:"calendar_url"`
	Platform    string `json:"platform"`
	SyncEnabled bool   `json:"sync_enabled"`
	LastSync    string `json:"last_sync,omitempty"`
}

// PlatformAirbnb is the only platform currently synced.
const PlatformAirbnb = "airbnb"

// Settings keys in calendar_settings.
const (
	roomSettingPrefix = "airbnb_room_"
	lastSyncSuffix    = "_last_sync"
	enabledSuffix     = "_enabled"

	// LastSyncErrorPrefix marks a failed sync in the _last_sync setting.
	LastSyncErrorPrefix = "ERROR:"
)

// RoomURLKey returns the settings key holding a room's calendar URL.
func RoomURLKey(roomID string) string {
	return roomSettingPrefix + roomID
}

// LastSyncKey returns the settings key holding a room's last sync outcome.
func LastSyncKey(roomID string) string {
	return roomSettingPrefix + roomID + lastSyncSuffix
}

// EnabledKey returns the settings key that can pause a room's sync.
func EnabledKey(roomID string) string {
	return roomSettingPrefix + roomID + enabledSuffix
}

// RoomSettingKeys returns every settings key that belongs to a room's
// integration.
func RoomSettingKeys(roomID string) []string {
	return []string{RoomURLKey(roomID), LastSyncKey(roomID), EnabledKey(roomID)}
}

// SyncConfigurationsFromSettings derives per-room sync configurations from
// the key-value settings table. Rooms without a non-empty URL are omitted.
func SyncConfigurationsFromSettings(settings map[string]string) []SyncConfiguration {
	var configs []SyncConfiguration
	for key, value := range settings {
		if !strings.HasPrefix(key, roomSettingPrefix) ||
			strings.HasSuffix(key, lastSyncSuffix) ||
			strings.HasSuffix(key, enabledSuffix) {
			continue
		}
		roomID := strings.TrimPrefix(key, roomSettingPrefix)
		url := strings.TrimSpace(value)
		if roomID == "" || url == "" {
			continue
		}
		configs = append(configs, SyncConfiguration{
			RoomID:      roomID,
			CalendarURL: url,
			Platform:    PlatformAirbnb,
			SyncEnabled: !strings.EqualFold(strings.TrimSpace(settings[EnabledKey(roomID)]), "false"),
			LastSync:    settings[LastSyncKey(roomID)],
		})
	}

	sort.Slice(configs, func(i, j int) bool {
		return configs[i].RoomID < configs[j].RoomID
	})
	return configs
}

// SyncResult contains the results of one room's sync pass.
type SyncResult struct {
	RoomID            string            `json:"room_id"`
	EventsFound       int               `json:"events_found"`
	BookingEvents     int               `json:"booking_events"`
	BlockedEvents     int               `json:"blocked_events"`
	BookingsCreated   int               `json:"bookings_created"`
	BookingsUpdated   int               `json:"bookings_updated"`
	BookingsCancelled int               `json:"bookings_cancelled"`
	BlocksCreated     int               `json:"blocks_created"`
	BlocksUpdated     int               `json:"blocks_updated"`
	BlocksDeleted     int               `json:"blocks_deleted"`
	WriteErrors       int               `json:"write_errors"`
	Conflicts         []BookingConflict `json:"conflicts,omitempty"`
	Error             error             `json:"-"`
	SyncedAt          time.Time         `json:"synced_at"`
}

// Writes returns the number of rows the pass inserted, updated or deleted.
func (r *SyncResult) Writes() int {
	return r.BookingsCreated + r.BookingsUpdated + r.BookingsCancelled +
		r.BlocksCreated + r.BlocksUpdated + r.BlocksDeleted
}
