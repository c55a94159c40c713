package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/homestay-booking/backend/internal/availability"
	"github.com/homestay-booking/backend/internal/storage"
	"github.com/homestay-booking/backend/internal/storage/models"
	"go.uber.org/zap"
)

// ErrRoomNotConfigured is returned when a room has no calendar URL.
var ErrRoomNotConfigured = errors.New("room calendar not configured")

// VanishedBookingPolicy decides what happens to an Airbnb booking that is no
// longer present in the feed.
type VanishedBookingPolicy string

const (
	// VanishedBookingKeep leaves the booking untouched. Airbnb reports
	// cancellations as CANCELLED events rather than by dropping them.
	VanishedBookingKeep VanishedBookingPolicy = "keep"
	// VanishedBookingCancel marks vanished bookings that have not ended yet
	// as cancelled. Past stays are never touched since feeds drop them.
	VanishedBookingCancel VanishedBookingPolicy = "cancel"
)

// Table and operation labels reported to the metrics recorder.
const (
	tableBookings     = "bookings"
	tableBlockedDates = "blocked_dates"

	opCreate = "create"
	opUpdate = "update"
	opDelete = "delete"
)

// MetricsRecorder receives sync instrumentation.
type MetricsRecorder interface {
	RoomSynced(err error, duration time.Duration)
	ReconcileWrite(table, op string)
	SyncPassCompleted(rooms int, duration time.Duration)
	SyncPassSkipped()
}

type noopRecorder struct{}

func (noopRecorder) RoomSynced(error, time.Duration)      {}
func (noopRecorder) ReconcileWrite(string, string)        {}
func (noopRecorder) SyncPassCompleted(int, time.Duration) {}
func (noopRecorder) SyncPassSkipped()                     {}

// SyncOptions tunes a single room sync.
type SyncOptions struct {
	// UseCache allows a recently fetched copy of the feed to be reused.
	UseCache bool
}

// SyncService fetches room feeds and reconciles them against stored
// Airbnb bookings and blocked dates.
type SyncService struct {
	bookings storage.BookingStore
	blocked  storage.BlockedDateStore
	settings storage.SettingsStore
	fetcher  Fetcher
	policy   VanishedBookingPolicy
	metrics  MetricsRecorder
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewSyncService creates a new calendar sync service. metrics may be nil.
func NewSyncService(
	store *storage.Store,
	fetcher Fetcher,
	policy VanishedBookingPolicy,
	metrics MetricsRecorder,
	logger *zap.SugaredLogger,
) *SyncService {
	if policy == "" {
		policy = VanishedBookingKeep
	}
	if metrics == nil {
		metrics = noopRecorder{}
	}

	return &SyncService{
		bookings: store.Bookings,
		blocked:  store.BlockedDates,
		settings: store.Settings,
		fetcher:  fetcher,
		policy:   policy,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ConfiguredRooms returns the sync configuration of every room with a feed URL.
func (s *SyncService) ConfiguredRooms(ctx context.Context) ([]models.SyncConfiguration, error) {
	return storage.ListSyncConfigurations(ctx, s.settings)
}

// ConfigureRoom stores a room's feed URL and whether it should be synced.
func (s *SyncService) ConfigureRoom(ctx context.Context, roomID, calendarURL string, enabled bool) error {
	if err := s.settings.Set(ctx, models.RoomURLKey(roomID), strings.TrimSpace(calendarURL)); err != nil {
		return err
	}
	return s.settings.Set(ctx, models.EnabledKey(roomID), fmt.Sprintf("%t", enabled))
}

// RemoveIntegration deletes a room's feed configuration together with every
// Airbnb-sourced booking and blocked date of the room.
func (s *SyncService) RemoveIntegration(ctx context.Context, roomID string) (bookings, blocks int64, err error) {
	bookings, err = s.bookings.DeleteByRoomAndSource(ctx, roomID, models.BookingSourceAirbnb)
	if err != nil {
		return 0, 0, fmt.Errorf("removing airbnb bookings: %w", err)
	}
	blocks, err = s.blocked.DeleteByRoomAndSource(ctx, roomID, models.BlockSourceAirbnbBlocked)
	if err != nil {
		return bookings, 0, fmt.Errorf("removing airbnb blocked dates: %w", err)
	}
	if err := s.settings.Delete(ctx, models.RoomSettingKeys(roomID)...); err != nil {
		return bookings, blocks, fmt.Errorf("removing calendar settings: %w", err)
	}

	s.logger.Infow("removed calendar integration", "room_id", roomID, "bookings", bookings, "blocked_dates", blocks)
	return bookings, blocks, nil
}

// SyncRoomByID looks up the room's configuration and syncs it.
func (s *SyncService) SyncRoomByID(ctx context.Context, roomID string, opts SyncOptions) (*models.SyncResult, error) {
	cfg, err := storage.GetSyncConfiguration(ctx, s.settings, roomID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("room %s: %w", roomID, ErrRoomNotConfigured)
	}
	if err != nil {
		return nil, err
	}
	return s.SyncRoom(ctx, *cfg, opts)
}

// SyncRoom runs one fetch, parse and reconcile pass for a room.
//
// A failure is recorded in the room's _last_sync setting and returned along
// with a result carrying the error. Individual write failures are logged and
// counted in the result without aborting the pass.
func (s *SyncService) SyncRoom(ctx context.Context, cfg models.SyncConfiguration, opts SyncOptions) (*models.SyncResult, error) {
	started := time.Now()
	result := &models.SyncResult{RoomID: cfg.RoomID, SyncedAt: s.now()}

	err := s.syncRoom(ctx, cfg, opts, result)
	s.metrics.RoomSynced(err, time.Since(started))
	if err != nil {
		result.Error = err
		s.recordLastSync(ctx, cfg.RoomID, models.LastSyncErrorPrefix+" "+err.Error())
		return result, err
	}

	s.recordLastSync(ctx, cfg.RoomID, result.SyncedAt.Format(time.RFC3339))
	return result, nil
}

func (s *SyncService) syncRoom(ctx context.Context, cfg models.SyncConfiguration, opts SyncOptions, result *models.SyncResult) error {
	if strings.TrimSpace(cfg.CalendarURL) == "" {
		return fmt.Errorf("room %s: %w", cfg.RoomID, ErrRoomNotConfigured)
	}

	existingBlocks, err := s.blocked.ListByRoomAndSource(ctx, cfg.RoomID, models.BlockSourceAirbnbBlocked)
	if err != nil {
		return fmt.Errorf("loading airbnb blocked dates: %w", err)
	}
	existingBookings, err := s.bookings.List(ctx, models.BookingFilter{
		RoomID: cfg.RoomID,
		Source: models.BookingSourceAirbnb,
	})
	if err != nil {
		return fmt.Errorf("loading airbnb bookings: %w", err)
	}

	body, err := s.fetcher.Fetch(ctx, cfg.CalendarURL, opts.UseCache)
	if err != nil {
		return err
	}

	events := ParseFeed(body)
	result.EventsFound = len(events)

	var bookingEvents, blockedEvents []classifiedEvent
	for _, event := range events {
		c := Classify(event.Summary, event.Description, event.Status)
		if c.Type == EventBlocked {
			blockedEvents = append(blockedEvents, classifiedEvent{event, c})
		} else {
			bookingEvents = append(bookingEvents, classifiedEvent{event, c})
		}
	}
	result.BookingEvents = len(bookingEvents)
	result.BlockedEvents = len(blockedEvents)

	s.reconcileBlocked(ctx, cfg.RoomID, blockedEvents, existingBlocks, result)
	s.reconcileBookings(ctx, cfg.RoomID, bookingEvents, existingBookings, result)

	active, err := s.bookings.List(ctx, models.BookingFilter{
		RoomID:   cfg.RoomID,
		Statuses: models.ActiveBookingStatuses,
	})
	if err != nil {
		s.logger.Warnw("listing bookings for conflict scan failed", "room_id", cfg.RoomID, "error", err)
	} else {
		result.Conflicts = availability.FindBookingConflicts(active)
	}

	s.logger.Infow("room calendar synced",
		"room_id", cfg.RoomID,
		"events", result.EventsFound,
		"bookings_created", result.BookingsCreated,
		"bookings_updated", result.BookingsUpdated,
		"bookings_cancelled", result.BookingsCancelled,
		"blocks_created", result.BlocksCreated,
		"blocks_updated", result.BlocksUpdated,
		"blocks_deleted", result.BlocksDeleted,
		"write_errors", result.WriteErrors,
		"conflicts", len(result.Conflicts),
	)
	return nil
}

type classifiedEvent struct {
	event models.CalendarEvent
	class Classification
}

// reconcileBlocked makes the room's airbnb_blocked rows match the feed's
// blocked ranges exactly: absent ranges are deleted, new ones inserted, and
// changed reason or notes updated.
func (s *SyncService) reconcileBlocked(ctx context.Context, roomID string, events []classifiedEvent, existing []models.BlockedDate, result *models.SyncResult) {
	desired := make(map[string]models.BlockedDate)
	var order []string
	for _, ce := range events {
		want := models.BlockedDate{
			RoomID:    roomID,
			StartDate: ce.event.StartDate,
			EndDate:   ce.event.EndDate,
			Reason:    blockReason(ce.event),
			Notes:     fmt.Sprintf("Imported from Airbnb calendar (%s)", ce.class.Reason),
			Source:    models.BlockSourceAirbnbBlocked,
		}
		key := want.RangeKey()
		if _, dup := desired[key]; dup {
			continue
		}
		desired[key] = want
		order = append(order, key)
	}

	current := make(map[string]models.BlockedDate)
	for _, row := range existing {
		key := row.RangeKey()
		_, keep := desired[key]
		_, dup := current[key]
		if keep && !dup {
			current[key] = row
			continue
		}

		if err := s.blocked.Delete(ctx, row.ID); err != nil {
			s.writeFailed(result, "deleting blocked date", roomID, row.ID, err)
			continue
		}
		s.metrics.ReconcileWrite(tableBlockedDates, opDelete)
		result.BlocksDeleted++
	}

	for _, key := range order {
		want := desired[key]
		if _, ok := current[key]; ok {
			continue
		}
		if err := s.blocked.Create(ctx, &want); err != nil {
			s.writeFailed(result, "creating blocked date", roomID, key, err)
			continue
		}
		s.metrics.ReconcileWrite(tableBlockedDates, opCreate)
		result.BlocksCreated++
	}

	for _, key := range order {
		have, ok := current[key]
		want := desired[key]
		if !ok || (have.Reason == want.Reason && have.Notes == want.Notes) {
			continue
		}
		have.Reason = want.Reason
		have.Notes = want.Notes
		if err := s.blocked.Update(ctx, &have); err != nil {
			s.writeFailed(result, "updating blocked date", roomID, have.ID, err)
			continue
		}
		s.metrics.ReconcileWrite(tableBlockedDates, opUpdate)
		result.BlocksUpdated++
	}
}

// reconcileBookings inserts new Airbnb bookings and updates changed ones,
// matching on the external booking id. Bookings missing from the feed are
// handled by the vanished booking policy.
func (s *SyncService) reconcileBookings(ctx context.Context, roomID string, events []classifiedEvent, existing []models.Booking, result *models.SyncResult) {
	byExternalID := make(map[string]models.Booking, len(existing))
	for _, b := range existing {
		if ext := b.ExternalID(); ext != "" {
			if _, dup := byExternalID[ext]; !dup {
				byExternalID[ext] = b
			}
		}
	}

	matched := make(map[string]bool)
	seen := make(map[string]bool)
	for _, ce := range events {
		info := ExtractGuestInfo(ce.event.Summary, ce.event.Description)
		externalID := info.ReservationCode
		if externalID == "" {
			externalID = ce.event.UID
		}
		if seen[externalID] {
			continue
		}
		seen[externalID] = true

		want := bookingFromEvent(roomID, externalID, ce, info)

		have, ok := byExternalID[externalID]
		if !ok && externalID != ce.event.UID {
			// Stored before the feed carried a reservation code.
			have, ok = byExternalID[ce.event.UID]
		}
		if !ok {
			if err := s.bookings.Create(ctx, &want); err != nil {
				s.writeFailed(result, "creating booking", roomID, externalID, err)
				continue
			}
			s.metrics.ReconcileWrite(tableBookings, opCreate)
			result.BookingsCreated++
			continue
		}
		matched[have.ID] = true

		if !bookingChanged(&have, &want) {
			continue
		}
		have.CheckInDate = want.CheckInDate
		have.CheckOutDate = want.CheckOutDate
		have.BookingStatus = want.BookingStatus
		have.GuestName = want.GuestName
		have.ExternalBookingID = want.ExternalBookingID
		have.Email = want.Email
		have.Phone = want.Phone
		have.NumGuests = want.NumGuests
		have.TotalAmount = want.TotalAmount
		have.SpecialRequests = want.SpecialRequests
		if err := s.bookings.Update(ctx, &have); err != nil {
			s.writeFailed(result, "updating booking", roomID, have.ID, err)
			continue
		}
		s.metrics.ReconcileWrite(tableBookings, opUpdate)
		result.BookingsUpdated++
	}

	if s.policy != VanishedBookingCancel {
		return
	}

	today := s.now().Format("2006-01-02")
	for _, b := range existing {
		if matched[b.ID] || !b.IsActive() || b.CheckOutDate <= today {
			continue
		}
		b.BookingStatus = models.BookingStatusCancelled
		if err := s.bookings.Update(ctx, &b); err != nil {
			s.writeFailed(result, "cancelling vanished booking", roomID, b.ID, err)
			continue
		}
		s.metrics.ReconcileWrite(tableBookings, opUpdate)
		result.BookingsCancelled++
	}
}

func (s *SyncService) writeFailed(result *models.SyncResult, action, roomID, ref string, err error) {
	result.WriteErrors++
	s.logger.Errorw("reconciliation write failed", "action", action, "room_id", roomID, "ref", ref, "error", err)
}

func (s *SyncService) recordLastSync(ctx context.Context, roomID, value string) {
	if err := s.settings.Set(ctx, models.LastSyncKey(roomID), value); err != nil {
		s.logger.Errorw("failed to record last sync", "room_id", roomID, "error", err)
	}
}

func bookingFromEvent(roomID, externalID string, ce classifiedEvent, info GuestInfo) models.Booking {
	ext := externalID
	return models.Booking{
		RoomID:            roomID,
		CheckInDate:       ce.event.StartDate,
		CheckOutDate:      ce.event.EndDate,
		GuestName:         info.Name,
		Email:             info.Email,
		Phone:             info.Phone,
		NumGuests:         info.NumGuests,
		BookingStatus:     ce.class.BookingStatus(ce.event.Status),
		PaymentStatus:     models.PaymentStatusPaid,
		BookingSource:     models.BookingSourceAirbnb,
		ExternalBookingID: &ext,
		SpecialRequests:   limitationsNote(info),
		TotalAmount:       info.Amount,
	}
}

// bookingChanged compares the fields the feed is authoritative for.
func bookingChanged(have, want *models.Booking) bool {
	return have.CheckInDate != want.CheckInDate ||
		have.CheckOutDate != want.CheckOutDate ||
		have.BookingStatus != want.BookingStatus ||
		have.GuestName != want.GuestName ||
		have.ExternalID() != want.ExternalID()
}

func blockReason(event models.CalendarEvent) string {
	if s := strings.TrimSpace(event.Summary); s != "" {
		return s
	}
	return "Blocked on Airbnb"
}

// limitationsNote lists the guest fields the feed did not provide.
func limitationsNote(info GuestInfo) string {
	var missing []string
	for field, placeholder := range info.DataLimitations {
		if placeholder {
			missing = append(missing, field)
		}
	}
	if len(missing) == 0 {
		return ""
	}
	sort.Strings(missing)
	return "Not available in iCal: " + strings.Join(missing, ", ")
}
