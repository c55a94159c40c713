package calendar

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/homestay-booking/backend/internal/storage"
	"github.com/homestay-booking/backend/internal/storage/memory"
	"github.com/homestay-booking/backend/internal/storage/models"
	"go.uber.org/zap"
)

const testRoom = "room-1"

type testEvent struct {
	uid, summary, description, start, end, status string
}

func buildFeed(events ...testEvent) string {
	var b strings.Builder
	b.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//Airbnb Inc//Hosting Calendar//EN\r\n")
	for _, e := range events {
		b.WriteString("BEGIN:VEVENT\r\n")
		b.WriteString("DTSTART;VALUE=DATE:" + e.start + "\r\n")
		b.WriteString("DTEND;VALUE=DATE:" + e.end + "\r\n")
		if e.uid != "" {
			b.WriteString("UID:" + e.uid + "\r\n")
		}
		if e.description != "" {
			b.WriteString("DESCRIPTION:" + strings.ReplaceAll(e.description, "\n", `\n`) + "\r\n")
		}
		b.WriteString("SUMMARY:" + e.summary + "\r\n")
		if e.status != "" {
			b.WriteString("STATUS:" + e.status + "\r\n")
		}
		b.WriteString("END:VEVENT\r\n")
	}
	b.WriteString("END:VCALENDAR\r\n")
	return b.String()
}

// stubFetcher serves a canned feed. When gate is set, Fetch signals entered
// and waits for the gate to close.
type stubFetcher struct {
	mu       sync.Mutex
	body     string
	err      error
	useCache []bool
	entered  chan struct{}
	gate     chan struct{}
}

func (f *stubFetcher) Fetch(ctx context.Context, _ string, useCache bool) (string, error) {
	f.mu.Lock()
	f.useCache = append(f.useCache, useCache)
	body, err, entered, gate := f.body, f.err, f.entered, f.gate
	f.mu.Unlock()

	if gate != nil {
		entered <- struct{}{}
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return body, err
}

func (f *stubFetcher) set(body string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.body, f.err = body, err
}

func (f *stubFetcher) cacheFlags() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.useCache...)
}

type syncFixture struct {
	svc     *SyncService
	mem     *memory.Store
	store   *storage.Store
	fetcher *stubFetcher
}

func newSyncFixture(t *testing.T, policy VanishedBookingPolicy) *syncFixture {
	t.Helper()

	mem := memory.New()
	store := mem.AsStore()
	if err := store.Settings.Set(context.Background(), models.RoomURLKey(testRoom), "https://www.airbnb.test/calendar/ical/1.ics"); err != nil {
		t.Fatalf("seeding settings: %v", err)
	}

	fetcher := &stubFetcher{}
	return &syncFixture{
		svc:     NewSyncService(store, fetcher, policy, nil, zap.NewNop().Sugar()),
		mem:     mem,
		store:   store,
		fetcher: fetcher,
	}
}

func (fx *syncFixture) sync(t *testing.T, feed string) *models.SyncResult {
	t.Helper()
	fx.fetcher.set(feed, nil)
	result, err := fx.svc.SyncRoomByID(context.Background(), testRoom, SyncOptions{})
	if err != nil {
		t.Fatalf("SyncRoomByID: %v", err)
	}
	return result
}

func (fx *syncFixture) airbnbBookings(t *testing.T) []models.Booking {
	t.Helper()
	bookings, err := fx.store.Bookings.List(context.Background(), models.BookingFilter{RoomID: testRoom, Source: models.BookingSourceAirbnb})
	if err != nil {
		t.Fatalf("listing bookings: %v", err)
	}
	return bookings
}

func (fx *syncFixture) airbnbBlocks(t *testing.T) []models.BlockedDate {
	t.Helper()
	blocks, err := fx.store.BlockedDates.ListByRoomAndSource(context.Background(), testRoom, models.BlockSourceAirbnbBlocked)
	if err != nil {
		t.Fatalf("listing blocked dates: %v", err)
	}
	return blocks
}

var (
	reservedEvent = testEvent{
		uid:         "res-1@airbnb.com",
		summary:     "Reserved",
		description: "Reservation URL: https://www.airbnb.com/hosting/reservations/details/HMABCD1234\nPhone Number (Last 4 Digits): 1234",
		start:       "20990310",
		end:         "20990315",
	}
	namedEvent   = testEvent{uid: "res-2@airbnb.com", summary: "John Smith", start: "20990401", end: "20990405"}
	blockedMarch = testEvent{uid: "blk-1@airbnb.com", summary: "Airbnb (Not available)", start: "20990320", end: "20990325"}
	blockedMay   = testEvent{uid: "blk-2@airbnb.com", summary: "Airbnb (Not available)", start: "20990501", end: "20990503"}
)

func TestSyncRoomReconcilesFeed(t *testing.T) {
	fx := newSyncFixture(t, VanishedBookingKeep)

	result := fx.sync(t, buildFeed(reservedEvent, blockedMarch, namedEvent))

	if result.EventsFound != 3 || result.BookingEvents != 2 || result.BlockedEvents != 1 {
		t.Errorf("event counts = %d/%d/%d, want 3/2/1", result.EventsFound, result.BookingEvents, result.BlockedEvents)
	}
	if result.BookingsCreated != 2 || result.BlocksCreated != 1 || result.WriteErrors != 0 {
		t.Errorf("writes = %+v", result)
	}

	bookings := fx.airbnbBookings(t)
	if len(bookings) != 2 {
		t.Fatalf("got %d airbnb bookings, want 2", len(bookings))
	}
	reserved := bookings[0]
	if reserved.ExternalID() != "HMABCD1234" {
		t.Errorf("external id = %q, want reservation code", reserved.ExternalID())
	}
	if reserved.CheckInDate != "2099-03-10" || reserved.CheckOutDate != "2099-03-15" {
		t.Errorf("dates = %s..%s", reserved.CheckInDate, reserved.CheckOutDate)
	}
	if reserved.GuestName != DefaultGuestName || reserved.BookingStatus != models.BookingStatusConfirmed {
		t.Errorf("guest/status = %q/%q", reserved.GuestName, reserved.BookingStatus)
	}
	if reserved.PaymentStatus != models.PaymentStatusPaid || reserved.Phone != "1234" {
		t.Errorf("payment/phone = %q/%q", reserved.PaymentStatus, reserved.Phone)
	}
	if !strings.Contains(reserved.SpecialRequests, FieldEmail) {
		t.Errorf("special requests %q do not list missing email", reserved.SpecialRequests)
	}

	named := bookings[1]
	if named.ExternalID() != namedEvent.uid || named.GuestName != "John Smith" {
		t.Errorf("named booking = %q/%q", named.ExternalID(), named.GuestName)
	}

	blocks := fx.airbnbBlocks(t)
	if len(blocks) != 1 || blocks[0].StartDate != "2099-03-20" || blocks[0].EndDate != "2099-03-25" {
		t.Fatalf("blocks = %+v", blocks)
	}
	if blocks[0].Reason != "Airbnb (Not available)" {
		t.Errorf("block reason = %q", blocks[0].Reason)
	}

	lastSync, _, _ := fx.store.Settings.Get(context.Background(), models.LastSyncKey(testRoom))
	if _, err := time.Parse(time.RFC3339, lastSync); err != nil {
		t.Errorf("last sync %q is not RFC3339: %v", lastSync, err)
	}
}

func TestSyncRoomIsIdempotent(t *testing.T) {
	fx := newSyncFixture(t, VanishedBookingCancel)
	feed := buildFeed(reservedEvent, blockedMarch, namedEvent, blockedMay)

	fx.sync(t, feed)
	before := fx.mem.Writes()
	if before != 4 {
		t.Fatalf("first sync wrote %d rows, want 4", before)
	}

	result := fx.sync(t, feed)
	if got := fx.mem.Writes(); got != before {
		t.Errorf("second sync wrote %d rows, want 0", got-before)
	}
	if result.Writes() != 0 {
		t.Errorf("second sync result reports %d writes", result.Writes())
	}
}

func TestSyncRoomBlockedDatesConverge(t *testing.T) {
	fx := newSyncFixture(t, VanishedBookingKeep)
	ctx := context.Background()

	manual := &models.BlockedDate{RoomID: testRoom, StartDate: "2099-05-01", EndDate: "2099-05-03", Reason: "Painting", Source: models.BlockSourceManual}
	if err := fx.store.BlockedDates.Create(ctx, manual); err != nil {
		t.Fatalf("creating manual block: %v", err)
	}

	fx.sync(t, buildFeed(blockedMarch, blockedMay))
	if n := len(fx.airbnbBlocks(t)); n != 2 {
		t.Fatalf("got %d airbnb blocks, want 2", n)
	}

	writes := fx.mem.Writes()
	result := fx.sync(t, buildFeed(blockedMarch))
	if result.BlocksDeleted != 1 || fx.mem.Writes()-writes != 1 {
		t.Errorf("removal: deleted=%d writes=%d, want 1/1", result.BlocksDeleted, fx.mem.Writes()-writes)
	}
	if blocks := fx.airbnbBlocks(t); len(blocks) != 1 || blocks[0].StartDate != "2099-03-20" {
		t.Errorf("remaining blocks = %+v", blocks)
	}

	writes = fx.mem.Writes()
	result = fx.sync(t, buildFeed(blockedMarch))
	if result.BlocksDeleted != 0 || fx.mem.Writes() != writes {
		t.Errorf("repeat sync deleted %d rows", result.BlocksDeleted)
	}

	result = fx.sync(t, buildFeed(blockedMarch, blockedMay))
	if result.BlocksCreated != 1 {
		t.Errorf("re-added range created %d rows, want 1", result.BlocksCreated)
	}

	if _, err := fx.store.BlockedDates.GetByID(ctx, manual.ID); err != nil {
		t.Errorf("manual block was touched by sync: %v", err)
	}
}

func TestSyncRoomCollapsesDuplicateRanges(t *testing.T) {
	fx := newSyncFixture(t, VanishedBookingKeep)

	dup := blockedMarch
	dup.uid = "blk-dup@airbnb.com"
	dup.summary = "Not available"

	result := fx.sync(t, buildFeed(blockedMarch, dup))
	if result.BlocksCreated != 1 || result.WriteErrors != 0 {
		t.Errorf("created=%d errors=%d, want 1/0", result.BlocksCreated, result.WriteErrors)
	}
}

func TestSyncRoomUpdatesChangedBooking(t *testing.T) {
	fx := newSyncFixture(t, VanishedBookingKeep)
	fx.sync(t, buildFeed(namedEvent))

	moved := namedEvent
	moved.end = "20990406"
	result := fx.sync(t, buildFeed(moved))
	if result.BookingsUpdated != 1 || result.BookingsCreated != 0 {
		t.Fatalf("updated=%d created=%d, want 1/0", result.BookingsUpdated, result.BookingsCreated)
	}
	if b := fx.airbnbBookings(t); b[0].CheckOutDate != "2099-04-06" {
		t.Errorf("check-out = %s, want 2099-04-06", b[0].CheckOutDate)
	}

	cancelled := moved
	cancelled.status = "CANCELLED"
	fx.sync(t, buildFeed(cancelled))
	if b := fx.airbnbBookings(t); len(b) != 1 || b[0].BookingStatus != models.BookingStatusCancelled {
		t.Errorf("bookings after cancellation = %+v", b)
	}
}

func TestSyncRoomAdoptsReservationCode(t *testing.T) {
	fx := newSyncFixture(t, VanishedBookingKeep)

	plain := testEvent{uid: "res-9@airbnb.com", summary: "Reserved", start: "20990610", end: "20990612"}
	fx.sync(t, buildFeed(plain))

	withCode := plain
	withCode.description = "Reservation URL: https://www.airbnb.com/hosting/reservations/details/HMZZZZ9999"
	result := fx.sync(t, buildFeed(withCode))

	if result.BookingsCreated != 0 || result.BookingsUpdated != 1 {
		t.Fatalf("created=%d updated=%d, want 0/1", result.BookingsCreated, result.BookingsUpdated)
	}
	bookings := fx.airbnbBookings(t)
	if len(bookings) != 1 || bookings[0].ExternalID() != "HMZZZZ9999" {
		t.Errorf("bookings = %+v", bookings)
	}
}

func TestSyncRoomVanishedBookingPolicy(t *testing.T) {
	past := testEvent{uid: "past@airbnb.com", summary: "Ana Cruz", start: "20000101", end: "20000105"}

	tests := []struct {
		policy        VanishedBookingPolicy
		wantCancelled int
		wantStatus    string
	}{
		{policy: VanishedBookingKeep, wantCancelled: 0, wantStatus: models.BookingStatusConfirmed},
		{policy: VanishedBookingCancel, wantCancelled: 1, wantStatus: models.BookingStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			fx := newSyncFixture(t, tt.policy)
			fx.sync(t, buildFeed(reservedEvent, namedEvent, past))

			result := fx.sync(t, buildFeed(reservedEvent))
			if result.BookingsCancelled != tt.wantCancelled {
				t.Errorf("cancelled = %d, want %d", result.BookingsCancelled, tt.wantCancelled)
			}

			for _, b := range fx.airbnbBookings(t) {
				switch b.ExternalID() {
				case namedEvent.uid:
					if b.BookingStatus != tt.wantStatus {
						t.Errorf("vanished future booking status = %q, want %q", b.BookingStatus, tt.wantStatus)
					}
				case past.uid:
					if b.BookingStatus != models.BookingStatusConfirmed {
						t.Errorf("vanished past booking status = %q, want confirmed", b.BookingStatus)
					}
				}
			}
		})
	}
}

func TestSyncRoomFetchErrorRecordsLastSync(t *testing.T) {
	fx := newSyncFixture(t, VanishedBookingKeep)
	fx.sync(t, buildFeed(namedEvent))
	writes := fx.mem.Writes()

	fx.fetcher.set("", errors.New("calendar returned status 503"))
	result, err := fx.svc.SyncRoomByID(context.Background(), testRoom, SyncOptions{})
	if err == nil {
		t.Fatal("expected fetch error")
	}
	if result == nil || result.Error == nil {
		t.Fatalf("result = %+v, want error recorded", result)
	}

	lastSync, _, _ := fx.store.Settings.Get(context.Background(), models.LastSyncKey(testRoom))
	if lastSync != "ERROR: calendar returned status 503" {
		t.Errorf("last sync = %q", lastSync)
	}
	if fx.mem.Writes() != writes {
		t.Error("failed fetch modified persisted rows")
	}
}

func TestSyncRoomReportsConflicts(t *testing.T) {
	fx := newSyncFixture(t, VanishedBookingKeep)

	website := &models.Booking{
		RoomID:        testRoom,
		CheckInDate:   "2099-03-12",
		CheckOutDate:  "2099-03-14",
		GuestName:     "Walk In",
		BookingStatus: models.BookingStatusConfirmed,
		BookingSource: models.BookingSourceWebsite,
	}
	if err := fx.store.Bookings.Create(context.Background(), website); err != nil {
		t.Fatalf("creating website booking: %v", err)
	}

	result := fx.sync(t, buildFeed(reservedEvent))
	if len(result.Conflicts) != 1 {
		t.Fatalf("conflicts = %+v, want 1", result.Conflicts)
	}
	c := result.Conflicts[0]
	if c.OverlapStart != "2099-03-12" || c.OverlapEnd != "2099-03-14" {
		t.Errorf("overlap = %s..%s", c.OverlapStart, c.OverlapEnd)
	}
}

func TestSyncRoomByIDNotConfigured(t *testing.T) {
	fx := newSyncFixture(t, VanishedBookingKeep)

	_, err := fx.svc.SyncRoomByID(context.Background(), "room-unknown", SyncOptions{})
	if !errors.Is(err, ErrRoomNotConfigured) {
		t.Errorf("err = %v, want ErrRoomNotConfigured", err)
	}
}

func TestConfigureAndRemoveIntegration(t *testing.T) {
	fx := newSyncFixture(t, VanishedBookingKeep)
	ctx := context.Background()

	if err := fx.svc.ConfigureRoom(ctx, "room-2", " https://www.airbnb.test/2.ics ", false); err != nil {
		t.Fatalf("ConfigureRoom: %v", err)
	}
	rooms, err := fx.svc.ConfiguredRooms(ctx)
	if err != nil {
		t.Fatalf("ConfiguredRooms: %v", err)
	}
	if len(rooms) != 2 || rooms[1].RoomID != "room-2" || rooms[1].SyncEnabled || rooms[1].CalendarURL != "https://www.airbnb.test/2.ics" {
		t.Fatalf("rooms = %+v", rooms)
	}

	fx.sync(t, buildFeed(reservedEvent, blockedMarch))
	website := &models.Booking{RoomID: testRoom, CheckInDate: "2099-07-01", CheckOutDate: "2099-07-03", BookingStatus: models.BookingStatusPending, BookingSource: models.BookingSourceWebsite}
	manual := &models.BlockedDate{RoomID: testRoom, StartDate: "2099-08-01", EndDate: "2099-08-02", Reason: "Owner", Source: models.BlockSourceManual}
	if err := fx.store.Bookings.Create(ctx, website); err != nil {
		t.Fatal(err)
	}
	if err := fx.store.BlockedDates.Create(ctx, manual); err != nil {
		t.Fatal(err)
	}

	bookings, blocks, err := fx.svc.RemoveIntegration(ctx, testRoom)
	if err != nil {
		t.Fatalf("RemoveIntegration: %v", err)
	}
	if bookings != 1 || blocks != 1 {
		t.Errorf("removed %d bookings and %d blocks, want 1/1", bookings, blocks)
	}

	if _, err := fx.store.Bookings.GetByID(ctx, website.ID); err != nil {
		t.Errorf("website booking removed: %v", err)
	}
	if _, err := fx.store.BlockedDates.GetByID(ctx, manual.ID); err != nil {
		t.Errorf("manual block removed: %v", err)
	}
	for _, key := range models.RoomSettingKeys(testRoom) {
		if _, ok, _ := fx.store.Settings.Get(ctx, key); ok {
			t.Errorf("setting %s still present", key)
		}
	}
}
