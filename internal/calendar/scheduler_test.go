package calendar

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/homestay-booking/backend/internal/storage/models"
	"go.uber.org/zap"
)

type recordingNotifier struct {
	mu        sync.Mutex
	completed []models.SyncResult
	failed    []string
	conflicts map[string]int
}

func (n *recordingNotifier) SyncCompleted(result models.SyncResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.completed = append(n.completed, result)
}

func (n *recordingNotifier) SyncFailed(roomID string, _ error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = append(n.failed, roomID)
}

func (n *recordingNotifier) ConflictsDetected(roomID string, conflicts []models.BookingConflict) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.conflicts == nil {
		n.conflicts = make(map[string]int)
	}
	n.conflicts[roomID] += len(conflicts)
}

func newTestScheduler(fx *syncFixture, opts SchedulerOptions) *Scheduler {
	return NewScheduler(fx.svc, opts, nil, zap.NewNop().Sugar())
}

func TestSchedulerSyncAllSkipsWhileInFlight(t *testing.T) {
	fx := newSyncFixture(t, VanishedBookingKeep)
	fx.fetcher.set(buildFeed(namedEvent), nil)
	fx.fetcher.entered = make(chan struct{}, 1)
	fx.fetcher.gate = make(chan struct{})

	s := newTestScheduler(fx, SchedulerOptions{})

	done := make(chan error, 1)
	go func() {
		_, err := s.SyncAll(context.Background())
		done <- err
	}()

	select {
	case <-fx.fetcher.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first pass never reached the fetcher")
	}

	if !s.InFlight() {
		t.Error("InFlight() = false during a pass")
	}
	if _, err := s.SyncAll(context.Background()); !errors.Is(err, ErrSyncInProgress) {
		t.Errorf("concurrent SyncAll err = %v, want ErrSyncInProgress", err)
	}

	close(fx.fetcher.gate)
	if err := <-done; err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if s.InFlight() {
		t.Error("InFlight() = true after the pass finished")
	}
	if n := len(fx.fetcher.cacheFlags()); n != 1 {
		t.Errorf("fetcher called %d times, want 1", n)
	}
}

func TestSchedulerSyncAllNotifies(t *testing.T) {
	fx := newSyncFixture(t, VanishedBookingKeep)
	ctx := context.Background()
	if err := fx.svc.ConfigureRoom(ctx, "room-paused", "https://www.airbnb.test/paused.ics", false); err != nil {
		t.Fatal(err)
	}
	website := &models.Booking{
		RoomID:        testRoom,
		CheckInDate:   "2099-04-02",
		CheckOutDate:  "2099-04-03",
		BookingStatus: models.BookingStatusPending,
		BookingSource: models.BookingSourceWebsite,
	}
	if err := fx.store.Bookings.Create(ctx, website); err != nil {
		t.Fatal(err)
	}
	fx.fetcher.set(buildFeed(namedEvent), nil)

	s := newTestScheduler(fx, SchedulerOptions{Concurrency: 2})
	notifier := &recordingNotifier{}
	s.AddNotifier(notifier)

	pass, err := s.SyncAll(ctx)
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if pass.Rooms != 1 || pass.Failed != 0 {
		t.Errorf("pass = %d rooms, %d failed; want 1/0", pass.Rooms, pass.Failed)
	}
	if len(notifier.completed) != 1 || notifier.completed[0].RoomID != testRoom {
		t.Errorf("completed notifications = %+v", notifier.completed)
	}
	if notifier.conflicts[testRoom] != 1 {
		t.Errorf("conflict notifications = %v, want 1 for %s", notifier.conflicts, testRoom)
	}
	if _, ok := s.LastSync(testRoom); !ok {
		t.Error("last sync not recorded")
	}
	if _, ok := s.LastSync("room-paused"); ok {
		t.Error("disabled room was synced")
	}
	if s.Status().LastPass == nil {
		t.Error("status has no last pass")
	}
}

func TestSchedulerSyncAllReportsFailures(t *testing.T) {
	fx := newSyncFixture(t, VanishedBookingKeep)
	fx.fetcher.set("", errors.New("calendar returned status 500"))

	s := newTestScheduler(fx, SchedulerOptions{})
	notifier := &recordingNotifier{}
	s.AddNotifier(notifier)

	pass, err := s.SyncAll(context.Background())
	if err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if pass.Failed != 1 {
		t.Errorf("failed rooms = %d, want 1", pass.Failed)
	}
	if len(notifier.failed) != 1 || notifier.failed[0] != testRoom {
		t.Errorf("failure notifications = %v", notifier.failed)
	}
	if len(notifier.completed) != 0 {
		t.Errorf("unexpected completion notifications: %+v", notifier.completed)
	}
}

func TestSchedulerForceSyncBypassesCache(t *testing.T) {
	fx := newSyncFixture(t, VanishedBookingKeep)
	fx.fetcher.set(buildFeed(namedEvent), nil)
	s := newTestScheduler(fx, SchedulerOptions{})

	if _, err := s.SyncAll(context.Background()); err != nil {
		t.Fatalf("SyncAll: %v", err)
	}
	if _, err := s.ForceSync(context.Background(), testRoom); err != nil {
		t.Fatalf("ForceSync: %v", err)
	}

	flags := fx.fetcher.cacheFlags()
	if len(flags) != 2 || !flags[0] || flags[1] {
		t.Errorf("useCache flags = %v, want [true false]", flags)
	}
}

func TestSchedulerForceSyncUnknownRoom(t *testing.T) {
	fx := newSyncFixture(t, VanishedBookingKeep)
	s := newTestScheduler(fx, SchedulerOptions{})
	notifier := &recordingNotifier{}
	s.AddNotifier(notifier)

	if _, err := s.ForceSync(context.Background(), "room-unknown"); !errors.Is(err, ErrRoomNotConfigured) {
		t.Errorf("err = %v, want ErrRoomNotConfigured", err)
	}
	if len(notifier.failed) != 0 {
		t.Error("unconfigured room produced a failure notification")
	}
}

func TestSchedulerStartStop(t *testing.T) {
	fx := newSyncFixture(t, VanishedBookingKeep)
	fx.fetcher.set(buildFeed(namedEvent), nil)
	s := newTestScheduler(fx, SchedulerOptions{Interval: time.Hour})

	if s.Status().Running {
		t.Fatal("scheduler running before Start")
	}

	for i := 0; i < 2; i++ {
		if err := s.Start(context.Background()); err != nil {
			t.Fatalf("Start #%d: %v", i+1, err)
		}
		status := s.Status()
		if !status.Running || status.Interval != "1h0m0s" {
			t.Errorf("status after Start #%d = %+v", i+1, status)
		}
		s.Stop()
		if s.Status().Running {
			t.Errorf("scheduler still running after Stop #%d", i+1)
		}
	}

	// Stop without Start is a no-op.
	s.Stop()
}

func TestSchedulerSyncOnStart(t *testing.T) {
	fx := newSyncFixture(t, VanishedBookingKeep)
	fx.fetcher.set(buildFeed(namedEvent), nil)
	s := newTestScheduler(fx, SchedulerOptions{Interval: time.Hour, SyncOnStart: true})

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := s.LastSync(testRoom); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("initial pass did not sync the room")
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.Stop()
}
