package calendar

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/homestay-booking/backend/internal/storage/models"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrSyncInProgress is returned when a full pass is requested while another
// one is still running.
var ErrSyncInProgress = errors.New("calendar sync already in progress")

// Notifier is told about the outcome of every room sync.
type Notifier interface {
	SyncCompleted(result models.SyncResult)
	SyncFailed(roomID string, err error)
	ConflictsDetected(roomID string, conflicts []models.BookingConflict)
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	Interval    time.Duration
	Concurrency int
	// SyncOnStart runs a pass as soon as the scheduler starts.
	SyncOnStart bool
}

// PassResult summarizes one sync pass over every enabled room.
type PassResult struct {
	StartedAt time.Time           `json:"started_at"`
	Duration  time.Duration       `json:"duration_ns"`
	Rooms     int                 `json:"rooms"`
	Failed    int                 `json:"failed"`
	Results   []models.SyncResult `json:"results"`
}

// SchedulerStatus is a snapshot of the scheduler for status endpoints.
type SchedulerStatus struct {
	Running  bool                 `json:"running"`
	InFlight bool                 `json:"in_flight"`
	Interval string               `json:"interval"`
	NextRun  *time.Time           `json:"next_run,omitempty"`
	LastPass *time.Time           `json:"last_pass,omitempty"`
	LastSync map[string]time.Time `json:"last_sync"`
}

// Scheduler runs periodic sync passes and on-demand room syncs.
type Scheduler struct {
	syncService *SyncService
	metrics     MetricsRecorder
	logger      *zap.SugaredLogger
	interval    time.Duration
	concurrency int
	syncOnStart bool

	inFlight atomic.Bool

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	roomLocksMu sync.Mutex
	roomLocks   map[string]*sync.Mutex

	lastSyncMu sync.RWMutex
	lastSync   map[string]time.Time
	lastPass   time.Time

	notifiersMu sync.RWMutex
	notifiers   []Notifier
}

// NewScheduler creates a new calendar sync scheduler. metrics may be nil.
func NewScheduler(syncService *SyncService, opts SchedulerOptions, metrics MetricsRecorder, logger *zap.SugaredLogger) *Scheduler {
	if opts.Interval < time.Minute {
		opts.Interval = 15 * time.Minute
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if metrics == nil {
		metrics = noopRecorder{}
	}

	return &Scheduler{
		syncService: syncService,
		metrics:     metrics,
		logger:      logger,
		interval:    opts.Interval,
		concurrency: opts.Concurrency,
		syncOnStart: opts.SyncOnStart,
		roomLocks:   make(map[string]*sync.Mutex),
		lastSync:    make(map[string]time.Time),
	}
}

// AddNotifier registers an observer of sync outcomes.
func (s *Scheduler) AddNotifier(n Notifier) {
	s.notifiersMu.Lock()
	defer s.notifiersMu.Unlock()
	s.notifiers = append(s.notifiers, n)
}

// Start schedules a full pass every interval. It can be called again after Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	c := cron.New()
	entryID, err := c.AddFunc("@every "+s.interval.String(), func() {
		s.scheduledPass(ctx)
	})
	if err != nil {
		cancel()
		return err
	}

	s.cron = c
	s.entryID = entryID
	s.cancel = cancel
	c.Start()
	s.logger.Infow("calendar scheduler started", "interval", s.interval.String(), "concurrency", s.concurrency)

	if s.syncOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.scheduledPass(ctx)
		}()
	}
	return nil
}

// Stop cancels the schedule and waits for a running pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}

	s.logger.Info("stopping calendar scheduler")
	cancel()
	<-c.Stop().Done()
	s.wg.Wait()
	s.logger.Info("calendar scheduler stopped")
}

func (s *Scheduler) scheduledPass(ctx context.Context) {
	s.wg.Add(1)
	defer s.wg.Done()

	if ctx.Err() != nil {
		return
	}
	if _, err := s.SyncAll(ctx); errors.Is(err, ErrSyncInProgress) {
		s.metrics.SyncPassSkipped()
		s.logger.Info("previous calendar sync still running, skipping this tick")
	} else if err != nil {
		s.logger.Errorw("calendar sync pass failed", "error", err)
	}
}

// SyncAll syncs every enabled room concurrently and waits for all of them.
// Feeds may be served from the fetcher cache.
func (s *Scheduler) SyncAll(ctx context.Context) (*PassResult, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		return nil, ErrSyncInProgress
	}
	defer s.inFlight.Store(false)

	started := time.Now()
	configs, err := s.syncService.ConfiguredRooms(ctx)
	if err != nil {
		return nil, err
	}

	enabled := configs[:0]
	for _, cfg := range configs {
		if cfg.SyncEnabled {
			enabled = append(enabled, cfg)
		}
	}

	pass := &PassResult{
		StartedAt: started.UTC(),
		Rooms:     len(enabled),
		Results:   make([]models.SyncResult, len(enabled)),
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, cfg := range enabled {
		i, cfg := i, cfg
		g.Go(func() error {
			result, _ := s.syncRoom(ctx, cfg.RoomID, func(ctx context.Context) (*models.SyncResult, error) {
				return s.syncService.SyncRoom(ctx, cfg, SyncOptions{UseCache: true})
			})
			pass.Results[i] = *result
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range pass.Results {
		if r.Error != nil {
			pass.Failed++
		}
	}
	pass.Duration = time.Since(started)

	s.lastSyncMu.Lock()
	s.lastPass = time.Now().UTC()
	s.lastSyncMu.Unlock()

	s.metrics.SyncPassCompleted(pass.Rooms, pass.Duration)
	s.logger.Infow("calendar sync pass completed", "rooms", pass.Rooms, "failed", pass.Failed, "duration", pass.Duration.String())
	return pass, nil
}

// ForceSync syncs one room immediately, bypassing the interval and the feed
// cache, and returns once reconciliation has finished.
func (s *Scheduler) ForceSync(ctx context.Context, roomID string) (*models.SyncResult, error) {
	return s.syncRoom(ctx, roomID, func(ctx context.Context) (*models.SyncResult, error) {
		return s.syncService.SyncRoomByID(ctx, roomID, SyncOptions{UseCache: false})
	})
}

// syncRoom serializes syncs of the same room and publishes the outcome.
func (s *Scheduler) syncRoom(ctx context.Context, roomID string, run func(context.Context) (*models.SyncResult, error)) (*models.SyncResult, error) {
	unlock := s.lockRoom(roomID)
	defer unlock()

	result, err := run(ctx)
	if errors.Is(err, ErrRoomNotConfigured) {
		return &models.SyncResult{RoomID: roomID, Error: err}, err
	}
	if result == nil {
		result = &models.SyncResult{RoomID: roomID, Error: err, SyncedAt: time.Now().UTC()}
	}

	if err != nil {
		s.logger.Warnw("room calendar sync failed", "room_id", roomID, "error", err)
		s.notify(func(n Notifier) { n.SyncFailed(roomID, err) })
		return result, err
	}

	s.lastSyncMu.Lock()
	s.lastSync[roomID] = result.SyncedAt
	s.lastSyncMu.Unlock()

	s.notify(func(n Notifier) { n.SyncCompleted(*result) })
	if len(result.Conflicts) > 0 {
		s.logger.Warnw("overlapping bookings detected", "room_id", roomID, "conflicts", len(result.Conflicts))
		s.notify(func(n Notifier) { n.ConflictsDetected(roomID, result.Conflicts) })
	}
	return result, nil
}

func (s *Scheduler) lockRoom(roomID string) func() {
	s.roomLocksMu.Lock()
	m, ok := s.roomLocks[roomID]
	if !ok {
		m = &sync.Mutex{}
		s.roomLocks[roomID] = m
	}
	s.roomLocksMu.Unlock()

	m.Lock()
	return m.Unlock
}

func (s *Scheduler) notify(fn func(Notifier)) {
	s.notifiersMu.RLock()
	notifiers := append([]Notifier(nil), s.notifiers...)
	s.notifiersMu.RUnlock()

	for _, n := range notifiers {
		fn(n)
	}
}

// InFlight reports whether a full pass is running.
func (s *Scheduler) InFlight() bool {
	return s.inFlight.Load()
}

// LastSync returns when the room last synced successfully.
func (s *Scheduler) LastSync(roomID string) (time.Time, bool) {
	s.lastSyncMu.RLock()
	defer s.lastSyncMu.RUnlock()
	t, ok := s.lastSync[roomID]
	return t, ok
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() SchedulerStatus {
	status := SchedulerStatus{
		InFlight: s.inFlight.Load(),
		Interval: s.interval.String(),
		LastSync: make(map[string]time.Time),
	}

	s.mu.Lock()
	if s.cron != nil {
		status.Running = true
		if next := s.cron.Entry(s.entryID).Next; !next.IsZero() {
			status.NextRun = &next
		}
	}
	s.mu.Unlock()

	s.lastSyncMu.RLock()
	for room, t := range s.lastSync {
		status.LastSync[room] = t
	}
	if !s.lastPass.IsZero() {
		lp := s.lastPass
		status.LastPass = &lp
	}
	s.lastSyncMu.RUnlock()

	return status
}
