// Package main is the entry point for the homestay booking backend.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/homestay-booking/backend/internal/api"
	"github.com/homestay-booking/backend/internal/availability"
	"github.com/homestay-booking/backend/internal/calendar"
	"github.com/homestay-booking/backend/internal/config"
	"github.com/homestay-booking/backend/internal/logging"
	"github.com/homestay-booking/backend/internal/metrics"
	"github.com/homestay-booking/backend/internal/storage"
	"github.com/homestay-booking/backend/internal/storage/memory"
	"github.com/homestay-booking/backend/internal/storage/models"
	"github.com/homestay-booking/backend/internal/storage/supabase"
	"github.com/homestay-booking/backend/internal/websocket"
	"go.uber.org/zap"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	demo := flag.Bool("demo", false, "Run against a seeded in-memory store")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *demo {
		cfg.Storage.Driver = config.DriverMemory
	}

	// Health check mode for container HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(cfg.Server.Addr); err != nil {
			log.Fatalf("Health check failed: %v", err)
		}
		os.Exit(0)
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		File:        cfg.Log.File,
		MaxSizeMB:   cfg.Log.MaxSizeMB,
		MaxBackups:  cfg.Log.MaxBackups,
		MaxAgeDays:  cfg.Log.MaxAgeDays,
		Development: cfg.Log.Development,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, *demo, logger); err != nil {
		logger.Fatalw("server failed", "error", err)
	}
}

func run(cfg *config.Config, demo bool, logger *zap.SugaredLogger) error {
	logger.Infow("starting homestay booking backend", "version", version, "storage", cfg.Storage.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	if demo {
		if err := seedDemo(ctx, store); err != nil {
			return fmt.Errorf("seeding demo data: %w", err)
		}
	}

	var m *metrics.Metrics
	var recorder calendar.MetricsRecorder
	if cfg.Metrics.Enabled {
		m = metrics.New("homestay")
		recorder = m
	}

	hub := websocket.NewHub(logger.Named("websocket"))
	go hub.Run(ctx)
	events := websocket.NewEventBroadcaster(hub)

	fetcher := calendar.NewHTTPFetcher(calendar.FetcherOptions{
		Timeout:   cfg.Sync.FetchTimeout,
		CacheTTL:  cfg.Sync.CacheTTL,
		ProxyURL:  cfg.Sync.ProxyURL,
		UserAgent: cfg.Sync.UserAgent,
	}, logger.Named("fetcher"))

	syncService := calendar.NewSyncService(
		store,
		fetcher,
		calendar.VanishedBookingPolicy(cfg.Sync.VanishedBookingPolicy),
		recorder,
		logger.Named("sync"),
	)

	scheduler := calendar.NewScheduler(syncService, calendar.SchedulerOptions{
		Interval:    cfg.Sync.Interval,
		Concurrency: cfg.Sync.Concurrency,
		SyncOnStart: cfg.Sync.SyncOnStart,
	}, recorder, logger.Named("scheduler"))
	scheduler.AddNotifier(events)

	if err := scheduler.Start(ctx); err != nil {
		return fmt.Errorf("starting calendar scheduler: %w", err)
	}
	defer scheduler.Stop()

	router := api.NewRouter(api.Services{
		Store:       store,
		SyncService: syncService,
		Scheduler:   scheduler,
		Checker:     availability.NewChecker(store.Bookings, store.BlockedDates, logger.Named("availability")),
		Hub:         hub,
		Events:      events,
		Metrics:     m,
		Logger:      logger.Named("http"),
	}, api.Options{
		StaticDir:      cfg.Server.StaticDir,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		MetricsPath:    cfg.Metrics.Path,
	})

	server := &http.Server{
		Addr:        cfg.Server.Addr,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Forced syncs answer only after the upstream fetch completes.
		WriteTimeout: cfg.Sync.FetchTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Infow("server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// openStore connects the configured persistence backend.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*storage.Store, func(), error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return memory.New().AsStore(), func() {}, nil

	case config.DriverSupabase:
		client, err := supabase.NewClient(cfg.Storage.SupabaseURL, cfg.Storage.SupabaseKey)
		if err != nil {
			return nil, nil, fmt.Errorf("creating supabase client: %w", err)
		}
		store := supabase.NewStore(client)
		if err := store.Health.Ping(ctx); err != nil {
			logger.Warnw("supabase not reachable at startup", "error", err)
		}
		return store, func() {}, nil

	default:
		db, err := storage.NewDB(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("opening database: %w", err)
		}
		if err := storage.RunMigrations(db, logger.Named("migrations")); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("running migrations: %w", err)
		}
		return storage.NewStore(db), func() { db.Close() }, nil
	}
}

// seedDemo adds a website booking and a manual block so the API has
// something to show without any upstream feed.
func seedDemo(ctx context.Context, store *storage.Store) error {
	today := time.Now().UTC()
	day := func(offset int) string { return today.AddDate(0, 0, offset).Format("2006-01-02") }

	if err := store.Bookings.Create(ctx, &models.Booking{
		RoomID:        "room-1",
		CheckInDate:   day(3),
		CheckOutDate:  day(6),
		GuestName:     "Demo Guest",
		Email:         "guest@example.com",
		NumGuests:     2,
		BookingStatus: models.BookingStatusConfirmed,
		PaymentStatus: models.PaymentStatusPaid,
		BookingSource: models.BookingSourceWebsite,
		TotalAmount:   360,
	}); err != nil {
		return err
	}

	return store.BlockedDates.Create(ctx, &models.BlockedDate{
		RoomID:    "room-1",
		StartDate: day(10),
		EndDate:   day(12),
		Reason:    "Maintenance",
		Source:    models.BlockSourceManual,
	})
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	url := "http://localhost" + addr + "/api/health"
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
