// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	apihandlers "github.com/homestay-booking/backend/internal/api/handlers"
	"github.com/homestay-booking/backend/internal/api/middleware"
	"github.com/homestay-booking/backend/internal/availability"
	"github.com/homestay-booking/backend/internal/calendar"
	"github.com/homestay-booking/backend/internal/metrics"
	"github.com/homestay-booking/backend/internal/storage"
	"github.com/homestay-booking/backend/internal/websocket"
	"go.uber.org/zap"
)

// Services are the dependencies the HTTP handlers are built from.
type Services struct {
	Store       *storage.Store
	SyncService *calendar.SyncService
	Scheduler   *calendar.Scheduler
	Checker     *availability.Checker
	Hub         *websocket.Hub
	Events      *websocket.EventBroadcaster
	// Metrics is optional.
	Metrics *metrics.Metrics
	Logger  *zap.SugaredLogger
}

// Options controls the HTTP surface.
type Options struct {
	StaticDir      string
	AllowedOrigins []string
	MetricsPath    string
}

// NewRouter creates and configures the HTTP router with all API routes,
// wrapped in CORS handling for the public booking frontend.
func NewRouter(svc Services, opts Options) http.Handler {
	r := mux.NewRouter()

	var requests middleware.RequestRecorder
	var checks apihandlers.AvailabilityRecorder
	if svc.Metrics != nil {
		requests = svc.Metrics
		checks = svc.Metrics
	}

	// Apply global middleware
	r.Use(middleware.Logging(svc.Logger, requests))
	r.Use(middleware.ErrorRecovery(svc.Logger))

	if svc.Metrics != nil && opts.MetricsPath != "" {
		r.Handle(opts.MetricsPath, svc.Metrics.Handler()).Methods("GET")
	}

	api := r.PathPrefix("/api").Subrouter()

	// Health and status endpoints
	api.HandleFunc("/health", apihandlers.HealthCheck(svc.Store)).Methods("GET")
	api.HandleFunc("/status", apihandlers.Status(svc.Store, svc.SyncService, svc.Scheduler, svc.Hub)).Methods("GET")

	// WebSocket endpoint
	api.HandleFunc("/ws", apihandlers.WebSocketUpgrade(svc.Hub, opts.AllowedOrigins, svc.Logger)).Methods("GET")

	// Booking endpoints
	api.HandleFunc("/bookings", apihandlers.ListBookings(svc.Store)).Methods("GET")
	api.HandleFunc("/bookings", apihandlers.CreateBooking(svc.Store, svc.Checker, svc.Events, svc.Logger)).Methods("POST")
	api.HandleFunc("/bookings/{id}", apihandlers.GetBooking(svc.Store)).Methods("GET")
	api.HandleFunc("/bookings/{id}", apihandlers.UpdateBooking(svc.Store, svc.Checker, svc.Events)).Methods("PATCH")

	// Blocked date endpoints
	api.HandleFunc("/rooms/{roomID}/blocked-dates", apihandlers.ListBlockedDates(svc.Store)).Methods("GET")
	api.HandleFunc("/rooms/{roomID}/blocked-dates", apihandlers.CreateBlockedDate(svc.Store, svc.Events)).Methods("POST")
	api.HandleFunc("/blocked-dates/{id}", apihandlers.DeleteBlockedDate(svc.Store, svc.Events)).Methods("DELETE")

	// Availability and calendar rendering
	api.HandleFunc("/rooms/{roomID}/availability", apihandlers.CheckAvailability(svc.Checker, checks, svc.Logger)).Methods("GET")
	api.HandleFunc("/rooms/{roomID}/events", apihandlers.RoomEvents(svc.Store)).Methods("GET")

	// Airbnb integration endpoints
	api.HandleFunc("/integrations", apihandlers.ListIntegrations(svc.SyncService)).Methods("GET")
	api.HandleFunc("/rooms/{roomID}/integration", apihandlers.PutIntegration(svc.Store, svc.SyncService, svc.Events)).Methods("PUT")
	api.HandleFunc("/rooms/{roomID}/integration", apihandlers.DeleteIntegration(svc.Store, svc.SyncService, svc.Events, svc.Logger)).Methods("DELETE")

	// Sync endpoints
	api.HandleFunc("/rooms/{roomID}/sync", apihandlers.SyncRoom(svc.Scheduler)).Methods("POST")
	api.HandleFunc("/rooms/{roomID}/unblock", apihandlers.QuickUnblock(svc.Store, svc.Scheduler, svc.Events, svc.Logger)).Methods("POST")
	api.HandleFunc("/sync", apihandlers.SyncAll(svc.Scheduler)).Methods("POST")
	api.HandleFunc("/sync/status", apihandlers.SyncStatus(svc.Scheduler, svc.SyncService)).Methods("GET")

	// Serve static frontend files
	if opts.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(opts.StaticDir)))
	}

	cors := handlers.CORS(
		handlers.AllowedOrigins(opts.AllowedOrigins),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)
	return cors(r)
}
