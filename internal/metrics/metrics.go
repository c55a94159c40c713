// Package metrics exposes Prometheus instrumentation for calendar sync,
// availability checks and the HTTP API.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all prometheus metrics on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	SyncPasses         *prometheus.CounterVec
	SyncPassDuration   prometheus.Histogram
	SyncPassRooms      prometheus.Gauge
	RoomSyncs          *prometheus.CounterVec
	RoomSyncDuration   prometheus.Histogram
	ReconcileWrites    *prometheus.CounterVec
	AvailabilityChecks *prometheus.CounterVec
	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
}

// New creates the metrics set under the given namespace.
func New(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		SyncPasses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_sync_passes_total",
			Help:      "Full calendar sync passes by outcome.",
		}, []string{"result"}),
		SyncPassDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "calendar_sync_pass_duration_seconds",
			Help:      "Time taken by a full sync pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		SyncPassRooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "calendar_sync_pass_rooms",
			Help:      "Rooms synced by the most recent full pass.",
		}),
		RoomSyncs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_room_syncs_total",
			Help:      "Room calendar syncs by outcome.",
		}, []string{"result"}),
		RoomSyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "calendar_room_sync_duration_seconds",
			Help:      "Time taken to fetch and reconcile one room.",
			Buckets:   prometheus.DefBuckets,
		}),
		ReconcileWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calendar_reconcile_writes_total",
			Help:      "Rows written by reconciliation.",
		}, []string{"table", "op"}),
		AvailabilityChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_checks_total",
			Help:      "Availability checks by reason.",
		}, []string{"reason", "degraded"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RoomSynced records the outcome of one room sync.
func (m *Metrics) RoomSynced(err error, duration time.Duration) {
	result := "success"
	if err != nil {
		result = "error"
	}
	m.RoomSyncs.WithLabelValues(result).Inc()
	m.RoomSyncDuration.Observe(duration.Seconds())
}

// ReconcileWrite counts a row written by reconciliation.
func (m *Metrics) ReconcileWrite(table, op string) {
	m.ReconcileWrites.WithLabelValues(table, op).Inc()
}

// SyncPassCompleted records a finished full pass.
func (m *Metrics) SyncPassCompleted(rooms int, duration time.Duration) {
	m.SyncPasses.WithLabelValues("completed").Inc()
	m.SyncPassRooms.Set(float64(rooms))
	m.SyncPassDuration.Observe(duration.Seconds())
}

// SyncPassSkipped records a tick skipped because a pass was still running.
func (m *Metrics) SyncPassSkipped() {
	m.SyncPasses.WithLabelValues("skipped").Inc()
}

// AvailabilityChecked records an availability decision.
func (m *Metrics) AvailabilityChecked(reason string, degraded bool) {
	m.AvailabilityChecks.WithLabelValues(reason, strconv.FormatBool(degraded)).Inc()
}

// HTTPRequest records a served request.
func (m *Metrics) HTTPRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
