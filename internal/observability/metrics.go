package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesRequested      = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "rides_requested_total", Help: "Total number of rides created"})
	RideTransitions     = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "ride_transitions_total", Help: "Ride status transitions by target status"}, []string{"status"})
	TransitionConflicts = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "ride_transition_conflicts_total", Help: "Conditional updates that lost to a concurrent writer"}, []string{"operation"})
	Notifications       = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "notifications_total", Help: "Real-time events by outcome"}, []string{"event", "result"})
	BroadcastJobs       = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "broadcast_jobs_total", Help: "New-ride broadcast jobs by outcome"}, []string{"result"})
	BroadcastDrivers    = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "ride_hailing", Name: "broadcast_drivers", Help: "Drivers matched per broadcast", Buckets: []float64{0, 1, 2, 5, 10, 20, 50}})
	BroadcastLatency    = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "ride_hailing", Name: "broadcast_latency_seconds", Help: "Broadcast job latency seconds"})
	LocationUpdates     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "ride_hailing", Name: "driver_location_updates_total", Help: "Driver location updates received"})
	SessionsActive      = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "ride_hailing", Name: "ws_sessions_active", Help: "Open websocket sessions"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "ride_hailing", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ride_hailing",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
