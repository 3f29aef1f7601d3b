package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreated   = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "campus_dispatch", Name: "orders_created_total", Help: "Total engagements requested"}, []string{"kind"})
	OrdersAccepted  = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "campus_dispatch", Name: "orders_accepted_total", Help: "Total engagements accepted"}, []string{"kind"})
	OrdersCompleted = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "campus_dispatch", Name: "orders_completed_total", Help: "Total engagements completed"}, []string{"kind"})
	OrdersCancelled = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: "campus_dispatch", Name: "orders_cancelled_total", Help: "Total engagements cancelled"}, []string{"kind"})
	AcceptConflicts = promauto.NewCounter(prometheus.CounterOpts{Namespace: "campus_dispatch", Name: "accept_conflicts_total", Help: "Accept attempts lost to a concurrent winner"})

	LocationSamples = promauto.NewCounter(prometheus.CounterOpts{Namespace: "campus_dispatch", Name: "location_samples_total", Help: "Location samples recorded"})

	WSSessions = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "campus_dispatch", Name: "ws_sessions", Help: "Connected websocket sessions"})
	WSDropped  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "campus_dispatch", Name: "ws_events_dropped_total", Help: "Events dropped on slow subscriber channels"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "campus_dispatch", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "campus_dispatch",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
