package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScanCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "scan_cycles_total",
		Help:      "Total number of scan cycles executed",
	}, []string{"station_id"})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected on camera frames",
	}, []string{"station_id"})

	MatchResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "match_results_total",
		Help:      "Match attempts by outcome (known, unknown)",
	}, []string{"station_id", "outcome"})

	AttendanceEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "attendance_events_total",
		Help:      "Attendance recording attempts by result (created, updated, rejected)",
	}, []string{"result"})

	CooldownsEntered = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "cooldowns_entered_total",
		Help:      "Number of times a scan session entered post-match cooldown",
	}, []string{"station_id"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	GallerySize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "gallery_size",
		Help:      "Number of enrolled embeddings in the loaded gallery snapshot",
	})

	GalleryRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "facegate",
		Name:      "gallery_refreshes_total",
		Help:      "Number of gallery snapshot reloads",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "active_sessions",
		Help:      "Number of currently running scan sessions",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "facegate",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "facegate",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
