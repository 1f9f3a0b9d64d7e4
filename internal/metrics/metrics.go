package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mist_connections_active",
		Help: "The current number of open WebSocket connections.",
	})
	TotalConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mist_connections_total",
		Help: "The total number of WebSocket connections accepted.",
	})
	RejectedConnections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mist_connections_rejected_total",
		Help: "Upgrades refused because max_connections was reached.",
	})
	ConnectionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mist_connections_closed_total",
		Help: "Connections closed, by cause.",
	}, []string{"cause"})

	// Router metrics
	FramesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mist_frames_received_total",
		Help: "Frames received from clients, by frame type.",
	}, []string{"kind"})
	FramesRelayed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mist_frames_relayed_total",
		Help: "Frames forwarded verbatim to a target peer.",
	})
	FramesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mist_frames_dropped_total",
		Help: "Frames not delivered, by reason.",
	}, []string{"reason"})
	Matches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mist_matches_total",
		Help: "signaling_response frames sent to requesters.",
	})
	WaitingPool = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mist_waiting_pool_size",
		Help: "Identifiers currently waiting to be matched.",
	})
	Sessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mist_sessions_registered",
		Help: "Connections that have registered an identifier.",
	})
	Evictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mist_peer_evictions_total",
		Help: "Peers removed after a failed send.",
	})

	// Evaluation metrics
	EvaluationReports = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mist_evaluation_reports_total",
		Help: "Location reports recorded into the evaluation log.",
	})
	EvaluationBuckets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mist_evaluation_buckets",
		Help: "Per-second buckets currently retained in memory.",
	})
	EvaluationBucketsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mist_evaluation_buckets_evicted_total",
		Help: "Buckets dropped by the retention policy.",
	})
	Flushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mist_evaluation_flushes_total",
		Help: "Evaluation log flushes, by sink and result.",
	}, []string{"sink", "result"})
	FlushDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mist_evaluation_flush_duration_seconds",
		Help:    "Time spent writing the evaluation log, by sink.",
		Buckets: prometheus.DefBuckets,
	}, []string{"sink"})
)

// Flush results.
const (
	ResultOK    = "ok"
	ResultError = "error"
)
