package observability

import "github.com/prometheus/client_golang/prometheus"

// Domain metrics. HTTP-level metrics live in the middleware package.
var (
	// UpstreamAttempts counts gateway calls by model, attempt kind
	// (primary|fallback|completion) and outcome (ok|error).
	UpstreamAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_attempts_total",
			Help: "Upstream AI gateway calls by model, attempt and outcome.",
		},
		[]string{"model", "attempt", "outcome"},
	)

	// UpstreamLatency records time to response headers.
	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_time_to_headers_seconds",
			Help:    "Time from request start to upstream response headers.",
			Buckets: []float64{.1, .25, .5, 1, 2, 5, 10, 20, 40},
		},
		[]string{"model"},
	)

	// QuotaRejections counts requests refused by the per-user quota.
	QuotaRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_rejections_total",
			Help: "Requests rejected by the fixed-window quota, by purpose.",
		},
		[]string{"purpose"},
	)

	// VoiceSessions gauges open voice relays.
	VoiceSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "voice_sessions_active",
			Help: "Currently open realtime voice relays.",
		},
	)

	// VoiceFrames counts relayed frames by direction (client_to_upstream|upstream_to_client).
	VoiceFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voice_frames_total",
			Help: "Frames relayed by the voice bridge.",
		},
		[]string{"direction"},
	)

	// UsageRecords counts usage log writes by result (ok|error).
	UsageRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "usage_records_total",
			Help: "Usage log entries persisted, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(UpstreamAttempts, UpstreamLatency, QuotaRejections, VoiceSessions, VoiceFrames, UsageRecords)
}
