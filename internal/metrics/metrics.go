// Package metrics declares the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skillswap_http_requests_total",
		Help: "HTTP requests served, by route pattern, method and status.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "skillswap_http_request_duration_seconds",
		Help:    "HTTP request latency by route pattern.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	ProgressResets = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skillswap_progress_resets_total",
		Help: "Weekly progress resets, by trigger (monday_update or schedule).",
	}, []string{"trigger"})

	MeetingTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skillswap_meeting_transitions_total",
		Help: "Meeting request state transitions, by resulting state.",
	}, []string{"state"})

	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skillswap_media_uploads_total",
		Help: "Media uploads, by kind and outcome.",
	}, []string{"kind", "outcome"})

	MailDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "skillswap_mail_deliveries_total",
		Help: "Verification mail deliveries, by outcome.",
	}, []string{"outcome"})

	ProbeQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "skillswap_duration_probe_queue_depth",
		Help: "Videos waiting for a duration probe.",
	})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
