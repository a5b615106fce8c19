package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talentloop_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "talentloop_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	interviewsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talentloop_interviews_created_total",
			Help: "Total interviews created by tenant and medium",
		},
		[]string{"tenant_id", "medium"},
	)

	notificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talentloop_notifications_sent_total",
			Help: "Total notifications sent by kind and channel",
		},
		[]string{"kind", "channel"},
	)

	confirmations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talentloop_confirmations_total",
			Help: "Candidate confirmation attempts by outcome",
		},
		[]string{"outcome"},
	)

	sweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "talentloop_sweeps_total",
			Help: "Total sweep passes executed",
		},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "talentloop_sweep_duration_seconds",
			Help:    "Duration of one sweep pass",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60},
		},
	)

	interviewsCompleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "talentloop_interviews_completed_total",
			Help: "Interviews auto-completed by the sweeper",
		},
	)

	sweepErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "talentloop_sweep_errors_total",
			Help: "Per-interview errors accumulated across sweep passes",
		},
	)

	rateLimitRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "talentloop_rate_limit_rejections_total",
			Help: "Requests rejected by rate limiter",
		},
		[]string{"key"},
	)

	idempotencyHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "talentloop_idempotency_hits_total",
			Help: "Scheduling requests served from idempotency cache",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordInterviewCreated records a new interview
func RecordInterviewCreated(tenantID, medium string) {
	interviewsCreated.WithLabelValues(tenantID, medium).Inc()
}

// RecordNotificationSent records one outbound notification
func RecordNotificationSent(kind, channel string) {
	notificationsSent.WithLabelValues(kind, channel).Inc()
}

// RecordConfirmation records a confirmation attempt outcome
// (confirmed, expired, not_found, slot_mismatch, conflict)
func RecordConfirmation(outcome string) {
	confirmations.WithLabelValues(outcome).Inc()
}

// RecordSweep records one completed sweep pass
func RecordSweep(duration time.Duration) {
	sweepsTotal.Inc()
	sweepDuration.Observe(duration.Seconds())
}

// RecordInterviewCompleted records a sweeper auto-completion
func RecordInterviewCompleted() {
	interviewsCompleted.Inc()
}

// RecordSweepError records one per-interview sweep error
func RecordSweepError() {
	sweepErrors.Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection(key string) {
	rateLimitRejections.WithLabelValues(key).Inc()
}

// RecordIdempotencyHit records a cached scheduling-request replay
func RecordIdempotencyHit() {
	idempotencyHits.Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware returns HTTP middleware that records request metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		RecordRequest(r.Method, r.URL.Path, wrapped.status, time.Since(start))
	})
}
