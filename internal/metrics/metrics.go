package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applytrack_http_requests_total",
			Help: "Total HTTP requests by method, route, and status",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "applytrack_http_request_duration_seconds",
			Help:    "HTTP request latency distribution",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "route"},
	)

	statusTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applytrack_status_transitions_total",
			Help: "Application status transitions by destination status and result",
		},
		[]string{"status", "result"},
	)

	notificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applytrack_notifications_created_total",
			Help: "Notifications persisted by type",
		},
		[]string{"type"},
	)

	emailDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applytrack_email_deliveries_total",
			Help: "Email delivery attempts by template and result",
		},
		[]string{"template", "result"},
	)

	emailDeliveryLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "applytrack_email_delivery_seconds",
			Help:    "Time spent in the email channel per attempt",
			Buckets: []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		},
		[]string{"channel"},
	)

	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applytrack_events_published_total",
			Help: "Domain events published by transport, kind, and result",
		},
		[]string{"transport", "kind", "result"},
	)

	remindersDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "applytrack_reminders_dispatched_total",
			Help: "Reminder notifications dispatched by the sweep",
		},
		[]string{"kind"},
	)

	idempotencyReplays = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "applytrack_idempotency_replays_total",
			Help: "Transition responses served from the idempotency cache",
		},
	)

	rateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "applytrack_rate_limit_rejections_total",
			Help: "Requests rejected by the rate limiter",
		},
	)

	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "applytrack_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)
)

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordRequest records HTTP request metrics
func RecordRequest(method, route string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordTransition records the outcome of a status transition
func RecordTransition(status, result string) {
	statusTransitions.WithLabelValues(status, result).Inc()
}

// RecordNotificationCreated counts a persisted notification
func RecordNotificationCreated(notificationType string) {
	notificationsCreated.WithLabelValues(notificationType).Inc()
}

// RecordEmailDelivery records an email attempt; result is sent, failed or skipped
func RecordEmailDelivery(template, result string) {
	emailDeliveries.WithLabelValues(template, result).Inc()
}

// RecordEmailLatency records time spent inside a delivery channel
func RecordEmailLatency(channel string, d time.Duration) {
	emailDeliveryLatency.WithLabelValues(channel).Observe(d.Seconds())
}

// RecordEventPublished records a domain event hand-off
func RecordEventPublished(transport, kind, result string) {
	eventsPublished.WithLabelValues(transport, kind, result).Inc()
}

// RecordReminder counts reminders dispatched by the sweep
func RecordReminder(kind string) {
	remindersDispatched.WithLabelValues(kind).Inc()
}

// RecordIdempotencyReplay records a replayed transition response
func RecordIdempotencyReplay() {
	idempotencyReplays.Inc()
}

// RecordRateLimitRejection records a rate limit rejection
func RecordRateLimitRejection() {
	rateLimitRejections.Inc()
}

// SetBreakerState publishes a circuit breaker state
func SetBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
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

// Middleware returns HTTP middleware that records request metrics. The
// chi route pattern is used as label so ids do not explode cardinality.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		RecordRequest(r.Method, route, wrapped.status, time.Since(start))
	})
}
