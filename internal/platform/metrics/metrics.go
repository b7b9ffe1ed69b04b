package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the danmu engine.
type Metrics struct {
	registry               *prometheus.Registry
	requestsTotal          prometheus.Counter
	errorsTotal            prometheus.Counter
	commentsCreatedTotal   prometheus.Counter
	moderationTotal        *prometheus.CounterVec
	cacheHitsTotal         prometheus.Counter
	cacheMissesTotal       prometheus.Counter
	eventsDroppedTotal     prometheus.Counter
	forbiddenAttemptsTotal prometheus.Counter
	activeRooms            prometheus.Gauge
	activeSubscribers      prometheus.Gauge
}

// New creates and registers Prometheus metrics for the danmu engine.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "danmu_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "danmu_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	commentsCreatedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "danmu_comments_created_total",
		Help: "Total number of overlay comments accepted",
	})
	moderationTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "danmu_moderation_transitions_total",
		Help: "Total number of successful moderation transitions by target status",
	}, []string{"status"})
	cacheHitsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "danmu_cache_hits_total",
		Help: "Total number of cache hits on window and stats reads",
	})
	cacheMissesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "danmu_cache_misses_total",
		Help: "Total number of cache misses on window and stats reads",
	})
	eventsDroppedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "danmu_room_events_dropped_total",
		Help: "Total number of room events dropped on slow-subscriber overflow",
	})
	forbiddenAttemptsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "danmu_forbidden_attempts_total",
		Help: "Total number of rejected unauthorized moderation attempts",
	})
	activeRooms := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "danmu_active_rooms",
		Help: "Number of broadcast rooms with at least one subscriber",
	})
	activeSubscribers := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "danmu_active_subscribers",
		Help: "Number of currently connected room subscribers",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		commentsCreatedTotal,
		moderationTotal,
		cacheHitsTotal,
		cacheMissesTotal,
		eventsDroppedTotal,
		forbiddenAttemptsTotal,
		activeRooms,
		activeSubscribers,
	)

	return &Metrics{
		registry:               registry,
		requestsTotal:          requestsTotal,
		errorsTotal:            errorsTotal,
		commentsCreatedTotal:   commentsCreatedTotal,
		moderationTotal:        moderationTotal,
		cacheHitsTotal:         cacheHitsTotal,
		cacheMissesTotal:       cacheMissesTotal,
		eventsDroppedTotal:     eventsDroppedTotal,
		forbiddenAttemptsTotal: forbiddenAttemptsTotal,
		activeRooms:            activeRooms,
		activeSubscribers:      activeSubscribers,
	}
}

// Nil-safe increment helpers so components can run without metrics in tests.

func (m *Metrics) IncRequests() {
	if m != nil {
		m.requestsTotal.Inc()
	}
}

func (m *Metrics) IncErrors() {
	if m != nil {
		m.errorsTotal.Inc()
	}
}

func (m *Metrics) IncCommentsCreated() {
	if m != nil {
		m.commentsCreatedTotal.Inc()
	}
}

func (m *Metrics) IncModeration(status string) {
	if m != nil {
		m.moderationTotal.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) IncCacheHits() {
	if m != nil {
		m.cacheHitsTotal.Inc()
	}
}

func (m *Metrics) IncCacheMisses() {
	if m != nil {
		m.cacheMissesTotal.Inc()
	}
}

func (m *Metrics) IncEventsDropped() {
	if m != nil {
		m.eventsDroppedTotal.Inc()
	}
}

func (m *Metrics) IncForbiddenAttempts() {
	if m != nil {
		m.forbiddenAttemptsTotal.Inc()
	}
}

func (m *Metrics) SetActiveRooms(n int) {
	if m != nil {
		m.activeRooms.Set(float64(n))
	}
}

func (m *Metrics) SetActiveSubscribers(n int) {
	if m != nil {
		m.activeSubscribers.Set(float64(n))
	}
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. active rooms and subscribers).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
