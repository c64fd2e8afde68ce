package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusObserver turns relay events into Prometheus collectors held in a
// private registry.
type PrometheusObserver struct {
	registry *prometheus.Registry

	SessionsActive  prometheus.Gauge
	SessionsTotal   *prometheus.CounterVec
	SessionDuration prometheus.Histogram
	TurnsTotal      *prometheus.CounterVec
	TurnDuration    *prometheus.HistogramVec
	AudioChunks     prometheus.Counter
	UpstreamErrors  *prometheus.CounterVec
	RateLimitHits   *prometheus.CounterVec
}

func NewPrometheusObserver(namespace string) *PrometheusObserver {
	if namespace == "" {
		namespace = "voxrelay"
	}
	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "sessions_active",
		Help:      "Number of caller sessions currently open",
	})
	sessionsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Total caller sessions by outcome",
	}, []string{"outcome"})
	sessionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_duration_seconds",
		Help:      "Caller session duration in seconds",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})
	turnsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "turns_total",
		Help:      "Total finalized turns by reply route",
	}, []string{"route"})
	turnDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "turn_duration_seconds",
		Help:      "Time from final transcript to end of synthesis",
		Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	}, []string{"route"})
	audioChunks := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "synthesis_chunks_total",
		Help:      "Total synthesized audio chunks relayed to callers",
	})
	upstreamErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_errors_total",
		Help:      "Total upstream failures by reason",
	}, []string{"reason"})
	rateLimitHits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limit_hits_total",
		Help:      "Total provider rate limit responses and breaker denials",
	}, []string{"provider", "kind"})

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		turnsTotal,
		turnDuration,
		audioChunks,
		upstreamErrors,
		rateLimitHits,
	)

	return &PrometheusObserver{
		registry:        registry,
		SessionsActive:  sessionsActive,
		SessionsTotal:   sessionsTotal,
		SessionDuration: sessionDuration,
		TurnsTotal:      turnsTotal,
		TurnDuration:    turnDuration,
		AudioChunks:     audioChunks,
		UpstreamErrors:  upstreamErrors,
		RateLimitHits:   rateLimitHits,
	}
}

// Handler returns an HTTP handler for the metrics endpoint.
func (p *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry exposes the private registry.
func (p *PrometheusObserver) Registry() *prometheus.Registry { return p.registry }

func (p *PrometheusObserver) RecordEvent(ev MetricsEvent) {
	switch ev.Name {
	case EventSessionStart:
		p.SessionsActive.Inc()
	case EventSessionEnd:
		p.SessionsActive.Dec()
		p.SessionsTotal.WithLabelValues(tag(ev, TagOutcome, "ok")).Inc()
		if ev.Value > 0 {
			p.SessionDuration.Observe(ev.Value)
		}
	case EventTurnRouted:
		p.TurnsTotal.WithLabelValues(tag(ev, TagRoute, "chat")).Inc()
	case EventTurnDone:
		p.TurnDuration.WithLabelValues(tag(ev, TagRoute, "chat")).Observe(ev.Value)
	case EventTTSChunk:
		p.AudioChunks.Inc()
	case EventUpstreamError, EventCredentialMiss:
		reason := tag(ev, TagReason, "unknown")
		if ev.Name == EventCredentialMiss {
			reason = EventCredentialMiss
		}
		p.UpstreamErrors.WithLabelValues(reason).Inc()
	case EventRateLimit:
		p.RateLimitHits.WithLabelValues(tag(ev, TagProvider, "unknown"), "rate_limit").Inc()
	case EventBreakerDenied:
		p.RateLimitHits.WithLabelValues(tag(ev, TagProvider, "unknown"), "breaker_denied").Inc()
	}
}

func tag(ev MetricsEvent, key, fallback string) string {
	if v := ev.Tags[key]; v != "" {
		return v
	}
	return fallback
}
