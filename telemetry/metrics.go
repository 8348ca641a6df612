// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	SpawnsCreated    prometheus.Counter
	CatchAttempts    prometheus.Counter
	CatchSuccesses   prometheus.Counter
	ShinyCaptures    prometheus.Counter
	MessagesSent     prometheus.Counter
	MessagesDropped  prometheus.Counter
	SendRateLimited  prometheus.Counter
	ChatReconnects   prometheus.Counter
	TokenRefreshes   prometheus.Counter
	TokenRefreshErrs prometheus.Counter

	// Histograms (seconds)
	SendDuration  prometheus.Observer
	CatchDuration prometheus.Observer

	// Gauges
	OutboundQueueDepth prometheus.Gauge
	SpawnActiveGauge   prometheus.Gauge // 1=a spawn is catchable, 0=none
	ChatConnectedGauge prometheus.Gauge // 1=subscribed to the chat stream
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		SpawnsCreated = promauto.NewCounter(prometheus.CounterOpts{Name: "pokecatch_spawns_created_total", Help: "Number of spawns created"})
		CatchAttempts = promauto.NewCounter(prometheus.CounterOpts{Name: "pokecatch_catch_attempts_total", Help: "Number of catch attempts processed"})
		CatchSuccesses = promauto.NewCounter(prometheus.CounterOpts{Name: "pokecatch_catch_successes_total", Help: "Number of successful captures"})
		ShinyCaptures = promauto.NewCounter(prometheus.CounterOpts{Name: "pokecatch_shiny_captures_total", Help: "Number of shiny captures"})
		MessagesSent = promauto.NewCounter(prometheus.CounterOpts{Name: "pokecatch_messages_sent_total", Help: "Number of chat messages delivered"})
		MessagesDropped = promauto.NewCounter(prometheus.CounterOpts{Name: "pokecatch_messages_dropped_total", Help: "Number of chat messages dropped after exhausting retries"})
		SendRateLimited = promauto.NewCounter(prometheus.CounterOpts{Name: "pokecatch_send_rate_limited_total", Help: "Number of rate-limited send attempts"})
		ChatReconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "pokecatch_chat_reconnects_total", Help: "Number of chat stream reconnect attempts"})
		TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{Name: "pokecatch_token_refreshes_total", Help: "Number of successful credential refreshes"})
		TokenRefreshErrs = promauto.NewCounter(prometheus.CounterOpts{Name: "pokecatch_token_refresh_errors_total", Help: "Number of failed credential refreshes"})
		SendDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "pokecatch_send_duration_seconds", Help: "Outbound send duration seconds", Buckets: prometheus.DefBuckets})
		CatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "pokecatch_catch_duration_seconds", Help: "Catch transaction duration seconds", Buckets: prometheus.DefBuckets})
		OutboundQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{Name: "pokecatch_outbound_queue_depth", Help: "Current number of queued outbound messages"})
		SpawnActiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "pokecatch_spawn_active", Help: "Active spawn present=1 absent=0"})
		ChatConnectedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "pokecatch_chat_connected", Help: "Chat stream subscribed=1 disconnected=0"})
	})
}

// SetSpawnActive flips the active-spawn gauge.
func SetSpawnActive(active bool) {
	if SpawnActiveGauge != nil {
		if active {
			SpawnActiveGauge.Set(1)
		} else {
			SpawnActiveGauge.Set(0)
		}
	}
}

// SetChatConnected flips the chat connection gauge.
func SetChatConnected(connected bool) {
	if ChatConnectedGauge != nil {
		if connected {
			ChatConnectedGauge.Set(1)
		} else {
			ChatConnectedGauge.Set(0)
		}
	}
}

// SetQueueDepth records the current outbound queue length.
func SetQueueDepth(n int) {
	if OutboundQueueDepth != nil {
		OutboundQueueDepth.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding a correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns the default logger annotated with the context's
// correlation id when present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
