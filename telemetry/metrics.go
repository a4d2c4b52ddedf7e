// Package telemetry provides Prometheus metrics, logger setup and correlation-id aware logging helpers.
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
	LinesReceived      prometheus.Counter
	Interactions       prometheus.Counter
	Connections        prometheus.Counter
	IdleDisconnects    prometheus.Counter
	Ticks              prometheus.Counter
	TomatoesAwarded    prometheus.Counter
	AuthFailures       prometheus.Counter
	StoreWrites        prometheus.Counter
	StoreWriteFailures prometheus.Counter

	// Histograms (seconds)
	StoreWriteDuration prometheus.Observer

	// Gauges
	ParticipantsConnected prometheus.Gauge
	ParticipantsTracked   prometheus.Gauge
	TransportAlive        prometheus.Gauge // 1=alive,0=ended
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		LinesReceived = promauto.NewCounter(prometheus.CounterOpts{Name: "pomodoro_irc_lines_received_total", Help: "Number of inbound IRC lines processed"})
		Interactions = promauto.NewCounter(prometheus.CounterOpts{Name: "pomodoro_interactions_total", Help: "Number of chat messages attributed to a participant"})
		Connections = promauto.NewCounter(prometheus.CounterOpts{Name: "pomodoro_participant_connections_total", Help: "Number of disconnected-to-connected transitions"})
		IdleDisconnects = promauto.NewCounter(prometheus.CounterOpts{Name: "pomodoro_idle_disconnects_total", Help: "Number of participants disconnected by the idle sweep"})
		Ticks = promauto.NewCounter(prometheus.CounterOpts{Name: "pomodoro_ticks_total", Help: "Number of tomato ticks"})
		TomatoesAwarded = promauto.NewCounter(prometheus.CounterOpts{Name: "pomodoro_tomatoes_awarded_total", Help: "Number of tomatoes credited to connected participants"})
		AuthFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "pomodoro_auth_failures_total", Help: "Number of authentication failures reported by the chat server"})
		StoreWrites = promauto.NewCounter(prometheus.CounterOpts{Name: "pomodoro_store_writes_total", Help: "Number of snapshot writes"})
		StoreWriteFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "pomodoro_store_write_failures_total", Help: "Number of failed snapshot writes"})
		StoreWriteDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "pomodoro_store_write_duration_seconds", Help: "Snapshot write duration seconds", Buckets: prometheus.DefBuckets})
		ParticipantsConnected = promauto.NewGauge(prometheus.GaugeOpts{Name: "pomodoro_participants_connected", Help: "Current number of connected participants"})
		ParticipantsTracked = promauto.NewGauge(prometheus.GaugeOpts{Name: "pomodoro_participants_tracked", Help: "Current number of participants in the registry"})
		TransportAlive = promauto.NewGauge(prometheus.GaugeOpts{Name: "pomodoro_transport_alive", Help: "Chat transport alive=1 ended=0"})
	})
}

// inc increments c when metrics are initialized.
func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// IncLinesReceived counts one processed inbound line.
func IncLinesReceived() { inc(LinesReceived) }

// IncInteractions counts one attributed chat message.
func IncInteractions() { inc(Interactions) }

// IncConnections counts one participant connect transition.
func IncConnections() { inc(Connections) }

// IncAuthFailures counts one rejected login.
func IncAuthFailures() { inc(AuthFailures) }

// AddIdleDisconnects records n participants aged out by a sweep.
func AddIdleDisconnects(n int) {
	if IdleDisconnects != nil && n > 0 {
		IdleDisconnects.Add(float64(n))
	}
}

// RecordTick records a tick that credited awarded participants.
func RecordTick(awarded int) {
	inc(Ticks)
	if TomatoesAwarded != nil && awarded > 0 {
		TomatoesAwarded.Add(float64(awarded))
	}
}

// SetPresence records current connected and tracked participant counts.
func SetPresence(connected, tracked int) {
	if ParticipantsConnected != nil {
		ParticipantsConnected.Set(float64(connected))
	}
	if ParticipantsTracked != nil {
		ParticipantsTracked.Set(float64(tracked))
	}
}

// SetTransportAlive sets gauge to 1 if alive else 0.
func SetTransportAlive(alive bool) {
	if TransportAlive != nil {
		if alive {
			TransportAlive.Set(1)
		} else {
			TransportAlive.Set(0)
		}
	}
}

// CountStoreWrite records the outcome of a snapshot write.
func CountStoreWrite(err error) {
	inc(StoreWrites)
	if err != nil {
		inc(StoreWriteFailures)
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil. Store writes
// are timed into StoreWriteDuration this way.
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

// WithCorrelation returns a new context embedding correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
