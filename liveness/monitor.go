// Package liveness ages idle participants out of the presence registry.
package liveness

import (
	"context"
	"log/slog"
	"time"
)

// DefaultPeriod is the sweep period used when none is configured.
const DefaultPeriod = 60 * time.Second

// Sweeper disconnects participants idle for longer than maxIdle.
type Sweeper interface {
	SweepIdle(maxIdle time.Duration) int
}

// Monitor periodically sweeps a registry. Shutdown latency is bounded by one in-flight
// sweep since Run exits as soon as its context is cancelled.
type Monitor struct {
	sweeper Sweeper
	timeout time.Duration
	period  time.Duration
	log     *slog.Logger
}

// New creates a monitor. A non-positive period falls back to DefaultPeriod.
func New(sweeper Sweeper, timeout, period time.Duration, log *slog.Logger) *Monitor {
	if period <= 0 {
		period = DefaultPeriod
	}
	if log == nil {
		log = slog.Default()
	}
	return &Monitor{sweeper: sweeper, timeout: timeout, period: period, log: log.With(slog.String("component", "liveness"))}
}

// Enabled is false for a non-positive idle timeout.
func (m *Monitor) Enabled() bool {
	return m.timeout > 0
}

// Run sweeps every period until ctx is done. A disabled monitor returns immediately.
func (m *Monitor) Run(ctx context.Context) error {
	if !m.Enabled() {
		m.log.Info("idle sweep disabled")
		return nil
	}
	m.log.Info("starting idle sweep", slog.Duration("timeout", m.timeout), slog.Duration("period", m.period))
	ticker := time.NewTicker(m.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if n := m.sweeper.SweepIdle(m.timeout); n > 0 {
				m.log.Info("idle participants disconnected", slog.Int("count", n))
			}
		}
	}
}
