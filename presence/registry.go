// Package presence tracks which chat participants are active and how many tomatoes each
// has completed.
//
// A Registry is shared by the chat receive loop, the idle sweep and caller commands. Every
// operation holds a single mutex for its whole duration, including the callbacks it fires
// and the snapshot write it triggers, so observers never see a half-applied transition and
// store writes land in the order the transitions happened.
package presence

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/onnwee/pomodorotteux/errs"
	"github.com/onnwee/pomodorotteux/telemetry"
)

// Registry is the mutex-guarded participant map.
type Registry struct {
	mu           sync.Mutex
	participants map[string]*Participant
	// closed is set by Close; later interactions are ignored.
	closed bool

	callbacks Callbacks
	saver     Saver
	now       func() time.Time
	logger    *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithCallbacks sets the transition observer.
func WithCallbacks(cb Callbacks) Option {
	return func(r *Registry) {
		if cb != nil {
			r.callbacks = cb
		}
	}
}

// WithSaver sets where archived snapshots are written. Without one, saves are no-ops.
func WithSaver(s Saver) Option {
	return func(r *Registry) { r.saver = s }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}

// New builds a registry from a loaded snapshot. Presence never survives a restart, so
// every participant starts disconnected.
func New(initial Snapshot, opts ...Option) *Registry {
	r := &Registry{
		participants: make(map[string]*Participant, len(initial)),
		callbacks:    NopCallbacks{},
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(slog.String("component", "presence"))
	for pseudo, p := range initial.Disconnected() {
		p.Pseudo = pseudo
		r.participants[pseudo] = &p
	}
	r.publishLocked()
	return r
}

// DeclareInteraction records chat activity from pseudo. A disconnected (or new)
// participant becomes connected, fires OnConnected then OnScoreUpdate and triggers a save.
// The returned error is a persistence failure; the transition is kept regardless. After
// Close it does nothing.
func (r *Registry) DeclareInteraction(pseudo string) error {
	if pseudo == "" {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		r.logger.Debug("interaction after close ignored", slog.String("pseudo", pseudo))
		return nil
	}

	telemetry.IncInteractions()
	p, ok := r.participants[pseudo]
	if !ok {
		p = &Participant{Pseudo: pseudo}
		r.participants[pseudo] = p
	}
	p.LastInteraction = r.now()
	if p.Connected {
		return nil
	}

	p.Connected = true
	telemetry.IncConnections()
	r.publishLocked()
	r.logger.Info("participant connected", slog.String("pseudo", pseudo), slog.Int("total", p.Total()))

	snap := r.snapshotLocked()
	r.callbacks.OnConnected(pseudo, snap)
	r.callbacks.OnScoreUpdate(snap)
	return r.saveLocked()
}

// TickConnected credits one tomato to every connected participant, fires OnScoreUpdate
// and saves. Disconnected participants are untouched.
func (r *Registry) TickConnected() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	awarded := 0
	for _, p := range r.participants {
		if p.Connected {
			p.PendingCount++
			awarded++
		}
	}
	telemetry.RecordTick(awarded)
	r.logger.Debug("tick", slog.Int("awarded", awarded))

	r.callbacks.OnScoreUpdate(r.snapshotLocked())
	return r.saveLocked()
}

// SweepIdle disconnects, with callback, every connected participant idle for longer than
// maxIdle and returns how many were disconnected. Participants are visited in pseudo order.
func (r *Registry) SweepIdle(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	idle := lo.Filter(lo.Values(r.participants), func(p *Participant, _ int) bool {
		return p.Connected && now.Sub(p.LastInteraction) > maxIdle
	})
	sort.Slice(idle, func(i, j int) bool { return idle[i].Pseudo < idle[j].Pseudo })

	for _, p := range idle {
		r.disconnectLocked(p.Pseudo, true)
	}
	telemetry.AddIdleDisconnects(len(idle))
	return len(idle)
}

// Disconnect marks pseudo disconnected and reports whether a transition happened. Unknown
// or already-disconnected participants are a no-op, so OnDisconnected fires at most once
// per connection.
func (r *Registry) Disconnect(pseudo string, fireCallback bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disconnectLocked(pseudo, fireCallback)
}

func (r *Registry) disconnectLocked(pseudo string, fireCallback bool) bool {
	p, ok := r.participants[pseudo]
	if !ok || !p.Connected {
		return false
	}
	p.disconnect()
	r.publishLocked()
	r.logger.Info("participant disconnected", slog.String("pseudo", pseudo), slog.Bool("notified", fireCallback))
	if fireCallback {
		r.callbacks.OnDisconnected(pseudo, r.snapshotLocked())
	}
	return true
}

// DisconnectAll silently disconnects everyone.
func (r *Registry) DisconnectAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for pseudo := range r.participants {
		r.disconnectLocked(pseudo, false)
	}
}

// Close silently disconnects everyone and makes later DeclareInteraction calls no-ops,
// so a line still in flight when the session ends cannot reconnect anyone. Scores stay
// readable and savable.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for pseudo := range r.participants {
		r.disconnectLocked(pseudo, false)
	}
}

// ArchiveAndSnapshot returns an archived copy: pending folded into initial, everyone
// disconnected. The live registry is unchanged.
func (r *Registry) ArchiveAndSnapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked().Archived()
}

// Reset forgets every participant.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.participants)
	r.publishLocked()
	r.logger.Info("registry reset")
}

// Snapshot returns a consistent copy of the live registry.
func (r *Registry) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Announce fires OnScoreUpdate with the current state.
func (r *Registry) Announce() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks.OnScoreUpdate(r.snapshotLocked())
}

// Save persists the archived snapshot.
func (r *Registry) Save() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveLocked()
}

func (r *Registry) saveLocked() error {
	if r.saver == nil {
		return nil
	}
	if err := r.saver.Save(r.snapshotLocked().Archived(), false); err != nil {
		r.logger.Error("snapshot save failed", slog.Any("err", err))
		if !errors.Is(err, errs.ErrPersistence) {
			err = errs.Persistence("save snapshot", err)
		}
		return err
	}
	return nil
}

func (r *Registry) snapshotLocked() Snapshot {
	return Snapshot(lo.MapValues(r.participants, func(p *Participant, _ string) Participant { return *p }))
}

func (r *Registry) publishLocked() {
	connected := lo.CountBy(lo.Values(r.participants), func(p *Participant) bool { return p.Connected })
	telemetry.SetPresence(connected, len(r.participants))
}
