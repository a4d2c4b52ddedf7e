// Package session wires the store, the presence registry, the chat transport and the idle
// sweep into one chat presence session.
//
// A Session is a scoped resource: Start acquires the connection, and Close (usually
// deferred) guarantees the alive flag is cleared and the goodbye PART is attempted on every
// exit path.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/pomodorotteux/chat"
	"github.com/onnwee/pomodorotteux/config"
	"github.com/onnwee/pomodorotteux/errs"
	"github.com/onnwee/pomodorotteux/liveness"
	"github.com/onnwee/pomodorotteux/presence"
	"github.com/onnwee/pomodorotteux/store"
	"github.com/onnwee/pomodorotteux/telemetry"
)

// Options configures Start.
type Options struct {
	Config    *config.Config
	Callbacks presence.Callbacks

	// IdleTimeout disconnects participants silent for longer; <= 0 disables the sweep.
	IdleTimeout time.Duration
	// SweepInterval is how often the idle sweep runs.
	SweepInterval  time.Duration
	ReadTimeout    time.Duration
	ConnectTimeout time.Duration

	Logger *slog.Logger
	// Clock overrides time.Now for the registry.
	Clock func() time.Time
}

// Session is one connected presence tracking session.
type Session struct {
	id        string
	channel   string
	registry  *presence.Registry
	transport *chat.Transport
	log       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	ended     atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Start loads the store, builds the registry, announces the loaded scores, connects to
// chat and starts the idle sweep. Errors carry an errs class.
func Start(ctx context.Context, opts Options) (_ *Session, err error) {
	if opts.Config == nil {
		return nil, errs.Configuration("start session", errors.New("no configuration"))
	}
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.NewString()
	log := logger.With(slog.String("session_id", id))

	ctx = telemetry.WithCorrelation(ctx, id)
	ctx, span := telemetry.StartSpan(ctx, "session.start",
		attribute.String("chat.channel", cfg.ChannelName),
		attribute.String("chat.server", cfg.Address()),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	st := store.New(cfg.DatabasePath, log)
	snap, err := st.Load()
	if err != nil {
		return nil, err
	}

	regOpts := []presence.Option{
		presence.WithSaver(st),
		presence.WithLogger(log),
		presence.WithClock(opts.Clock),
	}
	if opts.Callbacks != nil {
		regOpts = append(regOpts, presence.WithCallbacks(opts.Callbacks))
	}
	reg := presence.New(snap, regOpts...)
	reg.Announce()

	tr, err := chat.Dial(ctx, chat.Options{
		Address:        cfg.Address(),
		Nickname:       cfg.Nickname,
		Channel:        cfg.ChannelName,
		Credential:     cfg.OAuthKey,
		ConnectTimeout: opts.ConnectTimeout,
		ReadTimeout:    opts.ReadTimeout,
		Logger:         log,
	}, reg)
	if err != nil {
		return nil, err
	}

	bg, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s := &Session{
		id:        id,
		channel:   cfg.ChannelName,
		registry:  reg,
		transport: tr,
		log:       log,
		cancel:    cancel,
	}

	// The sweep has nothing to do once the transport loop is gone.
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-tr.Done():
			if err := tr.Err(); err != nil {
				s.log.Error("chat session ended", slog.Any("err", err), slog.String("class", errs.Classify(err).String()))
			}
			cancel()
		case <-bg.Done():
		}
	}()

	monitor := liveness.New(reg, opts.IdleTimeout, opts.SweepInterval, log)
	if monitor.Enabled() {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := monitor.Run(bg); err != nil && !errors.Is(err, context.Canceled) {
				s.log.Error("idle sweep stopped", slog.Any("err", err))
			}
		}()
	}

	log.Info("session started",
		slog.String("channel", cfg.ChannelName),
		slog.Int("participants", len(snap)),
		slog.Bool("tracing", telemetry.IsTracingEnabled()),
	)
	return s, nil
}

// ID is the session correlation id.
func (s *Session) ID() string { return s.id }

// Channel is the joined channel.
func (s *Session) Channel() string { return s.channel }

// PostMessage sends text to the channel. It is dropped after EndSession.
func (s *Session) PostMessage(text string) error {
	return s.transport.PostMessage(text)
}

// Tick credits one tomato to every connected participant.
func (s *Session) Tick() error {
	return s.registry.TickConnected()
}

// Save persists the archived registry.
func (s *Session) Save() error {
	return s.registry.Save()
}

// Clear forgets every participant.
func (s *Session) Clear() {
	s.registry.Reset()
}

// Snapshot returns the live registry state.
func (s *Session) Snapshot() presence.Snapshot {
	return s.registry.Snapshot()
}

// Alive reports whether the transport still accepts sends.
func (s *Session) Alive() bool { return s.transport.Alive() }

// Done is closed when the chat receive loop exits.
func (s *Session) Done() <-chan struct{} { return s.transport.Done() }

// Err is the reason the chat receive loop stopped, nil for a clean stop.
func (s *Session) Err() error { return s.transport.Err() }

// EndSession stops sends and sends PART, then silently disconnects everyone and closes the
// registry to further chat activity, and cancels the background sweep. Blocked reads
// notice within one read timeout. Repeated calls do nothing.
func (s *Session) EndSession() {
	if !s.ended.CompareAndSwap(false, true) {
		return
	}
	if err := s.transport.Stop(); err != nil {
		s.log.Warn("goodbye message failed", slog.Any("err", err))
	}
	s.registry.Close()
	s.cancel()
	s.log.Info("session ended")
}

// Close ends the session, closes the connection and waits for background goroutines.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.EndSession()
		s.closeErr = s.transport.Close()
		s.wg.Wait()
	})
	return s.closeErr
}
