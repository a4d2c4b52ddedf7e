package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/onnwee/pomodorotteux/config"
	"github.com/onnwee/pomodorotteux/errs"
	"github.com/onnwee/pomodorotteux/presence"
	"github.com/onnwee/pomodorotteux/server"
	"github.com/onnwee/pomodorotteux/session"
	"github.com/onnwee/pomodorotteux/telemetry"
)

const messagePrefix = "Message de la tomate : "

func newRunCmd(a *app) *cobra.Command {
	var tomatoes int
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Join the channel and award tomatoes to present viewers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if tomatoes < 0 {
				return errs.Configuration("parse flags", fmt.Errorf("--tomatoes must not be negative, got %d", tomatoes))
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runSession(ctx, a, tomatoes)
		},
	}
	cmd.Flags().IntVar(&tomatoes, "tomatoes", 0, "end the session after this many tomatoes (0 runs until interrupted)")
	return cmd
}

// sender is the part of a session the announcer talks through.
type sender interface {
	PostMessage(text string) error
}

// announcer greets and warns viewers in chat and logs the scoreboard. It is attached to
// the session after Start returns; chat messages raised before that are dropped.
type announcer struct {
	log *slog.Logger
	out io.Writer

	mu   sync.RWMutex
	chat sender
}

func newAnnouncer(log *slog.Logger, out io.Writer) *announcer {
	return &announcer{log: log, out: out}
}

func (a *announcer) attach(s sender) {
	a.mu.Lock()
	a.chat = s
	a.mu.Unlock()
}

func (a *announcer) post(text string) {
	a.mu.RLock()
	s := a.chat
	a.mu.RUnlock()
	if s == nil {
		a.log.Debug("chat not attached, message dropped", slog.String("text", text))
		return
	}
	if err := s.PostMessage(text); err != nil {
		a.log.Warn("post chat message", slog.Any("err", err))
	}
}

func (a *announcer) OnConnected(pseudo string, snap presence.Snapshot) {
	if snap[pseudo].Total() == 0 {
		a.post(messagePrefix + pseudo + " s'est connecté(e) pour la première fois! Bienvenue parmi nous!")
		return
	}
	a.post(messagePrefix + pseudo + " s'est connecté(e) aux tomates!")
}

func (a *announcer) OnDisconnected(pseudo string, _ presence.Snapshot) {
	a.post(messagePrefix + pseudo + " a été bien silencieux(se)! Tu es toujours là?")
}

func (a *announcer) OnScoreUpdate(snap presence.Snapshot) {
	fmt.Fprintln(a.out, formatScoreboard(snap))
}

// formatScoreboard renders "pseudo: total" pairs, best first, connected viewers starred.
func formatScoreboard(snap presence.Snapshot) string {
	if len(snap) == 0 {
		return "Tableau des tomates : (vide)"
	}
	entries := lo.Map(snap.Ranked(), func(p presence.Participant, _ int) string {
		mark := ""
		if p.Connected {
			mark = "*"
		}
		return fmt.Sprintf("%s%s: %d", p.Pseudo, mark, p.Total())
	})
	return "Tableau des tomates : " + strings.Join(entries, ", ")
}

func runSession(ctx context.Context, a *app, tomatoes int) error {
	log := a.log
	rt := a.rt

	cfg, err := config.Load(rt.ConfigPath)
	if err != nil {
		return err
	}
	log.Info("configuration loaded", slog.String("path", rt.ConfigPath), slog.Any("config", cfg))

	telemetry.Init()
	shutdownTracing, err := telemetry.InitTracing("pomodorotteux", version)
	if err != nil {
		log.Warn("tracing disabled", slog.Any("err", err))
	} else {
		defer shutdownTracing()
	}

	ann := newAnnouncer(log, a.out)
	sess, err := session.Start(ctx, session.Options{
		Config:         cfg,
		Callbacks:      ann,
		IdleTimeout:    rt.IdleTimeout,
		SweepInterval:  rt.SweepInterval,
		ReadTimeout:    rt.ReadTimeout,
		ConnectTimeout: rt.ConnectTimeout,
		Logger:         log,
	})
	if err != nil {
		return err
	}
	ann.attach(sess)
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("close session", slog.Any("err", err))
		}
	}()

	srvErr := make(chan error, 1)
	if rt.HTTPAddr != "" {
		srvCtx, cancelSrv := context.WithCancel(ctx)
		defer cancelSrv()
		go func() {
			srvErr <- server.Start(srvCtx, sess, rt.HTTPAddr, server.WithAllowedOrigins(rt.CORSOrigins))
		}()
	}

	return awardLoop(ctx, log, a.out, sess, rt.TomatoInterval, tomatoes, srvErr)
}

// tomatoSession is what awardLoop drives.
type tomatoSession interface {
	Tick() error
	Save() error
	Done() <-chan struct{}
	Err() error
}

// awardLoop ticks every interval until ctx is cancelled, the chat loop exits, the status
// server fails or limit tomatoes (when positive) have been awarded.
func awardLoop(ctx context.Context, log *slog.Logger, out io.Writer, sess tomatoSession, interval time.Duration, limit int, srvErr <-chan error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	done := 0
	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown requested, saving scoreboard")
			return sess.Save()
		case <-sess.Done():
			if err := sess.Err(); err != nil {
				return err
			}
			return sess.Save()
		case err := <-srvErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return errs.Connection("status server", err)
			}
		case <-ticker.C:
			if err := sess.Tick(); err != nil {
				return err
			}
			done++
			fmt.Fprintln(out, "Tomate faite!")
			log.Info("tomato awarded", slog.Int("count", done))
			if limit > 0 && done >= limit {
				return nil
			}
		}
	}
}
