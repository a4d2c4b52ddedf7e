package chat

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/onnwee/pomodorotteux/errs"
	"github.com/onnwee/pomodorotteux/telemetry"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultReadTimeout    = 5 * time.Second
	defaultWriteTimeout   = 5 * time.Second

	// maxPendingLine bounds a line that never receives its terminator.
	maxPendingLine = 64 * 1024
)

// InteractionHandler receives the sender of every channel message. A returned error stops
// the receive loop.
type InteractionHandler interface {
	DeclareInteraction(pseudo string) error
}

// Options configures Dial.
type Options struct {
	// Address is host:port of the chat server.
	Address    string
	Nickname   string
	Channel    string
	Credential string

	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration

	Logger *slog.Logger
}

// Transport owns the chat socket. Writes go through Send or Part, reads through the
// receive loop only.
type Transport struct {
	conn    net.Conn
	opts    Options
	handler InteractionHandler
	log     *slog.Logger

	alive     atomic.Bool
	parted    atomic.Bool
	closeOnce sync.Once

	writeMu sync.Mutex

	done  chan struct{}
	errMu sync.Mutex
	err   error
}

// Dial connects, authenticates, joins the channel and starts the receive loop. Connection
// failures, including the connect timeout, are errs.ErrConnection.
func Dial(ctx context.Context, opts Options, handler InteractionHandler) (*Transport, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaultReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Channel = strings.TrimPrefix(opts.Channel, "#")

	log := opts.Logger.With(slog.String("component", "chat"), slog.String("channel", opts.Channel))
	dialer := net.Dialer{Timeout: opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", opts.Address)
	if err != nil {
		return nil, errs.Connection("dial "+opts.Address, err)
	}

	t := &Transport{
		conn:    conn,
		opts:    opts,
		handler: handler,
		log:     log,
		done:    make(chan struct{}),
	}
	t.alive.Store(true)

	for _, line := range []string{
		"PASS " + opts.Credential,
		"NICK " + opts.Nickname,
		"JOIN #" + opts.Channel,
	} {
		if err := t.write(line); err != nil {
			t.alive.Store(false)
			_ = conn.Close()
			return nil, err
		}
	}
	telemetry.SetTransportAlive(true)
	log.Info("joined chat", slog.String("server", opts.Address), slog.String("nickname", opts.Nickname))

	go t.loop()
	return t, nil
}

// Alive reports whether outbound sends are still allowed.
func (t *Transport) Alive() bool { return t.alive.Load() }

// Channel returns the joined channel without '#'.
func (t *Transport) Channel() string { return t.opts.Channel }

// Done is closed when the receive loop exits.
func (t *Transport) Done() <-chan struct{} { return t.done }

// Err returns why the receive loop exited; nil for a clean stop or while it still runs.
func (t *Transport) Err() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	return t.err
}

// Send writes line while the transport is alive. Later calls are dropped.
func (t *Transport) Send(line string) error {
	if !t.alive.Load() {
		t.log.Debug("send dropped after end of session")
		return nil
	}
	return t.write(line)
}

// PostMessage sends text to the joined channel.
func (t *Transport) PostMessage(text string) error {
	return t.Send("PRIVMSG #" + t.opts.Channel + " :" + text)
}

// Part sends the goodbye line regardless of the alive flag. Only the first call writes.
func (t *Transport) Part() error {
	if !t.parted.CompareAndSwap(false, true) {
		return nil
	}
	t.log.Info("leaving chat")
	return t.write("PART #" + t.opts.Channel)
}

// Stop clears the alive flag and parts the channel. It is safe to call repeatedly.
func (t *Transport) Stop() error {
	t.alive.Store(false)
	telemetry.SetTransportAlive(false)
	return t.Part()
}

// Close stops the transport, closes the socket and waits for the receive loop.
func (t *Transport) Close() error {
	err := t.Stop()
	t.closeOnce.Do(func() {
		_ = t.conn.Close()
	})
	<-t.done
	return err
}

func (t *Transport) write(line string) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := t.conn.SetWriteDeadline(time.Now().Add(t.opts.WriteTimeout)); err != nil {
		return errs.Connection("set write deadline", err)
	}
	if _, err := t.conn.Write([]byte(line + "\r\n")); err != nil {
		return errs.Connection("write", err)
	}
	if strings.HasPrefix(line, "PASS ") {
		t.log.Debug("> PASS ***")
	} else {
		t.log.Debug("> " + line)
	}
	return nil
}

func (t *Transport) loop() {
	defer close(t.done)
	err := t.receive()
	t.alive.Store(false)
	telemetry.SetTransportAlive(false)
	if err != nil {
		t.log.Error("chat receive loop stopped", slog.Any("err", err))
	} else {
		t.log.Info("chat receive loop stopped")
	}
	t.errMu.Lock()
	t.err = err
	t.errMu.Unlock()
}

func (t *Transport) receive() error {
	buf := make([]byte, 4096)
	var pending []byte
	for t.alive.Load() {
		if err := t.conn.SetReadDeadline(time.Now().Add(t.opts.ReadTimeout)); err != nil {
			if !t.alive.Load() {
				return nil
			}
			return errs.Connection("set read deadline", err)
		}
		n, err := t.conn.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				line := string(bytes.TrimRight(pending[:i], "\r"))
				pending = pending[i+1:]
				// Lines read after Stop are not dispatched.
				if !t.alive.Load() {
					return nil
				}
				if err := t.handle(line); err != nil {
					return err
				}
			}
			if len(pending) > maxPendingLine {
				t.log.Warn("dropping oversized line", slog.Int("bytes", len(pending)))
				pending = pending[:0]
			}
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if !t.alive.Load() {
				return nil
			}
			return errs.Connection("read", err)
		}
	}
	return nil
}

func (t *Transport) handle(raw string) error {
	telemetry.IncLinesReceived()
	line := ParseLine(raw)
	switch line.Kind {
	case KindPing:
		return t.Send("PONG :" + line.Payload)
	case KindAuthFailure:
		telemetry.IncAuthFailures()
		return errs.Authentication("login", fmt.Errorf("server rejected credential: %s", line.Payload))
	case KindMessage:
		if t.handler == nil {
			return nil
		}
		return t.handler.DeclareInteraction(line.Sender)
	case KindNotice:
		t.log.Info("chat notice", slog.String("text", line.Payload))
	case KindReconnect:
		t.log.Warn("chat server requested reconnect")
	default:
		t.log.Debug("< " + raw)
	}
	return nil
}
