package protocol

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"strings"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

var (
	ErrTimeout = errors.New("no reply from hub")
	ErrBusy    = errors.New("another request is in flight")
)

type Config struct {
	Shard     string        // our address on the hub
	URL       string
	Reconnect time.Duration // pause between reconnect attempts
	Timeout   time.Duration // how long Request waits for a reply
	OnFrame   func(*Frame)  // unsolicited frames addressed to us
}

// Link is a websocket connection to the hub. One request may be in flight at
// a time; its reply is the next frame addressed to us.
type Link struct {
	cfg Config

	connMu sync.Mutex
	conn   *ws.Conn

	writeMu sync.Mutex

	waiterMu sync.Mutex
	waiter   chan *Frame
}

func Dial(ctx context.Context, cfg Config) (*Link, error) {
	if cfg.Reconnect <= 0 {
		cfg.Reconnect = time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if !isToken(cfg.Shard) {
		return nil, fmt.Errorf("invalid shard name %q", cfg.Shard)
	}

	log.Debug("Dialing hub", "url", cfg.URL)
	conn, _, err := ws.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial hub: %w", err)
	}

	return &Link{cfg: cfg, conn: conn}, nil
}

// Send writes f with our shard as the sender.
func (l *Link) Send(f Frame) error {
	f.From = l.cfg.Shard
	if err := f.Validate(); err != nil {
		return err
	}

	msg := f.String()
	log.Debug("Hub tx", "frame", msg)

	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	if err := l.current().WriteMessage(ws.TextMessage, []byte(msg)); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Request sends f and waits for the reply. Run must be active.
func (l *Link) Request(ctx context.Context, f Frame) (*Frame, error) {
	w, err := l.installWaiter()
	if err != nil {
		return nil, err
	}
	defer l.clearWaiter(w)

	if err := l.Send(f); err != nil {
		return nil, err
	}

	timer := time.NewTimer(l.cfg.Timeout)
	defer timer.Stop()

	select {
	case reply := <-w:
		return reply, nil
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run reads frames until ctx is done, reconnecting whenever the hub drops
// the connection.
func (l *Link) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { l.current().Close() })
	defer stop()

	for {
		_, data, err := l.current().ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn("Hub connection lost, reconnecting", "url", l.cfg.URL, "err", err)
			if err := l.reconnect(ctx); err != nil {
				return nil
			}
			log.Info("Reconnected to hub")
			continue
		}

		line := string(data)
		if !l.addressedToUs(line) {
			continue
		}

		f, err := Parse(line)
		if err != nil {
			log.Warn("Failed to parse hub frame", "frame", line, "err", err)
			continue
		}
		log.Debug("Hub rx", "frame", line)

		l.dispatch(f)
	}
}

func (l *Link) Close() error {
	return l.current().Close()
}

func (l *Link) dispatch(f *Frame) {
	if f.Verb == "PING" {
		if err := l.Send(f.Reply(true, "PONG")); err != nil {
			log.Warn("Failed to answer ping", "err", err)
		}
		return
	}

	l.waiterMu.Lock()
	w := l.waiter
	if w != nil {
		l.waiter = nil
	}
	l.waiterMu.Unlock()

	if w != nil {
		w <- f
		return
	}
	if l.cfg.OnFrame != nil {
		l.cfg.OnFrame(f)
	}
}

func (l *Link) addressedToUs(line string) bool {
	to, _, _ := strings.Cut(line, ":")
	return to == l.cfg.Shard || to == Broadcast
}

func (l *Link) reconnect(ctx context.Context) error {
	for {
		conn, _, err := ws.DefaultDialer.DialContext(ctx, l.cfg.URL, nil)
		if err == nil {
			l.connMu.Lock()
			l.conn = conn
			l.connMu.Unlock()
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.cfg.Reconnect):
		}
	}
}

func (l *Link) current() *ws.Conn {
	l.connMu.Lock()
	defer l.connMu.Unlock()
	return l.conn
}

func (l *Link) installWaiter() (chan *Frame, error) {
	l.waiterMu.Lock()
	defer l.waiterMu.Unlock()
	if l.waiter != nil {
		return nil, ErrBusy
	}
	l.waiter = make(chan *Frame, 1)
	return l.waiter, nil
}

func (l *Link) clearWaiter(w chan *Frame) {
	l.waiterMu.Lock()
	defer l.waiterMu.Unlock()
	if l.waiter == w {
		l.waiter = nil
	}
}
