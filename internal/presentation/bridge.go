// Package presentation connects the assistant to a chat UI over a websocket
// message bus. Core events are forwarded as bus messages, and UI actions come
// back as control commands.
package presentation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	log "log/slog"
	"net/url"
	"strconv"
	"sync"

	"github.com/gorilla/websocket"

	"homevox/internal/conversation"
	"homevox/internal/device"
	"homevox/internal/events"
)

// Outbound kinds.
const (
	KindMessage    = "message"
	KindReset      = "reset"
	KindDevice     = "device"
	KindListening  = "listening"
	KindSpeaking   = "speaking"
	KindTranscript = "transcript"
	KindError      = "error"
)

// Inbound kinds and the control command each maps to.
var inbound = map[string]string{
	"text":   "say",
	"reset":  "reset",
	"listen": "listen",
	"stop":   "stop",
	"mute":   "mute",
	"unmute": "unmute",
}

var ErrMalformed = errors.New("malformed bus message")

type BusMessage struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

// ControlFunc runs a control command, e.g. app.Control.
type ControlFunc func(cmd, text string) error

type Bridge struct {
	conn *websocket.Conn
	name string
	peer string

	writeMu sync.Mutex

	bus      *events.Bus
	handlers map[string]any
}

// Dial connects to the bus at wsURL. name is this client's address on the bus
// and peer the default recipient.
func Dial(ctx context.Context, wsURL, name, peer string) (*Bridge, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	log.Info("Connected to bus", "url", wsURL)
	return &Bridge{conn: conn, name: name, peer: peer}, nil
}

func (b *Bridge) Read() (*BusMessage, error) {
	_, msg, err := b.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var m BusMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &m, nil
}

func (b *Bridge) Write(m *BusMessage) error {
	if m.From == "" {
		m.From = b.name
	}
	if m.To == "" {
		m.To = b.peer
	}

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.conn.WriteMessage(websocket.TextMessage, data)
}

// Attach forwards core events to the bus until Detach.
func (b *Bridge) Attach(bus *events.Bus) error {
	b.bus = bus
	b.handlers = map[string]any{
		events.Message: func(m conversation.Message) {
			b.send(KindMessage, m)
		},
		events.Reset: func() {
			b.send(KindReset, "")
		},
		events.Device: func(st device.State, _ []device.Change) {
			b.send(KindDevice, st)
		},
		events.Listening: func(on bool) {
			b.send(KindListening, strconv.FormatBool(on))
		},
		events.Speaking: func(on bool) {
			b.send(KindSpeaking, strconv.FormatBool(on))
		},
		events.Transcript: func(s string) {
			b.send(KindTranscript, s)
		},
		events.Error: func(s string) {
			b.send(KindError, s)
		},
	}

	for topic, fn := range b.handlers {
		if err := bus.Subscribe(topic, fn); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	return nil
}

func (b *Bridge) Detach() {
	if b.bus == nil {
		return
	}
	for topic, fn := range b.handlers {
		_ = b.bus.Unsubscribe(topic, fn)
	}
	b.bus = nil
	b.handlers = nil
}

// send writes content as is when it is a string, JSON otherwise.
func (b *Bridge) send(kind string, content any) {
	var text string
	switch c := content.(type) {
	case string:
		text = c
	default:
		data, err := json.Marshal(c)
		if err != nil {
			log.Error("Failed to encode bus payload", "kind", kind, "err", err)
			return
		}
		text = string(data)
	}

	if err := b.Write(&BusMessage{Kind: kind, Content: text}); err != nil {
		log.Warn("Failed to write to bus", "kind", kind, "err", err)
	}
}

// Serve reads UI actions and runs them through control until ctx is done or
// the connection drops.
func (b *Bridge) Serve(ctx context.Context, control ControlFunc) error {
	stop := context.AfterFunc(ctx, func() { b.conn.Close() })
	defer stop()

	for {
		m, err := b.Read()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrMalformed) {
				log.Warn("Skipping malformed bus message", "err", err)
				continue
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Info("Bus closed the connection")
				return nil
			}
			return fmt.Errorf("read bus: %w", err)
		}

		if m.To != "" && m.To != b.name {
			continue
		}

		cmd, ok := inbound[m.Kind]
		if !ok {
			log.Warn("Unknown bus message kind", "kind", m.Kind, "from", m.From)
			continue
		}

		log.Debug("UI action", "kind", m.Kind, "from", m.From)
		if err := control(cmd, m.Content); err != nil {
			log.Warn("UI action failed", "kind", m.Kind, "err", err)
			b.send(KindError, err.Error())
		}
	}
}

func (b *Bridge) Close() error {
	b.Detach()
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_ = b.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return b.conn.Close()
}
