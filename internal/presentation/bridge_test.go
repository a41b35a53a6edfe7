package presentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"homevox/internal/device"
	"homevox/internal/events"
)

// busServer is the UI side of the bus: it records what the bridge sends and
// can push messages back.
type busServer struct {
	srv  *httptest.Server
	got  chan BusMessage
	conn chan *websocket.Conn
}

func newBusServer(t *testing.T) *busServer {
	t.Helper()

	b := &busServer{
		got:  make(chan BusMessage, 32),
		conn: make(chan *websocket.Conn, 1),
	}
	upgrader := websocket.Upgrader{}

	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		b.conn <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var m BusMessage
			if json.Unmarshal(data, &m) == nil {
				b.got <- m
			}
		}
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *busServer) url() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http")
}

func (b *busServer) next(t *testing.T) BusMessage {
	t.Helper()
	select {
	case m := <-b.got:
		return m
	case <-time.After(time.Second):
		t.Fatal("no message on bus")
		return BusMessage{}
	}
}

func dial(t *testing.T, b *busServer) (*Bridge, *websocket.Conn) {
	t.Helper()
	br, err := Dial(context.Background(), b.url(), "homevox", "ui")
	require.NoError(t, err)
	t.Cleanup(func() { br.Close() })

	select {
	case conn := <-b.conn:
		return br, conn
	case <-time.After(time.Second):
		t.Fatal("server never saw the connection")
		return nil, nil
	}
}

func TestEventsAreForwarded(t *testing.T) {
	b := newBusServer(t)
	br, _ := dial(t, b)

	bus := events.New()
	require.NoError(t, br.Attach(bus))

	bus.Publish(events.Listening, true)
	m := b.next(t)
	assert.Equal(t, BusMessage{From: "homevox", To: "ui", Kind: KindListening, Content: "true"}, m)

	st := device.State{LivingRoomLight: true, FrontDoorLocked: true, ThermostatTemp: 68}
	bus.Publish(events.Device, st, []device.Change{{Device: device.LivingRoomLight, Action: "TURN_ON"}})
	m = b.next(t)
	assert.Equal(t, KindDevice, m.Kind)
	assert.JSONEq(t, `{"livingRoomLight":true,"frontDoorLocked":true,"thermostatTemp":68}`, m.Content)

	bus.Publish(events.Reset)
	assert.Equal(t, KindReset, b.next(t).Kind)

	br.Detach()
	assert.False(t, bus.HasHandlers(events.Listening))
}

func TestServeRunsUIActions(t *testing.T) {
	b := newBusServer(t)
	br, conn := dial(t, b)

	var mu sync.Mutex
	var calls []string
	control := func(cmd, text string) error {
		mu.Lock()
		defer mu.Unlock()
		calls = append(calls, cmd+"|"+text)
		if cmd == "stop" {
			return errors.New("not listening")
		}
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- br.Serve(ctx, control) }()

	send := func(raw string) {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
	}
	send(`{"from":"ui","to":"homevox","kind":"text","content":"lock the door"}`)
	send(`not json`)
	send(`{"from":"ui","to":"someone-else","kind":"reset"}`)
	send(`{"from":"ui","kind":"dance"}`)
	send(`{"from":"ui","kind":"stop"}`)

	failure := b.next(t)
	assert.Equal(t, KindError, failure.Kind)
	assert.Equal(t, "not listening", failure.Content)

	mu.Lock()
	assert.Equal(t, []string{"say|lock the door", "stop|"}, calls)
	mu.Unlock()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestServeEndsWhenBusCloses(t *testing.T) {
	b := newBusServer(t)
	br, conn := dial(t, b)

	done := make(chan error, 1)
	go func() { done <- br.Serve(context.Background(), func(string, string) error { return nil }) }()

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
}
