package protocol

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	f, err := Parse("homevox:ok:lamp:1:VERTEX\n")
	require.NoError(t, err)
	assert.Equal(t, &Frame{To: "homevox", Verb: "OK", Noun: "LAMP", Args: []string{"1"}, From: "VERTEX"}, f)
	assert.Equal(t, "homevox:OK:LAMP:1:VERTEX", f.String())

	f, err = Parse("ALL:PING:HUB:VERTEX")
	require.NoError(t, err)
	assert.Empty(t, f.Args)

	for _, bad := range []string{
		"",
		"A:B:C",
		"A:ON:LAMP:has space:B",
		"A:ON:LA/MP:B",
		"A:ON:LAMP::B",
	} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestReply(t *testing.T) {
	req := Frame{To: "VERTEX", Verb: "SET", Noun: "THERMO", Args: []string{"70"}, From: "homevox"}
	ok := req.Reply(true, "THERMO", "70")
	assert.Equal(t, "homevox:OK:THERMO:70:VERTEX", ok.String())
	assert.False(t, ok.IsError())
	assert.True(t, req.Reply(false, "RANGE").IsError())
}

// fakeHub answers every request frame with OK and pings once on connect.
func fakeHub(t *testing.T, got chan<- string) *httptest.Server {
	t.Helper()
	upgrader := ws.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteMessage(ws.TextMessage, []byte("ALL:PING:HUB:VERTEX"))
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			got <- string(data)

			f, err := Parse(string(data))
			if err != nil || f.Verb == "OK" {
				continue
			}
			_ = conn.WriteMessage(ws.TextMessage, []byte("someone-else:OK:X:VERTEX"))
			_ = conn.WriteMessage(ws.TextMessage, []byte(f.Reply(true, f.Noun, f.Args...).String()))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestLinkRequestAndPing(t *testing.T) {
	got := make(chan string, 16)
	srv := fakeHub(t, got)

	link, err := Dial(context.Background(), Config{
		Shard: "homevox",
		URL:   "ws" + strings.TrimPrefix(srv.URL, "http"),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- link.Run(ctx) }()

	select {
	case pong := <-got:
		assert.Equal(t, "VERTEX:OK:PONG:homevox", pong)
	case <-time.After(time.Second):
		t.Fatal("ping was not answered")
	}

	reply, err := link.Request(ctx, Frame{To: "VERTEX", Verb: "ON", Noun: "LAMP"})
	require.NoError(t, err)
	assert.Equal(t, "homevox:OK:LAMP:VERTEX", reply.String())
	assert.Equal(t, "VERTEX:ON:LAMP:homevox", <-got)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestSendRejectsBadFrame(t *testing.T) {
	got := make(chan string, 16)
	srv := fakeHub(t, got)

	link, err := Dial(context.Background(), Config{Shard: "homevox", URL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	require.NoError(t, err)
	defer link.Close()

	assert.Error(t, link.Send(Frame{To: "VERTEX", Verb: "SET", Noun: "THERMO", Args: []string{"seventy two"}}))
}

func TestDialRejectsBadShard(t *testing.T) {
	_, err := Dial(context.Background(), Config{Shard: "home vox", URL: "ws://127.0.0.1:1"})
	assert.Error(t, err)
}
