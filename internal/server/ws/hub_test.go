package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type chanBus struct {
	ch chan []byte
}

func (b *chanBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return b.ch, nil
}

func dial(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleWS))
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env envelope
	require.NoError(t, json.Unmarshal(data, &env))
	return env
}

func TestHubPublishReachesSubscribedClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := NewHub(nil, []string{"events", "fills"}, func() any {
		return map[string]any{"mode": "paper"}
	}, quiet())
	go h.Run(ctx)

	conn := dial(t, h)
	status := readFrame(t, conn)
	assert.Equal(t, "status", status.Channel)
	assert.JSONEq(t, `{"mode":"paper"}`, string(status.Data))

	require.NoError(t, conn.WriteJSON(subscribeMsg{Action: "unsubscribe", Channels: []string{"events"}}))
	// Let the read pump apply the change before publishing.
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		for c := range h.clients {
			return !c.isSubscribed("events")
		}
		return false
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.Publish(ctx, "events", []byte(`{"message":"skipped"}`)))
	require.NoError(t, h.Publish(ctx, "fills", []byte(`{"code":"005930"}`)))

	env := readFrame(t, conn)
	assert.Equal(t, "fills", env.Channel)
	assert.JSONEq(t, `{"code":"005930"}`, string(env.Data))
}

func TestHubRelaysBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := &chanBus{ch: make(chan []byte, 1)}
	h := NewHub(bus, []string{"positions"}, nil, quiet())
	go h.Run(ctx)

	conn := dial(t, h)
	require.Eventually(t, func() bool {
		h.mu.RLock()
		defer h.mu.RUnlock()
		return len(h.clients) == 1
	}, time.Second, 5*time.Millisecond)
	bus.ch <- []byte("not json")

	env := readFrame(t, conn)
	assert.Equal(t, "positions", env.Channel)
	assert.Equal(t, `"not json"`, string(env.Data))
}

func TestIsSubscribedWildcard(t *testing.T) {
	c := &client{subs: map[string]bool{"stream:*": true}}
	assert.True(t, c.isSubscribed("stream:fills"))
	assert.False(t, c.isSubscribed("events"))
}
