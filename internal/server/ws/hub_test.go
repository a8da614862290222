package ws_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritwikmohanty/aegis-audit-sub000/internal/domain"
	"github.com/ritwikmohanty/aegis-audit-sub000/internal/server/ws"
)

// memBus is an in-process domain.SignalBus for hub tests.
type memBus struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

func newMemBus() *memBus {
	return &memBus{subs: make(map[string][]chan []byte)}
}

func (b *memBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[channel] {
		ch <- payload
	}
	return nil
}

func (b *memBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()
	return ch, nil
}

func (b *memBus) subscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dialHub(t *testing.T, bus *memBus) (*websocket.Conn, func()) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := ws.NewHub(bus, testLogger(), ws.Config{Mode: "serve", StartedAt: time.Now()})
	go func() { _ = hub.Run(ctx) }()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}

	// Wait for the hub to attach its bus subscriptions.
	deadline := time.Now().Add(time.Second)
	for bus.subscriberCount() < 4 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	return conn, func() {
		conn.Close()
		srv.Close()
		cancel()
	}
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var frame map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestHubSendsStatusOnConnect(t *testing.T) {
	conn, done := dialHub(t, newMemBus())
	defer done()

	frame := readFrame(t, conn)
	assert.JSONEq(t, `"status"`, string(frame["type"]))

	var payload struct {
		Mode        string `json:"mode"`
		WSConnected bool   `json:"ws_connected"`
	}
	require.NoError(t, json.Unmarshal(frame["payload"], &payload))
	assert.Equal(t, "serve", payload.Mode)
	assert.True(t, payload.WSConnected)
}

func TestHubBroadcastsEnvelopedEvents(t *testing.T) {
	bus := newMemBus()
	conn, done := dialHub(t, bus)
	defer done()

	// Discard the status frame.
	readFrame(t, conn)

	payload := []byte(`{"market_id":"mkt-1","shares":100}`)
	require.NoError(t, bus.Publish(context.Background(), domain.ChannelTrades, payload))

	frame := readFrame(t, conn)
	assert.JSONEq(t, `"event"`, string(frame["type"]))
	assert.JSONEq(t, `"`+domain.ChannelTrades+`"`, string(frame["channel"]))
	assert.JSONEq(t, string(payload), string(frame["payload"]))
}

func TestHubHonorsUnsubscribe(t *testing.T) {
	bus := newMemBus()
	conn, done := dialHub(t, bus)
	defer done()

	readFrame(t, conn)

	require.NoError(t, conn.WriteJSON(map[string]any{
		"action":   "unsubscribe",
		"channels": []string{domain.ChannelTrades},
	}))
	// Give the read pump a moment to apply the change.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), domain.ChannelTrades, []byte(`{"ignored":true}`)))
	require.NoError(t, bus.Publish(context.Background(), domain.ChannelPayouts, []byte(`{"wanted":true}`)))

	frame := readFrame(t, conn)
	assert.JSONEq(t, `"`+domain.ChannelPayouts+`"`, string(frame["channel"]))
}
