package ws

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ritwikmohanty/aegis-audit-sub000/internal/domain"
)

// stalledBus hands every subscriber the same pre-filled channel so a
// forwarder has an arbitrarily deep backlog to chew through.
type stalledBus struct {
	msgs chan []byte
}

func (b *stalledBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.msgs <- payload
	return nil
}

func (b *stalledBus) Subscribe(_ context.Context, _ string) (<-chan []byte, error) {
	return b.msgs, nil
}

func TestForwarderExitsWhileBroadcastFull(t *testing.T) {
	bus := &stalledBus{msgs: make(chan []byte, 600)}
	for i := 0; i < 600; i++ {
		bus.msgs <- []byte(`{}`)
	}

	h := NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.subscribeToChannel(ctx, domain.ChannelTrades)
		close(done)
	}()

	// Nothing drains h.broadcast, so the forwarder fills the buffer and
	// stalls on the next send. It must still observe the cancel.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("forwarder still running after shutdown")
	}
}
