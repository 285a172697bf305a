package push

import (
	"io"
	"log/slog"
	"testing"

	"github.com/depthmirror/depthmirror/internal/book"
	"github.com/depthmirror/depthmirror/internal/feed"
)

func validSnapshotMsg() feed.SnapshotMsg {
	return feed.SnapshotMsg{
		LastUpdateID: 100,
		Bids:         []feed.WireLevel{{"100", "1"}},
		Asks:         []feed.WireLevel{{"101", "1"}},
	}
}

func newTestClient(t *testing.T) (*Client, *book.Registry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := book.NewRegistry(logger, nil)
	hub := NewHub(registry, nil, nil, logger)
	return &Client{
		id:     "test-client",
		hub:    hub,
		send:   make(chan outboundFrame, 2),
		logger: logger,
	}, registry
}

func TestNotifyStreamsEverythingBeforeAnySubscription(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)

	if err := c.Notify("btcusdt", book.Snapshot{Symbol: "btcusdt"}); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}
	select {
	case frame := <-c.send:
		if frame.Symbol != "btcusdt" {
			t.Errorf("frame symbol = %q, want btcusdt", frame.Symbol)
		}
	default:
		t.Fatal("expected a queued frame")
	}
}

func TestNotifyDeliversRegardlessOfPriorSubscribeMessages(t *testing.T) {
	t.Parallel()
	c, registry := newTestClient(t)
	registry.ApplySnapshot("ethusdt", validSnapshotMsg())

	c.handleInbound([]byte(`{"type":"subscribe","symbol":"ethusdt"}`))
	<-c.send // drain the one-shot snapshot the subscribe request triggers

	if err := c.Notify("btcusdt", book.Snapshot{Symbol: "btcusdt"}); err != nil {
		t.Fatalf("Notify returned error: %v", err)
	}
	select {
	case frame := <-c.send:
		if frame.Symbol != "btcusdt" {
			t.Errorf("frame symbol = %q, want btcusdt", frame.Symbol)
		}
	default:
		t.Fatal("expected btcusdt update to be delivered even though the client only subscribed to ethusdt")
	}
}

func TestEnqueueDropsOldestWhenFull(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t) // buffer size 2

	c.enqueue(outboundFrame{Symbol: "one"})
	c.enqueue(outboundFrame{Symbol: "two"})
	c.enqueue(outboundFrame{Symbol: "three"})

	first := <-c.send
	second := <-c.send
	if first.Symbol != "two" || second.Symbol != "three" {
		t.Errorf("expected oldest frame dropped, got %q then %q", first.Symbol, second.Symbol)
	}
}

func TestHandleInboundSubscribeSendsOneShotSnapshot(t *testing.T) {
	t.Parallel()
	c, registry := newTestClient(t)
	registry.ApplySnapshot("btcusdt", validSnapshotMsg())

	c.handleInbound([]byte(`{"type":"subscribe","symbol":"btcusdt"}`))

	select {
	case frame := <-c.send:
		if frame.Type != frameUpdate || frame.Symbol != "btcusdt" {
			t.Errorf("frame = %+v, want a btcusdt orderbook_update", frame)
		}
	default:
		t.Fatal("expected a one-shot snapshot frame queued")
	}
}

func TestHandleInboundPingRepliesWithPong(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t)

	c.handleInbound([]byte(`{"type":"ping"}`))

	select {
	case frame := <-c.send:
		if frame.Type != framePong {
			t.Errorf("frame type = %q, want pong", frame.Type)
		}
	default:
		t.Fatal("expected a pong frame queued")
	}
}
