package query

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"github.com/depthmirror/depthmirror/internal/book"
	"github.com/depthmirror/depthmirror/internal/feed"
	"github.com/depthmirror/depthmirror/internal/venue"
)

type fakeState struct{}

func (fakeState) State() venue.State       { return venue.Streaming }
func (fakeState) ReconnectAttempts() int64 { return 0 }
func (fakeState) BootstrapMode() string    { return string(venue.BootstrapLiveFirst) }

func newTestHandlers(t *testing.T) (*Handlers, *book.Registry) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := book.NewRegistry(logger, nil)
	return NewHandlers(registry, fakeState{}, logger), registry
}

func withVars(r *http.Request, vars map[string]string) *http.Request {
	return mux.SetURLVars(r, vars)
}

func decodeEnvelope(t *testing.T, rr *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return env
}

func TestHandleOrderbookUnknownSymbolReturns404(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandlers(t)

	req := withVars(httptest.NewRequest(http.MethodGet, "/api/orderbooks/btcusdt", nil), map[string]string{"symbol": "btcusdt"})
	rr := httptest.NewRecorder()
	h.HandleOrderbook(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
	env := decodeEnvelope(t, rr)
	if env.Success {
		t.Error("expected success=false for unknown symbol")
	}
}

func TestHandleOrderbookReturnsSnapshot(t *testing.T) {
	t.Parallel()
	h, registry := newTestHandlers(t)
	registry.ApplySnapshot("btcusdt", validSnapshot())

	req := withVars(httptest.NewRequest(http.MethodGet, "/api/orderbooks/btcusdt", nil), map[string]string{"symbol": "btcusdt"})
	rr := httptest.NewRecorder()
	h.HandleOrderbook(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rr.Code, rr.Body.String())
	}
	env := decodeEnvelope(t, rr)
	if !env.Success {
		t.Errorf("expected success=true, error=%q", env.Error)
	}
}

func TestHandleOrderbookLimitRejectsNonPositive(t *testing.T) {
	t.Parallel()
	h, registry := newTestHandlers(t)
	registry.ApplySnapshot("btcusdt", validSnapshot())

	req := withVars(httptest.NewRequest(http.MethodGet, "/api/orderbooks/btcusdt/limit/-1", nil), map[string]string{"symbol": "btcusdt", "n": "-1"})
	rr := httptest.NewRecorder()
	h.HandleOrderbookLimit(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestHandleMarketImpactRejectsUnknownSide(t *testing.T) {
	t.Parallel()
	h, registry := newTestHandlers(t)
	registry.ApplySnapshot("btcusdt", validSnapshot())

	req := httptest.NewRequest(http.MethodGet, "/api/orderbooks/btcusdt/market-impact/5?side=sideways", nil)
	req = withVars(req, map[string]string{"symbol": "btcusdt", "size": "5"})
	rr := httptest.NewRecorder()
	h.HandleMarketImpact(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestHandleMarketImpactAcceptsValidRequest(t *testing.T) {
	t.Parallel()
	h, registry := newTestHandlers(t)
	registry.ApplySnapshot("btcusdt", validSnapshot())

	req := httptest.NewRequest(http.MethodGet, "/api/orderbooks/btcusdt/market-impact/1?side=buy", nil)
	req = withVars(req, map[string]string{"symbol": "btcusdt", "size": "1"})
	rr := httptest.NewRecorder()
	h.HandleMarketImpact(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rr.Code, rr.Body.String())
	}
}

func TestHandleLiquidityProfileRejectsOutOfRangeLevels(t *testing.T) {
	t.Parallel()
	h, registry := newTestHandlers(t)
	registry.ApplySnapshot("btcusdt", validSnapshot())

	req := httptest.NewRequest(http.MethodGet, "/api/orderbooks/btcusdt/liquidity-profile?levels=101", nil)
	req = withVars(req, map[string]string{"symbol": "btcusdt"})
	rr := httptest.NewRecorder()
	h.HandleLiquidityProfile(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()
	h, _ := newTestHandlers(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	h.HandleHealth(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var resp healthResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status field = %q, want ok", resp.Status)
	}
	if resp.Binance != "streaming" {
		t.Errorf("binance field = %q, want streaming", resp.Binance)
	}
}

func TestHandleStats(t *testing.T) {
	t.Parallel()
	h, registry := newTestHandlers(t)
	registry.ApplySnapshot("btcusdt", validSnapshot())

	req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
	rr := httptest.NewRecorder()
	h.HandleStats(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func validSnapshot() feed.SnapshotMsg {
	return feed.SnapshotMsg{
		LastUpdateID: 100,
		Bids:         []feed.WireLevel{{"100", "1"}},
		Asks:         []feed.WireLevel{{"101", "1"}},
	}
}
