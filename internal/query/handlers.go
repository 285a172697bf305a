package query

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/depthmirror/depthmirror/internal/book"
	"github.com/depthmirror/depthmirror/internal/venue"
)

// StateProvider exposes the venue client state needed for /health and
// /api/stats without the query package importing venue's concrete Client.
type StateProvider interface {
	State() venue.State
	ReconnectAttempts() int64
	BootstrapMode() string
}

// Handlers holds all HTTP handler dependencies.
type Handlers struct {
	registry  *book.Registry
	venue     StateProvider
	startedAt time.Time
	logger    *slog.Logger
}

// NewHandlers creates a Handlers bound to registry and a venue state source.
func NewHandlers(registry *book.Registry, venueState StateProvider, logger *slog.Logger) *Handlers {
	return &Handlers{
		registry:  registry,
		venue:     venueState,
		startedAt: time.Now(),
		logger:    logger.With("component", "query_handlers"),
	}
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("encode response", "error", err)
	}
}

// HandleHealth implements GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{
		Status:     "ok",
		Timestamp:  time.Now(),
		UptimeSecs: time.Since(h.startedAt).Seconds(),
		Orderbooks: h.registry.Symbols(),
		Binance:    h.venue.State().String(),
	})
}

// HandleAllOrderbooks implements GET /api/orderbooks.
func (h *Handlers) HandleAllOrderbooks(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]book.Snapshot)
	for _, symbol := range h.registry.Symbols() {
		if b, ok := h.registry.Book(symbol); ok {
			out[symbol] = b.Snapshot(0)
		}
	}
	h.writeJSON(w, http.StatusOK, ok(out))
}

// HandleOrderbook implements GET /api/orderbooks/{symbol}.
func (h *Handlers) HandleOrderbook(w http.ResponseWriter, r *http.Request) {
	b, found := h.resolveBook(w, r)
	if !found {
		return
	}
	h.writeJSON(w, http.StatusOK, ok(b.Snapshot(0)))
}

// HandleOrderbookLimit implements GET /api/orderbooks/{symbol}/limit/{N}.
func (h *Handlers) HandleOrderbookLimit(w http.ResponseWriter, r *http.Request) {
	b, found := h.resolveBook(w, r)
	if !found {
		return
	}
	n, err := parsePositiveInt(mux.Vars(r)["n"])
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, fail("invalid limit: "+err.Error()))
		return
	}
	h.writeJSON(w, http.StatusOK, ok(b.Snapshot(n)))
}

// HandleAccumulatedToPrice implements
// GET /api/orderbooks/{symbol}/acc-qty/{price}?side=bids|asks|both.
func (h *Handlers) HandleAccumulatedToPrice(w http.ResponseWriter, r *http.Request) {
	b, found := h.resolveBook(w, r)
	if !found {
		return
	}
	price, err := parsePositiveDecimal(mux.Vars(r)["price"])
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, fail("invalid price: "+err.Error()))
		return
	}
	side, err := parseSide(r.URL.Query().Get("side"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, fail(err.Error()))
		return
	}
	h.writeJSON(w, http.StatusOK, ok(b.AccumulatedToPrice(price, side)))
}

// HandleMarketImpact implements
// GET /api/orderbooks/{symbol}/market-impact/{size}?side=buy|sell.
func (h *Handlers) HandleMarketImpact(w http.ResponseWriter, r *http.Request) {
	b, found := h.resolveBook(w, r)
	if !found {
		return
	}
	size, err := parsePositiveDecimal(mux.Vars(r)["size"])
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, fail("invalid size: "+err.Error()))
		return
	}
	taker, err := parseTakerSide(r.URL.Query().Get("side"))
	if err != nil {
		h.writeJSON(w, http.StatusBadRequest, fail(err.Error()))
		return
	}
	result, hasResult := b.MarketImpact(size, taker)
	if !hasResult {
		h.writeJSON(w, http.StatusBadRequest, fail("order_size must be positive"))
		return
	}
	h.writeJSON(w, http.StatusOK, ok(result))
}

// HandleLiquidityProfile implements
// GET /api/orderbooks/{symbol}/liquidity-profile?levels={1..100}.
func (h *Handlers) HandleLiquidityProfile(w http.ResponseWriter, r *http.Request) {
	b, found := h.resolveBook(w, r)
	if !found {
		return
	}
	levels := 10
	if raw := r.URL.Query().Get("levels"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			h.writeJSON(w, http.StatusBadRequest, fail("levels must be an integer between 1 and 100"))
			return
		}
		levels = n
	}
	h.writeJSON(w, http.StatusOK, ok(b.LiquidityProfile(levels)))
}

// HandleStats implements GET /api/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	books := make(map[string]bkStats)
	for _, symbol := range h.registry.Symbols() {
		b, ok := h.registry.Book(symbol)
		if !ok {
			continue
		}
		snap := b.Snapshot(0)
		books[symbol] = bkStats{
			TotalBids:      snap.TotalBids,
			TotalAsks:      snap.TotalAsks,
			LastUpdateID:   snap.LastUpdateID,
			LastUpdateTime: snap.LastUpdateTime,
			ResyncCount:    h.registry.ResyncCount(symbol),
		}
	}

	stats := statsResponse{
		UptimeSecs: time.Since(h.startedAt).Seconds(),
		Venue: venueStats{
			State:             h.venue.State().String(),
			BootstrapMode:     h.venue.BootstrapMode(),
			ReconnectAttempts: h.venue.ReconnectAttempts(),
		},
		Subscribers: h.registry.SubscriberCount(),
		Books:       books,
	}
	h.writeJSON(w, http.StatusOK, ok(stats))
}

// resolveBook resolves {symbol} (case-insensitively) and writes a 404
// envelope if no book is registered for it.
func (h *Handlers) resolveBook(w http.ResponseWriter, r *http.Request) (*book.OrderBook, bool) {
	symbol := strings.ToLower(mux.Vars(r)["symbol"])
	b, found := h.registry.Book(symbol)
	if !found {
		h.writeJSON(w, http.StatusNotFound, fail("unknown symbol: "+symbol))
		return nil, false
	}
	return b, true
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errInvalidNumber
	}
	return n, nil
}

func parsePositiveDecimal(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, errInvalidNumber
	}
	return d, nil
}

func parseSide(raw string) (book.Side, error) {
	switch book.Side(raw) {
	case book.SideBids, book.SideAsks, book.SideBoth:
		return book.Side(raw), nil
	case "":
		return book.SideBoth, nil
	default:
		return "", errInvalidSide
	}
}

func parseTakerSide(raw string) (book.TakerSide, error) {
	switch book.TakerSide(raw) {
	case book.TakerBuy, book.TakerSell:
		return book.TakerSide(raw), nil
	default:
		return "", errInvalidTakerSide
	}
}
