package book

import (
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// OrderBook is the per-symbol aggregated price ladder. Bid and ask sides are
// independent price -> Level maps; ordering (bids descending, asks
// ascending) is derived at query time rather than maintained incrementally,
// which keeps mutation O(1) at the cost of an O(n log n) sort per read —
// acceptable at the traffic volumes this mirror targets (see spec's
// complexity note on the ladder).
//
// Each OrderBook has its own RWMutex: every mutating method takes the write
// lock for the duration of that one call, and every query takes the read
// lock. The Registry applies a diff or snapshot through several such calls,
// so the lock is not held across a whole apply and a concurrent query can
// observe one partly applied.
type OrderBook struct {
	mu             sync.RWMutex
	symbol         string
	bids           map[string]*Level
	asks           map[string]*Level
	lastUpdateID   int64
	lastUpdateTime time.Time
}

// New creates an empty order book for symbol with last_update_id 0
// ("uninitialized").
func New(symbol string) *OrderBook {
	return &OrderBook{
		symbol: symbol,
		bids:   make(map[string]*Level),
		asks:   make(map[string]*Level),
	}
}

// Symbol returns the book's symbol.
func (b *OrderBook) Symbol() string { return b.symbol }

// LastUpdateID returns the last applied update id.
func (b *OrderBook) LastUpdateID() int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastUpdateID
}

// UpdateLastUpdateID sets the last applied update id. Called only by the
// Registry, which is responsible for the monotonicity invariant.
func (b *OrderBook) UpdateLastUpdateID(id int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastUpdateID = id
	b.lastUpdateTime = time.Now()
}

// Clear resets the book to its just-created state: both sides empty,
// last_update_id 0. Invoked only as part of applying a snapshot.
func (b *OrderBook) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bids = make(map[string]*Level)
	b.asks = make(map[string]*Level)
	b.lastUpdateID = 0
	b.lastUpdateTime = time.Time{}
}

// AddBid writes or replaces the bid level at price, or deletes it if qty is
// zero. Deleting an absent price is a no-op.
func (b *OrderBook) AddBid(price, qty decimal.Decimal, count int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	write(b.bids, price, qty, count)
}

// AddAsk is AddBid for the ask side.
func (b *OrderBook) AddAsk(price, qty decimal.Decimal, count int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	write(b.asks, price, qty, count)
}

// UpdateBid has AddBid's effect but is a no-op if the price is not already
// present. Kept for API symmetry with the venue's add/update distinction;
// diff application always uses AddBid since the venue treats both the same.
func (b *OrderBook) UpdateBid(price, qty decimal.Decimal, count int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.bids[price.String()]; ok {
		write(b.bids, price, qty, count)
	}
}

// UpdateAsk is UpdateBid for the ask side.
func (b *OrderBook) UpdateAsk(price, qty decimal.Decimal, count int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.asks[price.String()]; ok {
		write(b.asks, price, qty, count)
	}
}

func write(side map[string]*Level, price, qty decimal.Decimal, count int) {
	key := price.String()
	if qty.Sign() <= 0 {
		delete(side, key)
		return
	}
	if lvl, ok := side[key]; ok {
		lvl.update(qty, count)
		return
	}
	side[key] = &Level{Price: price, Quantity: qty, Count: count, Timestamp: time.Now()}
}

// Bids returns the top limit bid levels, highest price first. limit <= 0
// returns every level.
func (b *OrderBook) Bids(limit int) []View {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return viewSide(sortedLevels(b.bids, true), limit)
}

// Asks returns the top limit ask levels, lowest price first. limit <= 0
// returns every level.
func (b *OrderBook) Asks(limit int) []View {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return viewSide(sortedLevels(b.asks, false), limit)
}

// sortedLevels returns the side's levels ordered by price; desc true sorts
// highest-first (bids), false sorts lowest-first (asks).
func sortedLevels(side map[string]*Level, desc bool) []*Level {
	out := make([]*Level, 0, len(side))
	for _, lvl := range side {
		out = append(out, lvl)
	}
	sort.Slice(out, func(i, j int) bool {
		if desc {
			return out[i].Price.GreaterThan(out[j].Price)
		}
		return out[i].Price.LessThan(out[j].Price)
	})
	return out
}

func viewSide(levels []*Level, limit int) []View {
	if limit > 0 && limit < len(levels) {
		levels = levels[:limit]
	}
	views := make([]View, len(levels))
	for i, lvl := range levels {
		views[i] = lvl.view()
	}
	return views
}

// Snapshot returns the composite book view: top limit levels each side (0 =
// all), spread, mid price, and full-side counts. Spread and mid are absent
// if either side is empty; spread may be negative under a transient venue
// cross, which this never treats as an error.
func (b *OrderBook) Snapshot(limit int) Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bids := sortedLevels(b.bids, true)
	asks := sortedLevels(b.asks, false)

	snap := Snapshot{
		Symbol:         b.symbol,
		LastUpdateID:   b.lastUpdateID,
		LastUpdateTime: b.lastUpdateTime,
		Bids:           viewSide(bids, limit),
		Asks:           viewSide(asks, limit),
		TotalBids:      len(bids),
		TotalAsks:      len(asks),
	}

	if len(bids) > 0 && len(asks) > 0 {
		bestBid, bestAsk := bids[0].Price, asks[0].Price
		spread := bestAsk.Sub(bestBid)
		mid := bestBid.Add(bestAsk).Div(decimal.NewFromInt(2))
		snap.Spread = &spread
		snap.MidPrice = &mid
	}

	return snap
}

// AccumulatedToPrice walks the requested side(s) from the touch outward,
// summing every level whose price qualifies relative to target: price >=
// target for bids, price <= target for asks. Because sides are sorted, the
// walk stops at the first disqualifying level.
func (b *OrderBook) AccumulatedToPrice(target decimal.Decimal, side Side) AccumulatedResult {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := AccumulatedResult{Target: target, Side: side}

	if side == SideBids || side == SideBoth {
		bids := accumulate(sortedLevels(b.bids, true), target, func(p decimal.Decimal) bool {
			return p.GreaterThanOrEqual(target)
		})
		result.Bids = &bids
	}
	if side == SideAsks || side == SideBoth {
		asks := accumulate(sortedLevels(b.asks, false), target, func(p decimal.Decimal) bool {
			return p.LessThanOrEqual(target)
		})
		result.Asks = &asks
	}

	total := AccumulatedSide{Quantity: decimal.Zero, Cost: decimal.Zero}
	if result.Bids != nil {
		total.Quantity = total.Quantity.Add(result.Bids.Quantity)
		total.Cost = total.Cost.Add(result.Bids.Cost)
	}
	if result.Asks != nil {
		total.Quantity = total.Quantity.Add(result.Asks.Quantity)
		total.Cost = total.Cost.Add(result.Asks.Cost)
	}
	total.AveragePrice = averagePrice(total.Cost, total.Quantity)
	result.Total = total

	return result
}

func accumulate(levels []*Level, target decimal.Decimal, qualifies func(decimal.Decimal) bool) AccumulatedSide {
	qty := decimal.Zero
	cost := decimal.Zero
	for _, lvl := range levels {
		if !qualifies(lvl.Price) {
			break
		}
		qty = qty.Add(lvl.Quantity)
		cost = cost.Add(lvl.Price.Mul(lvl.Quantity))
	}
	return AccumulatedSide{Quantity: qty, Cost: cost, AveragePrice: averagePrice(cost, qty)}
}

func averagePrice(cost, qty decimal.Decimal) decimal.Decimal {
	if qty.Sign() <= 0 {
		return decimal.Zero
	}
	return cost.Div(qty)
}

// MarketImpact simulates a taker order of orderSize consuming the opposite
// side of the book: a buy walks asks ascending, a sell walks bids
// descending. Returns (nil, false) for orderSize <= 0, matching the spec's
// "distinguished null/absent result" for that boundary.
func (b *OrderBook) MarketImpact(orderSize decimal.Decimal, side TakerSide) (*MarketImpactResult, bool) {
	if orderSize.Sign() <= 0 {
		return nil, false
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	var levels []*Level
	if side == TakerBuy {
		levels = sortedLevels(b.asks, false)
	} else {
		levels = sortedLevels(b.bids, true)
	}

	remaining := orderSize
	totalCost := decimal.Zero
	finalPrice := decimal.Zero
	consumed := make([]ConsumedLevel, 0, 8)

	for _, lvl := range levels {
		if remaining.Sign() <= 0 {
			break
		}
		take := lvl.Quantity
		if remaining.LessThan(take) {
			take = remaining
		}
		cost := lvl.Price.Mul(take)
		totalCost = totalCost.Add(cost)
		remaining = remaining.Sub(take)
		finalPrice = lvl.Price
		consumed = append(consumed, ConsumedLevel{Price: lvl.Price, Quantity: take, Cost: cost})
	}

	filled := orderSize.Sub(remaining)
	avg := averagePrice(totalCost, filled)

	result := &MarketImpactResult{
		OrderSize:      orderSize,
		Side:           side,
		TotalCost:      totalCost,
		AveragePrice:   avg,
		FinalPrice:     finalPrice,
		RemainingSize:  remaining,
		FilledSize:     filled,
		LevelsConsumed: consumed,
		CanFill:        remaining.Sign() == 0,
	}
	result.Slippage = slippage(avg, side, b.bids, b.asks)

	return result, true
}

// slippage expresses the consumed average price as a percentage deviation
// from the pre-trade touch on the side being consumed.
func slippage(avg decimal.Decimal, side TakerSide, bids, asks map[string]*Level) decimal.Decimal {
	if avg.IsZero() {
		return decimal.Zero
	}
	if side == TakerBuy {
		bestAsk := bestOf(asks, false)
		if bestAsk.Sign() <= 0 {
			return decimal.Zero
		}
		return avg.Sub(bestAsk).Div(bestAsk).Mul(decimal.NewFromInt(100))
	}
	bestBid := bestOf(bids, true)
	if bestBid.Sign() <= 0 {
		return decimal.Zero
	}
	return bestBid.Sub(avg).Div(bestBid).Mul(decimal.NewFromInt(100))
}

func bestOf(side map[string]*Level, desc bool) decimal.Decimal {
	levels := sortedLevels(side, desc)
	if len(levels) == 0 {
		return decimal.Zero
	}
	return levels[0].Price
}

// LiquidityProfile returns the top `levels` rungs of each side with a
// running accumulated quantity/cost/average-price down the ladder.
func (b *OrderBook) LiquidityProfile(levels int) LiquidityProfile {
	if levels <= 0 {
		levels = 10
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	return LiquidityProfile{
		Symbol:     b.symbol,
		CapturedAt: time.Now(),
		Bids:       rungs(sortedLevels(b.bids, true), levels),
		Asks:       rungs(sortedLevels(b.asks, false), levels),
	}
}

func rungs(side []*Level, limit int) []LiquidityRung {
	if limit < len(side) {
		side = side[:limit]
	}
	out := make([]LiquidityRung, 0, len(side))
	accQty, accCost := decimal.Zero, decimal.Zero
	for _, lvl := range side {
		accQty = accQty.Add(lvl.Quantity)
		accCost = accCost.Add(lvl.Price.Mul(lvl.Quantity))
		out = append(out, LiquidityRung{
			Price:               lvl.Price,
			Quantity:            lvl.Quantity,
			Count:               lvl.Count,
			AccumulatedQuantity: accQty,
			AccumulatedCost:     accCost,
			AverageAccumPrice:   averagePrice(accCost, accQty),
		})
	}
	return out
}
