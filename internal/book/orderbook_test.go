package book

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestEmptyBookQueries(t *testing.T) {
	t.Parallel()
	b := New("btcusdt")

	snap := b.Snapshot(0)
	if snap.Spread != nil || snap.MidPrice != nil {
		t.Errorf("expected absent spread/mid on empty book, got %+v / %+v", snap.Spread, snap.MidPrice)
	}
	if len(b.Bids(0)) != 0 || len(b.Asks(0)) != 0 {
		t.Error("expected empty sides on a new book")
	}

	result, ok := b.MarketImpact(d("10"), TakerBuy)
	if !ok {
		t.Fatal("MarketImpact(10, buy) on empty book should still return a result")
	}
	if !result.FilledSize.IsZero() {
		t.Errorf("filled size = %v, want 0", result.FilledSize)
	}
	if result.CanFill {
		t.Error("can_fill should be false when nothing could be consumed")
	}
}

func TestBasicTopOfBook(t *testing.T) {
	t.Parallel()
	b := New("btcusdt")
	b.AddBid(d("50000"), d("1.5"), 1)
	b.AddAsk(d("50001"), d("2.0"), 1)

	snap := b.Snapshot(0)
	if snap.Spread == nil || !snap.Spread.Equal(d("1")) {
		t.Errorf("spread = %v, want 1", snap.Spread)
	}
	if snap.MidPrice == nil || !snap.MidPrice.Equal(d("50000.5")) {
		t.Errorf("mid = %v, want 50000.5", snap.MidPrice)
	}
	if len(snap.Bids) != 1 || !snap.Bids[0].Price.Equal(d("50000")) || !snap.Bids[0].Quantity.Equal(d("1.5")) {
		t.Errorf("bids[0] = %+v, want price 50000 qty 1.5", snap.Bids[0])
	}
}

func TestBidSortDescendingAskSortAscending(t *testing.T) {
	t.Parallel()
	b := New("btcusdt")
	b.AddBid(d("50000"), d("1"), 1)
	b.AddBid(d("50001"), d("1"), 1)
	b.AddBid(d("49999"), d("1"), 1)
	b.AddAsk(d("50002"), d("1"), 1)
	b.AddAsk(d("50004"), d("1"), 1)
	b.AddAsk(d("50003"), d("1"), 1)

	bids := b.Bids(0)
	wantBids := []string{"50001", "50000", "49999"}
	for i, w := range wantBids {
		if !bids[i].Price.Equal(d(w)) {
			t.Errorf("bids[%d] = %v, want %v", i, bids[i].Price, w)
		}
	}

	asks := b.Asks(0)
	wantAsks := []string{"50002", "50003", "50004"}
	for i, w := range wantAsks {
		if !asks[i].Price.Equal(d(w)) {
			t.Errorf("asks[%d] = %v, want %v", i, asks[i].Price, w)
		}
	}
}

func TestDeleteViaZeroQuantity(t *testing.T) {
	t.Parallel()
	b := New("btcusdt")
	b.AddBid(d("50000"), d("1.5"), 1)
	b.AddBid(d("50000"), d("0"), 0)

	if len(b.Bids(0)) != 0 {
		t.Error("expected bid removed after zero-quantity add")
	}

	// deleting an absent price is a no-op, not an error
	b.AddBid(d("12345"), d("0"), 0)
	if len(b.Bids(0)) != 0 {
		t.Error("deleting an absent price should not create a level")
	}
}

func TestUpdateBidNoopWhenAbsent(t *testing.T) {
	t.Parallel()
	b := New("btcusdt")
	b.UpdateBid(d("100"), d("5"), 1)
	if len(b.Bids(0)) != 0 {
		t.Error("UpdateBid should be a no-op when the price is not already present")
	}

	b.AddBid(d("100"), d("5"), 1)
	b.UpdateBid(d("100"), d("9"), 2)
	bids := b.Bids(0)
	if len(bids) != 1 || !bids[0].Quantity.Equal(d("9")) {
		t.Errorf("UpdateBid should overwrite an existing level, got %+v", bids)
	}
}

func TestMarketImpactAcrossLevels(t *testing.T) {
	t.Parallel()
	b := New("btcusdt")
	b.AddAsk(d("100"), d("2"), 1)
	b.AddAsk(d("101"), d("3"), 1)
	b.AddAsk(d("102"), d("10"), 1)

	result, ok := b.MarketImpact(d("4"), TakerBuy)
	if !ok {
		t.Fatal("expected a result")
	}
	if len(result.LevelsConsumed) != 2 {
		t.Fatalf("levels_consumed = %+v, want 2 entries", result.LevelsConsumed)
	}
	if !result.LevelsConsumed[0].Price.Equal(d("100")) || !result.LevelsConsumed[0].Quantity.Equal(d("2")) {
		t.Errorf("level[0] = %+v, want (100, 2)", result.LevelsConsumed[0])
	}
	if !result.LevelsConsumed[1].Price.Equal(d("101")) || !result.LevelsConsumed[1].Quantity.Equal(d("2")) {
		t.Errorf("level[1] = %+v, want (101, 2)", result.LevelsConsumed[1])
	}
	if !result.TotalCost.Equal(d("402")) {
		t.Errorf("total_cost = %v, want 402", result.TotalCost)
	}
	if !result.AveragePrice.Equal(d("100.5")) {
		t.Errorf("average_price = %v, want 100.5", result.AveragePrice)
	}
	if !result.FinalPrice.Equal(d("101")) {
		t.Errorf("final_price = %v, want 101", result.FinalPrice)
	}
	if !result.Slippage.Equal(d("0.5")) {
		t.Errorf("slippage = %v, want 0.5", result.Slippage)
	}
	if !result.CanFill {
		t.Error("can_fill should be true: order fully consumed")
	}
}

func TestMarketImpactNonPositiveSizeIsAbsent(t *testing.T) {
	t.Parallel()
	b := New("btcusdt")
	b.AddAsk(d("100"), d("2"), 1)

	if _, ok := b.MarketImpact(d("0"), TakerBuy); ok {
		t.Error("order_size == 0 should return an absent result")
	}
	if _, ok := b.MarketImpact(d("-1"), TakerBuy); ok {
		t.Error("order_size < 0 should return an absent result")
	}
}

func TestAccumulatedToPrice(t *testing.T) {
	t.Parallel()
	b := New("btcusdt")
	b.AddBid(d("99"), d("1"), 1)
	b.AddBid(d("98"), d("2"), 1)
	b.AddBid(d("97"), d("5"), 1)

	result := b.AccumulatedToPrice(d("98"), SideBids)
	if result.Bids == nil {
		t.Fatal("expected bids side populated")
	}
	if !result.Bids.Quantity.Equal(d("3")) {
		t.Errorf("quantity = %v, want 3", result.Bids.Quantity)
	}
	if !result.Bids.Cost.Equal(d("295")) {
		t.Errorf("cost = %v, want 295", result.Bids.Cost)
	}
	want := d("295").Div(d("3"))
	if !result.Bids.AveragePrice.Equal(want) {
		t.Errorf("average = %v, want %v", result.Bids.AveragePrice, want)
	}
}

func TestTransientCrossReportsNegativeSpread(t *testing.T) {
	t.Parallel()
	b := New("btcusdt")
	b.AddBid(d("100"), d("1"), 1)
	b.AddAsk(d("99"), d("1"), 1)

	snap := b.Snapshot(0)
	if snap.Spread == nil {
		t.Fatal("expected a spread even when crossed")
	}
	if !snap.Spread.Equal(d("-1")) {
		t.Errorf("spread = %v, want -1", snap.Spread)
	}
}

func TestLiquidityProfileRunningTotals(t *testing.T) {
	t.Parallel()
	b := New("btcusdt")
	b.AddBid(d("100"), d("1"), 1)
	b.AddBid(d("99"), d("2"), 1)

	profile := b.LiquidityProfile(10)
	if len(profile.Bids) != 2 {
		t.Fatalf("expected 2 bid rungs, got %d", len(profile.Bids))
	}
	if !profile.Bids[0].AccumulatedQuantity.Equal(d("1")) {
		t.Errorf("rung0 accumulated qty = %v, want 1", profile.Bids[0].AccumulatedQuantity)
	}
	if !profile.Bids[1].AccumulatedQuantity.Equal(d("3")) {
		t.Errorf("rung1 accumulated qty = %v, want 3", profile.Bids[1].AccumulatedQuantity)
	}
}

func TestClearResetsBook(t *testing.T) {
	t.Parallel()
	b := New("btcusdt")
	b.AddBid(d("100"), d("1"), 1)
	b.UpdateLastUpdateID(42)

	b.Clear()

	if b.LastUpdateID() != 0 {
		t.Errorf("last_update_id after clear = %d, want 0", b.LastUpdateID())
	}
	if len(b.Bids(0)) != 0 {
		t.Error("expected no bids after clear")
	}
}
