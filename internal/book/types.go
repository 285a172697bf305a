package book

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side selects which side(s) of the book a query walks.
type Side string

const (
	SideBids Side = "bids"
	SideAsks Side = "asks"
	SideBoth Side = "both"
)

// TakerSide is the direction of a simulated taker order for MarketImpact.
// A buy consumes the ask side; a sell consumes the bid side.
type TakerSide string

const (
	TakerBuy  TakerSide = "buy"
	TakerSell TakerSide = "sell"
)

// Snapshot is the composite view returned by OrderBook.Snapshot.
type Snapshot struct {
	Symbol         string           `json:"symbol"`
	LastUpdateID   int64            `json:"last_update_id"`
	LastUpdateTime time.Time        `json:"last_update_time"`
	Bids           []View           `json:"bids"`
	Asks           []View           `json:"asks"`
	Spread         *decimal.Decimal `json:"spread,omitempty"`
	MidPrice       *decimal.Decimal `json:"mid_price,omitempty"`
	TotalBids      int              `json:"total_bids"`
	TotalAsks      int              `json:"total_asks"`
}

// AccumulatedSide holds the walked total for one side of AccumulatedToPrice.
type AccumulatedSide struct {
	Quantity     decimal.Decimal `json:"quantity"`
	Cost         decimal.Decimal `json:"cost"`
	AveragePrice decimal.Decimal `json:"average_price"`
}

// AccumulatedResult is the result of OrderBook.AccumulatedToPrice.
type AccumulatedResult struct {
	Target decimal.Decimal  `json:"target"`
	Side   Side             `json:"side"`
	Bids   *AccumulatedSide `json:"bids,omitempty"`
	Asks   *AccumulatedSide `json:"asks,omitempty"`
	Total  AccumulatedSide  `json:"total"`
}

// ConsumedLevel is one price level consumed while simulating a taker order.
type ConsumedLevel struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	Cost     decimal.Decimal `json:"cost"`
}

// MarketImpactResult is the result of OrderBook.MarketImpact.
type MarketImpactResult struct {
	OrderSize      decimal.Decimal `json:"order_size"`
	Side           TakerSide       `json:"side"`
	TotalCost      decimal.Decimal `json:"total_cost"`
	AveragePrice   decimal.Decimal `json:"average_price"`
	FinalPrice     decimal.Decimal `json:"final_price"`
	RemainingSize  decimal.Decimal `json:"remaining_size"`
	FilledSize     decimal.Decimal `json:"filled_size"`
	LevelsConsumed []ConsumedLevel `json:"levels_consumed"`
	Slippage       decimal.Decimal `json:"slippage"`
	CanFill        bool            `json:"can_fill"`
}

// LiquidityRung is one rung of a LiquidityProfile: a level plus the running
// total accumulated down the ladder to and including that level.
type LiquidityRung struct {
	Price                decimal.Decimal `json:"price"`
	Quantity             decimal.Decimal `json:"quantity"`
	Count                int             `json:"count"`
	AccumulatedQuantity  decimal.Decimal `json:"accumulated_quantity"`
	AccumulatedCost      decimal.Decimal `json:"accumulated_cost"`
	AverageAccumPrice    decimal.Decimal `json:"average_price"`
}

// LiquidityProfile is the result of OrderBook.LiquidityProfile.
type LiquidityProfile struct {
	Symbol     string          `json:"symbol"`
	CapturedAt time.Time       `json:"captured_at"`
	Bids       []LiquidityRung `json:"bids"`
	Asks       []LiquidityRung `json:"asks"`
}
