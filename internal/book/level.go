// Package book implements the per-symbol aggregated price ladder: the Level
// and OrderBook types, and the Registry that owns one OrderBook per symbol
// plus the set of streaming subscribers fed by it.
package book

import (
	"time"

	"github.com/shopspring/decimal"
)

// Level is a single aggregated price-level entry on one side of a book.
// A level is present in a side's map iff Quantity is greater than zero —
// the zero value is never stored, it is represented by the key's absence.
type Level struct {
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Count     int
	Timestamp time.Time
}

// update refreshes quantity, order count, and the last-touch timestamp in
// place. Price never changes after a level is created: levels are keyed by
// price, so a price change is always a delete-then-insert at the map layer.
func (l *Level) update(quantity decimal.Decimal, count int) {
	l.Quantity = quantity
	l.Count = count
	l.Timestamp = time.Now()
}

// View is the externally-visible, immutable projection of a Level returned
// by queries. It exists separately from Level so callers can never mutate
// book state through a returned value.
type View struct {
	Price     decimal.Decimal `json:"price"`
	Quantity  decimal.Decimal `json:"quantity"`
	Count     int             `json:"count"`
	Timestamp time.Time       `json:"timestamp"`
}

func (l *Level) view() View {
	return View{
		Price:     l.Price,
		Quantity:  l.Quantity,
		Count:     l.Count,
		Timestamp: l.Timestamp,
	}
}
