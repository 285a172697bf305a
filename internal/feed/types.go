// Package feed defines the venue's wire message shapes and the pure
// predicates that decide whether an inbound message is well-formed enough
// to hand to the book registry.
package feed

import "github.com/shopspring/decimal"

// WireLevel is a single [price, quantity] pair as the venue sends it: two
// decimal strings in a JSON array. Using a fixed-size array lets
// encoding/json decode the wire shape directly with no intermediate type.
type WireLevel [2]string

func (l WireLevel) priceStr() string    { return l[0] }
func (l WireLevel) quantityStr() string { return l[1] }

// DiffUpdate is the venue's incremental depth-diff envelope.
type DiffUpdate struct {
	EventType     string      `json:"e"`
	Symbol        string      `json:"s"`
	FirstUpdateID int64       `json:"U"`
	FinalUpdateID int64       `json:"u"`
	Bids          []WireLevel `json:"b"`
	Asks          []WireLevel `json:"a"`
}

// SnapshotMsg is the venue's REST depth-snapshot response.
type SnapshotMsg struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         []WireLevel `json:"bids"`
	Asks         []WireLevel `json:"asks"`
}

// Sanitized is a price level after string parsing, ready to apply to a book.
type Sanitized struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}
