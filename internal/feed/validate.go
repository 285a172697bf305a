package feed

import "github.com/shopspring/decimal"

// IsValidPriceLevel reports whether a wire level is well-formed: both
// fields parse as decimals, price is strictly positive, and quantity is
// non-negative. Non-finite values (decimal.NewFromString rejects anything
// that isn't a plain decimal literal) are rejected by construction.
func IsValidPriceLevel(l WireLevel) bool {
	price, err := decimal.NewFromString(l.priceStr())
	if err != nil || !price.IsPositive() {
		return false
	}
	qty, err := decimal.NewFromString(l.quantityStr())
	if err != nil || qty.IsNegative() {
		return false
	}
	return true
}

// IsValidDiffUpdate reports whether msg is a well-formed depth-diff
// envelope: the right event kind, a non-empty symbol, and every bid/ask
// entry individually valid.
func IsValidDiffUpdate(msg DiffUpdate) bool {
	if msg.EventType != "depthUpdate" {
		return false
	}
	if msg.Symbol == "" {
		return false
	}
	for _, lvl := range msg.Bids {
		if !IsValidPriceLevel(lvl) {
			return false
		}
	}
	for _, lvl := range msg.Asks {
		if !IsValidPriceLevel(lvl) {
			return false
		}
	}
	return true
}

// IsValidSnapshot reports whether msg is a well-formed snapshot envelope.
func IsValidSnapshot(msg SnapshotMsg) bool {
	if msg.LastUpdateID <= 0 {
		return false
	}
	for _, lvl := range msg.Bids {
		if !IsValidPriceLevel(lvl) {
			return false
		}
	}
	for _, lvl := range msg.Asks {
		if !IsValidPriceLevel(lvl) {
			return false
		}
	}
	return true
}

// SequenceOK is the venue's standard diff-continuity rule: a diff [U, u] is
// acceptable as the next update against current iff it covers the expected
// next id, i.e. U <= current+1 <= u.
func SequenceOK(current, firstUpdateID, finalUpdateID int64) bool {
	return firstUpdateID <= current+1 && finalUpdateID >= current+1
}

// SanitizePriceLevel parses a wire level into decimals. Call only after
// IsValidPriceLevel has confirmed it parses and satisfies the domain
// constraints; the second return mirrors that check for callers that
// validate and sanitize in one step.
func SanitizePriceLevel(l WireLevel) (Sanitized, bool) {
	if !IsValidPriceLevel(l) {
		return Sanitized{}, false
	}
	price, _ := decimal.NewFromString(l.priceStr())
	qty, _ := decimal.NewFromString(l.quantityStr())
	return Sanitized{Price: price, Quantity: qty}, true
}
