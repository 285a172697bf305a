package query

import "errors"

var (
	errInvalidNumber    = errors.New("value must be a positive, finite number")
	errInvalidSide      = errors.New("side must be one of: bids, asks, both")
	errInvalidTakerSide = errors.New("side must be one of: buy, sell")
)
