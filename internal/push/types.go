// Package push implements the streaming WebSocket surface: clients connect
// and receive an orderbook_update frame after every diff the registry
// applies, for every symbol. A subscribe message only requests a one-shot
// snapshot of one symbol; it does not filter later updates.
package push

import (
	"strconv"
	"time"
)

// frameType names the outbound frame kinds sent to a subscriber.
type frameType string

const (
	frameWelcome  frameType = "welcome"
	frameSnapshot frameType = "orderbooks_snapshot"
	frameUpdate   frameType = "orderbook_update"
	framePong     frameType = "pong"
	frameError    frameType = "error"
)

// epochMillis marshals a time.Time as a millisecond Unix epoch integer,
// matching the venue-facing wire convention used across push frames.
type epochMillis time.Time

func (e epochMillis) MarshalJSON() ([]byte, error) {
	return []byte(strconv.FormatInt(time.Time(e).UnixMilli(), 10)), nil
}

func nowMillis() epochMillis { return epochMillis(time.Now()) }

// outboundFrame is the envelope every server-to-client message uses. Data
// holds the frame's payload — a single book.Snapshot for orderbook_update,
// or a map[string]book.Snapshot for orderbooks_snapshot — always under the
// wire key "data".
type outboundFrame struct {
	Type      frameType   `json:"type"`
	Symbol    string      `json:"symbol,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Message   string      `json:"message,omitempty"`
	Timestamp epochMillis `json:"timestamp"`
}

// inboundFrame is the envelope for client-to-server control messages.
type inboundFrame struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}
