// Package venue implements the upstream exchange-feed client: a WebSocket
// connection that streams depth-diff updates and a REST client that fetches
// order book snapshots, together with the reconnect and bootstrap logic that
// keeps a Registry aligned with the venue.
package venue

import "github.com/depthmirror/depthmirror/internal/feed"

// subscribeMsg is the outbound control frame that opens a combined-stream
// depth subscription for one or more symbols.
type subscribeMsg struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

func newSubscribeMsg(id int64, symbols []string) subscribeMsg {
	params := make([]string, len(symbols))
	for i, s := range symbols {
		params[i] = streamName(s)
	}
	return subscribeMsg{Method: "SUBSCRIBE", Params: params, ID: id}
}

// streamName maps a trading pair symbol to its depth-diff stream name.
func streamName(symbol string) string {
	return lower(symbol) + "@depth"
}

func lower(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'A' && c <= 'Z' {
			out[i] = c + ('a' - 'A')
		}
	}
	return string(out)
}

// subscribeAck is the venue's response to a subscribe/unsubscribe request.
type subscribeAck struct {
	Result any   `json:"result"`
	ID     int64 `json:"id"`
}

// combinedEnvelope wraps a DiffUpdate when the client is subscribed to a
// combined stream (stream name + payload), rather than a single raw stream.
type combinedEnvelope struct {
	Stream string          `json:"stream"`
	Data   feed.DiffUpdate `json:"data"`
}

// State is the lifecycle state of a Client's upstream connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Open
	Subscribing
	Streaming
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Subscribing:
		return "subscribing"
	case Streaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// BootstrapMode selects how a Client aligns a freshly (re)connected stream
// with the book registry before treating diffs as authoritative.
type BootstrapMode string

const (
	// BootstrapLiveFirst accepts the first diff on a fresh connection
	// unconditionally, letting Registry's own uninitialized-book branch
	// perform the bootstrap.
	BootstrapLiveFirst BootstrapMode = "live-first"

	// BootstrapSnapshotFirst buffers diffs until a REST snapshot has been
	// fetched and applied, discards any buffered diff that the snapshot
	// already covers, and requires the first diff applied afterward to
	// satisfy the normal continuity window against the snapshot's
	// last_update_id.
	BootstrapSnapshotFirst BootstrapMode = "snapshot-first"
)
