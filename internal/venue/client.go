package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/depthmirror/depthmirror/internal/book"
	"github.com/depthmirror/depthmirror/internal/feed"
)

const (
	pingInterval     = 20 * time.Second
	readTimeout      = 60 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	snapshotDepth    = 1000
	rawFrameBuffer   = 1024
	bookInitPacing   = 100 * time.Millisecond
)

// Instrumentation receives connection-lifecycle counters. A nil
// Instrumentation is valid; all hooks are no-ops.
type Instrumentation interface {
	ReconnectAttempt(symbol string)
	BootstrapComplete(symbol string)
}

type noopInstrumentation struct{}

func (noopInstrumentation) ReconnectAttempt(string)  {}
func (noopInstrumentation) BootstrapComplete(string) {}

// Client streams depth-diff updates for a set of symbols into a
// book.Registry, reconnecting with exponential backoff and bootstrapping
// each symbol according to its configured BootstrapMode.
type Client struct {
	wsURL   string
	symbols []string
	mode    BootstrapMode

	registry *book.Registry
	rest     *RESTClient
	instr    Instrumentation
	logger   *slog.Logger

	connMu sync.Mutex
	conn   *websocket.Conn

	state             atomic.Int32
	reconnectAttempts atomic.Int64
}

// Config carries the parameters needed to construct a Client.
type Config struct {
	WSURL   string
	Symbols []string
	Mode    BootstrapMode
}

// NewClient creates a venue Client. instr may be nil.
func NewClient(cfg Config, registry *book.Registry, rest *RESTClient, instr Instrumentation, logger *slog.Logger) *Client {
	if instr == nil {
		instr = noopInstrumentation{}
	}
	mode := cfg.Mode
	if mode == "" {
		mode = BootstrapLiveFirst
	}
	return &Client{
		wsURL:    cfg.WSURL,
		symbols:  cfg.Symbols,
		mode:     mode,
		registry: registry,
		rest:     rest,
		instr:    instr,
		logger:   logger.With("component", "venue_client"),
	}
}

// State returns the client's current connection lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// BootstrapMode returns the client's configured bootstrap mode.
func (c *Client) BootstrapMode() string {
	return string(c.mode)
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// ReconnectAttempts returns the number of reconnect attempts made since the
// client was created.
func (c *Client) ReconnectAttempts() int64 {
	return c.reconnectAttempts.Load()
}

// Run connects and maintains the upstream connection until ctx is
// cancelled, reconnecting with exponential backoff on any failure. It
// first pre-creates an empty book for every configured symbol.
func (c *Client) Run(ctx context.Context) error {
	c.initializeBooks(ctx)

	backoff := time.Second

	for {
		err := c.connectAndStream(ctx)
		if ctx.Err() != nil {
			c.setState(Disconnected)
			return ctx.Err()
		}

		c.setState(Disconnected)
		c.reconnectAttempts.Add(1)
		for _, s := range c.symbols {
			c.instr.ReconnectAttempt(strings.ToLower(s))
		}
		c.logger.Warn("upstream disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// initializeBooks pre-creates an empty book for every configured symbol
// before the first connection attempt, pacing creation by a short delay
// per symbol rather than registering all of them in a single instant.
func (c *Client) initializeBooks(ctx context.Context) {
	for i, symbol := range c.symbols {
		c.registry.EnsureBook(strings.ToLower(symbol))
		if i < len(c.symbols)-1 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(bookInitPacing):
			}
		}
	}
}

// Close closes the upstream connection, if any, unblocking the read loop.
func (c *Client) Close() error {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// rawFrame is one inbound WebSocket message paired with any read error that
// terminated the pump (msg is nil in that case).
type rawFrame struct {
	msg []byte
	err error
}

func (c *Client) connectAndStream(ctx context.Context) error {
	c.setState(Connecting)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	c.setState(Open)

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()
	defer func() {
		c.connMu.Lock()
		conn.Close()
		c.conn = nil
		c.connMu.Unlock()
	}()

	c.setState(Subscribing)
	if err := c.subscribe(conn); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	pumpCtx, cancelPump := context.WithCancel(ctx)
	defer cancelPump()

	frames := make(chan rawFrame, rawFrameBuffer)
	go c.readPump(pumpCtx, conn, frames)

	bootstrap := newBootstrapTracker(c.mode, c.symbols)

	// The dispatch loop starts consuming frames immediately, concurrently
	// with runSnapshotBootstrap's REST fetches below, so any diff that
	// arrives during the fetch window actually reaches
	// bootstrap.buffer/bootstrap.buffering instead of queuing unread.
	dispatchErr := make(chan error, 1)
	go func() {
		dispatchErr <- c.dispatchLoop(ctx, frames, bootstrap)
	}()

	if c.mode == BootstrapSnapshotFirst {
		if err := c.runSnapshotBootstrap(ctx, bootstrap); err != nil {
			return fmt.Errorf("snapshot bootstrap: %w", err)
		}
	}

	c.setState(Streaming)
	c.logger.Info("upstream streaming", "symbols", c.symbols, "mode", c.mode)

	go c.pingLoop(pumpCtx, conn)

	return <-dispatchErr
}

// dispatchLoop consumes frames and hands each to dispatch until ctx is
// cancelled or the read pump reports an error.
func (c *Client) dispatchLoop(ctx context.Context, frames <-chan rawFrame, bootstrap *bootstrapTracker) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-frames:
			if f.err != nil {
				return fmt.Errorf("read: %w", f.err)
			}
			c.dispatch(f.msg, bootstrap)
		}
	}
}

// readPump continuously reads frames off conn and forwards them to out. It
// is the only goroutine that calls conn.ReadMessage, so buffering during
// bootstrap and normal dispatch afterward share one read path.
func (c *Client) readPump(ctx context.Context, conn *websocket.Conn, out chan<- rawFrame) {
	for {
		if ctx.Err() != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			select {
			case out <- rawFrame{err: err}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case out <- rawFrame{msg: msg}:
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) subscribe(conn *websocket.Conn) error {
	msg := newSubscribeMsg(1, c.symbols)
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}

func (c *Client) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.connMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			c.connMu.Unlock()
			if err != nil {
				c.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

// dispatch routes one inbound frame: subscription acks are ignored, and
// depth-diff payloads (raw or combined-stream wrapped) are handed to
// handleDiff.
func (c *Client) dispatch(data []byte, bootstrap *bootstrapTracker) {
	var ack subscribeAck
	if err := json.Unmarshal(data, &ack); err == nil && ack.ID != 0 {
		return
	}

	var combined combinedEnvelope
	if err := json.Unmarshal(data, &combined); err == nil && combined.Stream != "" {
		c.handleDiff(combined.Data, bootstrap)
		return
	}

	var diff feed.DiffUpdate
	if err := json.Unmarshal(data, &diff); err != nil {
		c.logger.Warn("ignoring unparseable frame", "data", string(data))
		return
	}
	c.handleDiff(diff, bootstrap)
}

// handleDiff normalizes the wire symbol (the venue sends it upper-cased,
// per spec, e.g. "BTCUSDT") to the registry's lowercase key convention
// before touching the bootstrap tracker or the registry, so book lookups
// by the query and push surfaces always resolve regardless of the wire or
// configured casing.
func (c *Client) handleDiff(diff feed.DiffUpdate, bootstrap *bootstrapTracker) {
	if !feed.IsValidDiffUpdate(diff) {
		if diff.EventType == "depthUpdate" {
			c.logger.Warn("dropping malformed diff", "symbol", diff.Symbol)
		} else {
			c.logger.Debug("ignoring non-depth frame", "event", diff.EventType)
		}
		return
	}
	symbol := strings.ToLower(diff.Symbol)
	if bootstrap.buffering(symbol) {
		bootstrap.buffer(symbol, diff)
		return
	}
	c.registry.ApplyDiff(symbol, diff)
}

// runSnapshotBootstrap fetches and applies a REST snapshot for every
// symbol while the concurrently-running readPump buffers any diffs that
// arrive in the meantime (via dispatch -> handleDiff -> bootstrap.buffer,
// gated by bootstrap.buffering). Once a symbol's snapshot is applied,
// buffered diffs already covered by it are discarded and the remainder are
// replayed through the registry before live dispatch resumes for that
// symbol.
func (c *Client) runSnapshotBootstrap(ctx context.Context, bootstrap *bootstrapTracker) error {
	for _, symbol := range c.symbols {
		bootstrap.arm(strings.ToLower(symbol))
	}
	for _, symbol := range c.symbols {
		// The REST endpoint requires the venue's own casing for the symbol
		// query parameter; the registry key derived from it is lowercased.
		key := strings.ToLower(symbol)
		snap, err := c.rest.Snapshot(ctx, symbol, snapshotDepth)
		if err != nil {
			return fmt.Errorf("%s: %w", symbol, err)
		}
		c.registry.ApplySnapshot(key, snap)

		for _, d := range bootstrap.releaseAfter(key, snap.LastUpdateID) {
			c.registry.ApplyDiff(key, d)
		}
		c.instr.BootstrapComplete(key)
	}
	return nil
}

// bootstrapTracker implements the snapshot-first bootstrap mode: while a
// symbol is "armed", inbound diffs for it are buffered instead of applied
// directly; releaseAfter disarms it, drops buffered diffs the snapshot
// already covers, and returns the rest in arrival order for replay.
type bootstrapTracker struct {
	mu      sync.Mutex
	armed   map[string]bool
	pending map[string][]feed.DiffUpdate
}

func newBootstrapTracker(mode BootstrapMode, symbols []string) *bootstrapTracker {
	t := &bootstrapTracker{
		armed:   make(map[string]bool),
		pending: make(map[string][]feed.DiffUpdate),
	}
	return t
}

func (t *bootstrapTracker) arm(symbol string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.armed[symbol] = true
}

func (t *bootstrapTracker) buffering(symbol string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed[symbol]
}

func (t *bootstrapTracker) buffer(symbol string, diff feed.DiffUpdate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[symbol] = append(t.pending[symbol], diff)
}

func (t *bootstrapTracker) releaseAfter(symbol string, lastUpdateID int64) []feed.DiffUpdate {
	t.mu.Lock()
	defer t.mu.Unlock()

	buffered := t.pending[symbol]
	delete(t.pending, symbol)
	delete(t.armed, symbol)

	fresh := make([]feed.DiffUpdate, 0, len(buffered))
	for _, d := range buffered {
		if d.FinalUpdateID > lastUpdateID {
			fresh = append(fresh, d)
		}
	}
	return fresh
}
