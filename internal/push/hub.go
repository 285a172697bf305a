package push

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/depthmirror/depthmirror/internal/book"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 * 1024
	sendBuffer     = 256
)

// Instrumentation receives push-surface counters. A nil Instrumentation is
// valid; all hooks are no-ops.
type Instrumentation interface {
	ClientConnected()
	ClientDisconnected()
	FrameDropped(clientID string)
}

type noopInstrumentation struct{}

func (noopInstrumentation) ClientConnected()    {}
func (noopInstrumentation) ClientDisconnected() {}
func (noopInstrumentation) FrameDropped(string) {}

// Hub upgrades incoming HTTP requests into WebSocket clients, registers
// them with a book.Registry, and handles their lifecycle. It does not
// broadcast itself — the Registry calls Notify on each registered Client,
// which is this package's book.Subscriber implementation.
type Hub struct {
	registry       *book.Registry
	allowedOrigins []string
	instr          Instrumentation
	logger         *slog.Logger
}

// NewHub creates a Hub bound to registry. instr may be nil. allowedOrigins
// empty means same-origin/localhost only, matching the conservative default
// CheckOrigin policy.
func NewHub(registry *book.Registry, allowedOrigins []string, instr Instrumentation, logger *slog.Logger) *Hub {
	if instr == nil {
		instr = noopInstrumentation{}
	}
	return &Hub{
		registry:       registry,
		allowedOrigins: allowedOrigins,
		instr:          instr,
		logger:         logger.With("component", "push_hub"),
	}
}

// ServeHTTP upgrades the connection, registers a Client, and starts its
// pumps. It returns immediately; the client's goroutines outlive the call.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(req *http.Request) bool {
			return h.originAllowed(req.Header.Get("Origin"), req.Host)
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	id := uuid.NewString()
	client := &Client{
		id:     id,
		hub:    h,
		conn:   conn,
		send:   make(chan outboundFrame, sendBuffer),
		logger: h.logger.With("client_id", id),
	}

	h.registry.Subscribe(client)
	h.instr.ClientConnected()

	client.send <- outboundFrame{Type: frameWelcome, Message: "connected", Timestamp: nowMillis()}
	client.send <- outboundFrame{Type: frameSnapshot, Data: h.allBooksSnapshot(), Timestamp: nowMillis()}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) allBooksSnapshot() map[string]book.Snapshot {
	out := make(map[string]book.Snapshot)
	for _, symbol := range h.registry.Symbols() {
		if b, ok := h.registry.Book(symbol); ok {
			out[symbol] = b.Snapshot(0)
		}
	}
	return out
}

func (h *Hub) originAllowed(origin, reqHost string) bool {
	if origin == "" {
		return true
	}
	originURL, err := url.Parse(origin)
	if err != nil {
		return false
	}
	normalized := strings.ToLower(originURL.Scheme) + "://" + strings.ToLower(originURL.Host)

	if len(h.allowedOrigins) > 0 {
		for _, allowed := range h.allowedOrigins {
			u, err := url.Parse(allowed)
			if err != nil {
				continue
			}
			if normalized == strings.ToLower(u.Scheme)+"://"+strings.ToLower(u.Host) {
				return true
			}
		}
		return false
	}

	host := strings.ToLower(originURL.Hostname())
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}
	reqHostname := reqHost
	if idx := strings.LastIndex(reqHostname, ":"); idx >= 0 {
		reqHostname = reqHostname[:idx]
	}
	return reqHostname != "" && host == strings.ToLower(reqHostname)
}

// Client is one streaming subscriber: it implements book.Subscriber so the
// Registry can push diff-applied snapshots to it directly.
type Client struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan outboundFrame
	logger *slog.Logger
}

// ID implements book.Subscriber.
func (c *Client) ID() string { return c.id }

// Notify implements book.Subscriber. Every subscriber receives every
// update unconditionally — no per-symbol filtering state is maintained.
// It is non-blocking: if the client's send buffer is full, the oldest
// queued frame is dropped to make room rather than stalling the
// registry's broadcast.
func (c *Client) Notify(symbol string, snap book.Snapshot) error {
	frame := outboundFrame{Type: frameUpdate, Symbol: symbol, Data: snap, Timestamp: nowMillis()}
	c.enqueue(frame)
	return nil
}

func (c *Client) enqueue(frame outboundFrame) {
	select {
	case c.send <- frame:
		return
	default:
	}
	// buffer full: drop the oldest queued frame and retry once.
	select {
	case <-c.send:
		c.hub.instr.FrameDropped(c.id)
	default:
	}
	select {
	case c.send <- frame:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(frame)
			if err != nil {
				c.logger.Error("marshal frame", "error", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.registry.Unsubscribe(c.id)
		c.hub.instr.ClientDisconnected()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket error", "error", err)
			}
			return
		}
		c.handleInbound(data)
	}
}

// handleInbound responds to client control messages. A "subscribe" request
// triggers a one-shot orderbook_update for the requested symbol; it does
// not establish any persistent filtering state, matching the push
// surface's all-subscribers-receive-all-updates behavior.
func (c *Client) handleInbound(data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return
	}
	switch frame.Type {
	case "ping":
		c.enqueue(outboundFrame{Type: framePong, Timestamp: nowMillis()})
	case "subscribe":
		if frame.Symbol == "" {
			return
		}
		if b, ok := c.hub.registry.Book(frame.Symbol); ok {
			c.enqueue(outboundFrame{Type: frameUpdate, Symbol: frame.Symbol, Data: b.Snapshot(0), Timestamp: nowMillis()})
		}
	}
}
