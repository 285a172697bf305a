package book

import (
	"log/slog"
	"sync"

	"github.com/depthmirror/depthmirror/internal/feed"
)

// largeGapThreshold is the fixed U - last_update_id gap past which a diff
// is treated as a resync rather than requiring strict continuity.
const largeGapThreshold = 1000

// Subscriber is a streaming consumer registered with the Registry. Notify
// is called once per successfully applied diff, with the freshly rebuilt
// snapshot for the affected symbol. Implementations must not block: the
// Registry removes any subscriber whose Notify call returns an error, and
// expects non-blocking delivery (e.g. a bounded per-subscriber queue) so a
// slow consumer never stalls ingestion.
type Subscriber interface {
	ID() string
	Notify(symbol string, snap Snapshot) error
}

// Instrumentation receives counters for the events the spec requires to be
// observable. A nil Instrumentation is valid; all hooks are no-ops.
type Instrumentation interface {
	DiffApplied(symbol string)
	DiffDropped(symbol, reason string)
	Resync(symbol string)
	SubscriberCount(n int)
}

type noopInstrumentation struct{}

func (noopInstrumentation) DiffApplied(string)         {}
func (noopInstrumentation) DiffDropped(string, string) {}
func (noopInstrumentation) Resync(string)              {}
func (noopInstrumentation) SubscriberCount(int)         {}

// Registry maps symbol to OrderBook and owns the set of streaming
// subscribers. It is the only thing permitted to mutate an OrderBook
// outside of OrderBook's own constructor.
type Registry struct {
	mu    sync.RWMutex
	books map[string]*OrderBook

	subsMu      sync.Mutex
	subscribers map[string]Subscriber

	resyncMu sync.Mutex
	resyncs  map[string]int64

	instr  Instrumentation
	logger *slog.Logger
}

// NewRegistry creates an empty Registry. instr may be nil.
func NewRegistry(logger *slog.Logger, instr Instrumentation) *Registry {
	if instr == nil {
		instr = noopInstrumentation{}
	}
	return &Registry{
		books:       make(map[string]*OrderBook),
		subscribers: make(map[string]Subscriber),
		resyncs:     make(map[string]int64),
		instr:       instr,
		logger:      logger.With("component", "registry"),
	}
}

// EnsureBook returns the book for symbol, creating an empty one
// (last_update_id 0) on first reference.
func (r *Registry) EnsureBook(symbol string) *OrderBook {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.books[symbol]; ok {
		return b
	}
	b := New(symbol)
	r.books[symbol] = b
	return b
}

// Book returns the existing book for symbol, if any.
func (r *Registry) Book(symbol string) (*OrderBook, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.books[symbol]
	return b, ok
}

// Symbols returns every symbol with a registered book.
func (r *Registry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.books))
	for s := range r.books {
		out = append(out, s)
	}
	return out
}

// ResyncCount returns how many large-gap resyncs symbol has undergone.
func (r *Registry) ResyncCount(symbol string) int64 {
	r.resyncMu.Lock()
	defer r.resyncMu.Unlock()
	return r.resyncs[symbol]
}

// ApplyDiff is the critical path: it applies a validated depth-diff to
// symbol's book under one of three branches keyed by the book's current
// last_update_id, per the venue's documented continuity rule, and
// broadcasts the post-apply snapshot to subscribers on success.
func (r *Registry) ApplyDiff(symbol string, diff feed.DiffUpdate) bool {
	if !feed.IsValidDiffUpdate(diff) {
		r.instr.DiffDropped(symbol, "malformed")
		return false
	}

	b := r.EnsureBook(symbol)
	current := b.LastUpdateID()

	switch {
	case current == 0:
		// Uninitialized: bootstrap from the live stream unconditionally.
	case diff.FirstUpdateID-current > largeGapThreshold:
		r.logger.Warn("large sequence gap, resyncing", "symbol", symbol, "current", current, "U", diff.FirstUpdateID)
		r.recordResync(symbol)
	default:
		if !feed.SequenceOK(current, diff.FirstUpdateID, diff.FinalUpdateID) {
			r.logger.Warn("dropping out-of-sequence diff", "symbol", symbol, "current", current, "U", diff.FirstUpdateID, "u", diff.FinalUpdateID)
			r.instr.DiffDropped(symbol, "out-of-sequence")
			return false
		}
	}

	for _, lvl := range diff.Bids {
		s, ok := feed.SanitizePriceLevel(lvl)
		if !ok {
			continue
		}
		b.AddBid(s.Price, s.Quantity, 1)
	}
	for _, lvl := range diff.Asks {
		s, ok := feed.SanitizePriceLevel(lvl)
		if !ok {
			continue
		}
		b.AddAsk(s.Price, s.Quantity, 1)
	}
	b.UpdateLastUpdateID(diff.FinalUpdateID)

	r.instr.DiffApplied(symbol)
	r.broadcast(symbol, b.Snapshot(0))
	return true
}

func (r *Registry) recordResync(symbol string) {
	r.resyncMu.Lock()
	r.resyncs[symbol]++
	r.resyncMu.Unlock()
	r.instr.Resync(symbol)
}

// ApplySnapshot replaces symbol's book contents wholesale from a validated
// REST snapshot. No broadcast is triggered — broadcasts are diff-driven
// only.
func (r *Registry) ApplySnapshot(symbol string, snap feed.SnapshotMsg) bool {
	if !feed.IsValidSnapshot(snap) {
		return false
	}

	b := r.EnsureBook(symbol)
	b.Clear()
	for _, lvl := range snap.Bids {
		s, ok := feed.SanitizePriceLevel(lvl)
		if !ok {
			continue
		}
		b.AddBid(s.Price, s.Quantity, 1)
	}
	for _, lvl := range snap.Asks {
		s, ok := feed.SanitizePriceLevel(lvl)
		if !ok {
			continue
		}
		b.AddAsk(s.Price, s.Quantity, 1)
	}
	b.UpdateLastUpdateID(snap.LastUpdateID)
	return true
}

// Subscribe registers a streaming subscriber to receive future broadcasts.
func (r *Registry) Subscribe(sub Subscriber) {
	r.subsMu.Lock()
	r.subscribers[sub.ID()] = sub
	n := len(r.subscribers)
	r.subsMu.Unlock()
	r.instr.SubscriberCount(n)
}

// Unsubscribe removes a subscriber, e.g. on disconnect.
func (r *Registry) Unsubscribe(id string) {
	r.subsMu.Lock()
	delete(r.subscribers, id)
	n := len(r.subscribers)
	r.subsMu.Unlock()
	r.instr.SubscriberCount(n)
}

// SubscriberCount returns the number of currently registered subscribers.
func (r *Registry) SubscriberCount() int {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	return len(r.subscribers)
}

// broadcast delivers snap to every subscriber, removing any whose Notify
// call fails. Subscribers are snapshotted into a slice before iterating so
// that a removal triggered mid-broadcast (by a concurrent disconnect, or by
// this very call) never corrupts the iteration.
func (r *Registry) broadcast(symbol string, snap Snapshot) {
	r.subsMu.Lock()
	subs := make([]Subscriber, 0, len(r.subscribers))
	for _, s := range r.subscribers {
		subs = append(subs, s)
	}
	r.subsMu.Unlock()

	var dead []string
	for _, sub := range subs {
		if err := sub.Notify(symbol, snap); err != nil {
			dead = append(dead, sub.ID())
		}
	}
	if len(dead) == 0 {
		return
	}

	r.subsMu.Lock()
	for _, id := range dead {
		delete(r.subscribers, id)
	}
	n := len(r.subscribers)
	r.subsMu.Unlock()
	r.instr.SubscriberCount(n)
}
