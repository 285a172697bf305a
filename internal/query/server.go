package query

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/depthmirror/depthmirror/internal/book"
)

// Server runs the HTTP query surface and, mounted on the same router, the
// /metrics scrape endpoint and the push surface's WebSocket upgrade route.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// PushHandler is satisfied by push.Hub; kept as an interface here so query
// does not import push (push already imports book, and push's Hub needs no
// knowledge of the HTTP routing layer beyond being mountable).
type PushHandler interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// NewServer builds the router: the query endpoints from the handlers,
// /metrics via promhttp, and /ws mounted to pushHandler.
func NewServer(port int, registry *book.Registry, venueState StateProvider, pushHandler PushHandler, logger *slog.Logger) *Server {
	handlers := NewHandlers(registry, venueState, logger)

	r := mux.NewRouter()
	r.HandleFunc("/health", handlers.HandleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/orderbooks", handlers.HandleAllOrderbooks).Methods(http.MethodGet)
	r.HandleFunc("/api/orderbooks/{symbol}", handlers.HandleOrderbook).Methods(http.MethodGet)
	r.HandleFunc("/api/orderbooks/{symbol}/limit/{n}", handlers.HandleOrderbookLimit).Methods(http.MethodGet)
	r.HandleFunc("/api/orderbooks/{symbol}/acc-qty/{price}", handlers.HandleAccumulatedToPrice).Methods(http.MethodGet)
	r.HandleFunc("/api/orderbooks/{symbol}/market-impact/{size}", handlers.HandleMarketImpact).Methods(http.MethodGet)
	r.HandleFunc("/api/orderbooks/{symbol}/liquidity-profile", handlers.HandleLiquidityProfile).Methods(http.MethodGet)
	r.HandleFunc("/api/stats", handlers.HandleStats).Methods(http.MethodGet)
	r.HandleFunc("/ws", func(w http.ResponseWriter, req *http.Request) {
		pushHandler.ServeHTTP(w, req)
	})
	r.Handle("/metrics", promhttp.Handler())

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", port),
			Handler:      r,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With("component", "query_server"),
	}
}

// Start runs the HTTP server until it is shut down. It always returns a
// non-nil error except when Stop triggered a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("query surface starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("query server: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
