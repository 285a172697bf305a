// Package supervisor wires config, metrics, the order book registry, the
// venue client, the push hub, and the query server into one runnable
// process and owns their startup and shutdown order.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/depthmirror/depthmirror/internal/book"
	"github.com/depthmirror/depthmirror/internal/config"
	"github.com/depthmirror/depthmirror/internal/metrics"
	"github.com/depthmirror/depthmirror/internal/push"
	"github.com/depthmirror/depthmirror/internal/query"
	"github.com/depthmirror/depthmirror/internal/venue"
)

// Supervisor owns the lifecycle of every subsystem: New() wires them
// together, Start() launches background goroutines, and Stop() tears them
// down: cancel the shared context, close the upstream venue connection,
// then shut down the query/push HTTP server.
type Supervisor struct {
	cfg    *config.Config
	logger *slog.Logger

	registry *book.Registry
	venue    *venue.Client
	hub      *push.Hub
	server   *query.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires all components from cfg. It does not start anything.
func New(cfg *config.Config, logger *slog.Logger) *Supervisor {
	reg := prometheus.DefaultRegisterer
	m := metrics.New(reg)

	registry := book.NewRegistry(logger, m)

	rest := venue.NewRESTClient(cfg.BinanceRESTURL, logger)
	venueClient := venue.NewClient(venue.Config{
		WSURL:   cfg.BinanceWSURL,
		Symbols: cfg.TradingPairs,
		Mode:    venue.BootstrapMode(cfg.BootstrapMode),
	}, registry, rest, m, logger)

	hub := push.NewHub(registry, nil, m, logger)
	server := query.NewServer(cfg.Port, registry, venueClient, hub, logger)

	ctx, cancel := context.WithCancel(context.Background())

	return &Supervisor{
		cfg:      cfg,
		logger:   logger.With("component", "supervisor"),
		registry: registry,
		venue:    venueClient,
		hub:      hub,
		server:   server,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start launches the venue client and the query/push HTTP server. It
// returns once both background goroutines have been started; it does not
// block until they exit.
func (s *Supervisor) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.venue.Run(s.ctx); err != nil && s.ctx.Err() == nil {
			s.logger.Error("venue client stopped", "error", err)
		}
	}()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.Start(); err != nil {
			s.logger.Error("query server stopped", "error", err)
		}
	}()

	s.logger.Info("started", "symbols", s.cfg.TradingPairs, "port", s.cfg.Port, "bootstrap_mode", s.cfg.BootstrapMode)
}

// Stop shuts down every subsystem in order: the venue connection is closed
// first so no further diffs arrive, then the query/push HTTP server is
// shut down, which stops accepting new connections and subscribers.
// http.Server.Shutdown does not close hijacked connections, so push
// subscribers' WebSocket connections are not closed here.
func (s *Supervisor) Stop() error {
	s.logger.Info("stopping")

	s.cancel()
	if err := s.venue.Close(); err != nil {
		s.logger.Warn("closing venue connection", "error", err)
	}

	if err := s.server.Stop(); err != nil {
		return fmt.Errorf("stop query server: %w", err)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		s.logger.Warn("timed out waiting for background goroutines to exit")
	}

	return nil
}
