// Command mirror runs the order book mirror: it streams Binance USDT-M
// perpetual futures depth updates into an in-memory order book, and serves
// that state over HTTP (REST queries, a WebSocket push feed, and
// Prometheus metrics).
package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/depthmirror/depthmirror/internal/config"
	"github.com/depthmirror/depthmirror/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	sup := supervisor.New(cfg, logger)
	sup.Start()

	logger.Info("orderbook mirror started",
		"pairs", cfg.TradingPairs,
		"port", cfg.Port,
		"bootstrap_mode", cfg.BootstrapMode,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	if err := sup.Stop(); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
