package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lalosystems/lalocore/internal/config"
)

// runServe implements the serve command: load configuration, wire the
// core, start the diagnostics HTTP endpoint and the Telemetry Sink's
// periodic flush, then block until a shutdown signal or server error.
func runServe(ctx context.Context, configPath string, debug bool, httpAddr string) error {
	if debug {
		slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	slog.Info("starting lalocore", "version", version, "commit", commit, "config", configPath, "debug", debug)

	cfg, err := loadOrDefaultConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	slog.Info("configuration loaded",
		"demo_mode", cfg.DemoMode,
		"models", len(cfg.Models),
		"request_timeout_s", cfg.RequestTimeoutSeconds,
	)

	c, err := buildCore(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize core: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c.telemetry.StartPeriodicFlush(ctx, time.Duration(cfg.UsageFlushIntervalSeconds)*time.Second)
	defer c.telemetry.Stop()
	defer c.shutdown(context.Background())

	server, listener, err := startDiagnosticsServer(httpAddr)
	if err != nil {
		return fmt.Errorf("failed to start diagnostics server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	slog.Info("lalocore started", "diagnostics_addr", httpAddr, "registered_models", len(c.registry.List(nil)))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}
	slog.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	c.telemetry.Flush(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	slog.Info("lalocore stopped gracefully")
	return nil
}

// loadOrDefaultConfig loads configPath, falling back to config.Default()
// (with demo mode forced on, since no model catalogue is declared) when
// the file does not exist — the zero-friction path for a first run.
func loadOrDefaultConfig(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err == nil {
		return cfg, nil
	}
	if os.IsNotExist(err) {
		slog.Warn("config file not found, starting in demo mode with no declared models", "path", configPath)
		cfg := config.Default()
		cfg.DemoMode = true
		return cfg, nil
	}
	return nil, err
}

// startDiagnosticsServer exposes /healthz and /metrics, the same pair the
// teacher's gateway HTTP server registers before mounting product-specific
// routes; lalocore's product-specific HTTP surface is deliberately out of
// scope (it is the Request Handler façade's caller's responsibility).
func startDiagnosticsServer(addr string) (*http.Server, net.Listener, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, err
	}
	return server, listener, nil
}
