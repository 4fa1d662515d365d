package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lang_gateway/internal/config"
	"lang_gateway/internal/httpapi"
	"lang_gateway/internal/utils"
)

func main() {
	logger := utils.NewLogger("gateway")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	utils.InitLogging(utils.ParseLogLevel(cfg.Log.Level), cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect stores and wire the metering engine
	deps, err := httpapi.NewDependencies(ctx, cfg)
	if err != nil {
		logger.Error("Failed to build dependencies", "error", err)
		os.Exit(1)
	}
	defer deps.Close()

	if err := deps.Start(ctx); err != nil {
		logger.Error("Failed to start background workers", "error", err)
		os.Exit(1)
	}

	// Create HTTP server
	addr := ":" + cfg.HTTPPort
	server := &http.Server{
		Addr:         addr,
		Handler:      httpapi.NewRouter(deps),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Language gateway listening", "addr", addr, "billing_provider", deps.Reconciler.ProviderName())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("Server error", "error", err)
	}

	logger.Info("Shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server forced to shutdown", "error", err)
	}

	logger.Info("Server exited")
}
