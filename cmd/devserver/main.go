package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/virtual-fitting/internal/bootstrap"
	"github.com/kirillkom/virtual-fitting/internal/config"
	"github.com/kirillkom/virtual-fitting/internal/observability/logging"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_error", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger(os.Stdout, "devserver", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := bootstrap.NewDevServer(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_error", "error", err)
		os.Exit(1)
	}
	defer srv.Close()

	go func() {
		if err := srv.WatchSessionEvents(ctx, logger); err != nil {
			logger.Error("session_events_error", "error", err)
		}
	}()

	server := &http.Server{
		Addr:         ":" + cfg.DevPort,
		Handler:      srv.Handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("devserver_listening", "addr", server.Addr, "public_url", bootstrap.PublicURL(cfg))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("devserver_error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("devserver_shutdown_error", "error", err)
	}
}
