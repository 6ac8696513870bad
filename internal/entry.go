// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/lightauth/internal/api"
	"github.com/starford/lightauth/internal/apperr"
	"github.com/starford/lightauth/internal/sse"
	"github.com/starford/lightauth/internal/vaultservice"
	"github.com/starford/lightauth/internal/watcher"
)

// TypeStatus is sent to each SSE client on connect.
const TypeStatus = "status"

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	logger := app.logger
	if logger == nil {
		// Initialize structured JSON logger.
		logger = NewLogger(cfg, os.Stdout)
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("data_dir", cfg.Data.Dir),
		slog.String("audit_db", cfg.Data.AuditPath()),
		slog.Bool("auth", cfg.Auth.AuthEnabled()),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(time.Second)
	defer broker.Close()

	svc, closeSvc, err := OpenService(cfg, logger, vaultservice.WithNotifier(broker))
	if err != nil {
		return err
	}
	defer closeSvc()

	broker.OnConnect(func() []sse.Event {
		return []sse.Event{{Type: TypeStatus, Data: svc.Status()}}
	})

	if app.password != nil {
		ok, err := svc.Unlock(ctx, *app.password)
		switch {
		case ok && errors.Is(err, apperr.ErrVaultUnreadable):
			logger.Warn("vault unreadable, serving read-only", slog.String("error", err.Error()))
		case err != nil:
			return fmt.Errorf("unlock: %w", err)
		case !ok:
			return fmt.Errorf("unlock: wrong password")
		}
	}

	vaultFile, err := svc.VaultFile()
	if err != nil {
		return fmt.Errorf("resolve vault file: %w", err)
	}

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           newHTTPHandler(svc, broker, cfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Reload the vault when another process replaces it.
	g.Go(func() error {
		err := watcher.Watch(gCtx, vaultFile, svc, watcher.DefaultDebounce, logger, func(path string) {
			logger.Info("vault reloaded from disk", slog.String("path", path))
		})
		if err != nil {
			logger.Warn("watcher disabled", slog.String("error", err.Error()))
		}
		return nil
	})

	// Stream codes to connected clients.
	g.Go(func() error {
		return broker.RunTicker(gCtx, time.Second, func(now time.Time) (any, error) {
			return svc.Codes(now)
		}, logger)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// SSE handlers return once the broker closes their channels.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// errShutdown cancels the group's context so the watcher and ticker stop
// after a signal.
var errShutdown = errors.New("shutdown")

func newHTTPHandler(svc *vaultservice.Service, broker *sse.Broker, cfg *Config) http.Handler {
	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, []string{cfg.App.HTTP.Host}, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !svc.Unlocked() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"locked"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api; /api/events is served by the broker.
	r.Mount("/api", apiRouter)

	return r
}
