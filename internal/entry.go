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

	"github.com/starford/creolewiki/internal/api"
	"github.com/starford/creolewiki/internal/autosave"
	"github.com/starford/creolewiki/internal/editor"
	"github.com/starford/creolewiki/internal/mcpserver"
	"github.com/starford/creolewiki/internal/models"
	"github.com/starford/creolewiki/internal/page"
	"github.com/starford/creolewiki/internal/pageservice"
	"github.com/starford/creolewiki/internal/sse"
	"github.com/starford/creolewiki/internal/storage"
	"github.com/starford/creolewiki/internal/watch"
	"github.com/starford/creolewiki/internal/web"
	"github.com/starford/creolewiki/internal/wiki"
)

func setup(opts []Option) (*application, *slog.Logger, error) {
	app := &application{version: "dev", logOutput: os.Stdout}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(app.logOutput, &slog.HandlerOptions{
		Level: app.config.App.LogLevel,
	}))
	slog.SetDefault(logger)

	return app, logger, nil
}

// backend is the opened document store plus what the runtime needs around it.
type backend struct {
	store storage.Backend
	// flat is set for the flat backend; the watcher follows its tree.
	flat  *storage.Flat
	ready func(ctx context.Context) error
	close func() error
}

func openBackend(ctx context.Context, cfg StorageConfig, logger *slog.Logger) (*backend, error) {
	switch cfg.Backend {
	case BackendFlat:
		flat, err := storage.NewFlat(cfg.Flat.Root)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		return &backend{
			store: flat,
			flat:  flat,
			ready: func(context.Context) error {
				_, err := os.Stat(flat.Root())
				return err
			},
			close: func() error { return nil },
		}, nil
	case BackendSQLite:
		db := storage.OpenSQLite(cfg.SQLite.Path,
			storage.WithSeed(models.HelpKey, wiki.HelpText),
			storage.WithLogger(logger),
		)
		if err := db.Ready(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init storage: %w", err)
		}
		return &backend{store: db, ready: db.Ready, close: db.Close}, nil
	}
	return nil, fmt.Errorf("init storage: unknown backend %q", cfg.Backend)
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("storage_backend", cfg.Storage.Backend),
		slog.String("log_level", cfg.App.LogLevel.String()))

	b, err := openBackend(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	defer b.close()

	// SSE broker.
	broker := sse.NewBroker(0)
	defer broker.Close()

	sessions := editor.NewRegistry(b.store,
		editor.WithPublisher(broker),
		editor.WithLogger(logger),
		editor.WithIdleTTL(cfg.Autosave.IdleTTL),
		editor.WithPendingTTL(cfg.Autosave.PendingTTL),
		editor.WithAutosave(
			autosave.WithInterval(cfg.Autosave.Interval),
			autosave.WithQuiet(cfg.Autosave.Quiet),
		),
	)

	pages := page.NewController(b.store, sessions, page.WithPublisher(broker), page.WithLogger(logger))
	webHandler, err := web.New(pages, logger)
	if err != nil {
		return err
	}

	svc := pageservice.NewService(b.store, broker, logger)
	apiRouter := api.NewRouter(api.NewHandler(svc, sessions, broker, logger), cfg.Auth.AuthEnabled(), cfg.Auth.Token)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := b.ready(r.Context()); err != nil {
			logger.Warn("storage not ready", slog.String("error", err.Error()))
			writeStatus(w, http.StatusServiceUnavailable, "unavailable")
			return
		}
		writeStatus(w, http.StatusOK, "ok")
	})

	// Mount API routes under /api, pages everywhere else.
	r.Mount("/api", apiRouter)
	r.Mount("/", webHandler.Routes())

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(runCtx)

	// Reap idle editor sessions.
	g.Go(func() error {
		return sessions.Run(gCtx)
	})

	// Push outside edits of the flat tree to page viewers.
	if b.flat != nil && cfg.Storage.Flat.Watch {
		g.Go(func() error {
			return watch.New(b.flat, broker.PublishPage, watch.WithLogger(logger)).Run(gCtx)
		})
	}

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
		cancel()

		logger.Info("Shutting down server...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()

		// Pending edits are flushed before the event streams are cut.
		if err := sessions.CloseAll(shutdownCtx); err != nil {
			logger.Error("editor sessions close error", slog.String("error", err.Error()))
		}
		broker.Close()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the page tools over stdio until the client disconnects.
func RunMCP(ctx context.Context, opts ...Option) error {
	opts = append([]Option{WithLogOutput(os.Stderr)}, opts...)
	app, logger, err := setup(opts)
	if err != nil {
		return err
	}

	b, err := openBackend(ctx, app.config.Storage, logger)
	if err != nil {
		return err
	}
	defer b.close()

	srv := mcpserver.New(pageservice.NewService(b.store, nil, logger), app.version)
	logger.Info("MCP server starting on stdio", slog.String("storage_backend", app.config.Storage.Backend))
	return srv.ServeStdio()
}
