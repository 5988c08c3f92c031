// Package internal provides the application initialization and runtime logic
// behind the zensync commands.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/zensync/internal/api"
	"github.com/starford/zensync/internal/jsonstore"
	"github.com/starford/zensync/internal/ledger"
	"github.com/starford/zensync/internal/mcpserver"
	"github.com/starford/zensync/internal/sse"
	"github.com/starford/zensync/internal/storage"
	"github.com/starford/zensync/internal/syncer"
	"github.com/starford/zensync/internal/watcher"
	"github.com/starford/zensync/internal/zenodo"
)

// runtime holds the components shared by every command.
type runtime struct {
	cfg    *Config
	logger *slog.Logger
	store  *storage.FS
	db     *ledger.DB
	svc    *syncer.Service
}

func (rt *runtime) close() {
	if rt.db != nil {
		_ = rt.db.Close()
	}
}

// history returns the ledger as a Reader, or a nil interface when disabled.
func (rt *runtime) history() ledger.Reader {
	if rt.db == nil {
		return nil
	}
	return rt.db
}

func newApplication(opts []Option) (*application, error) {
	app := &application{
		out:     os.Stdout,
		logOut:  os.Stderr,
		version: "dev",
	}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// setup builds the runtime. withClient requires a token and connects the
// sync service to Zenodo; without it the service only answers queries.
func (app *application) setup(withClient bool, extra ...syncer.Option) (*runtime, error) {
	cfg := app.config

	// Logs go to stderr; stdout carries the progress report and MCP traffic.
	logger := slog.New(slog.NewJSONHandler(app.logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Debug("Configuration loaded",
		slog.String("zenodo_url", cfg.Zenodo.ResolvedBaseURL()),
		slog.String("root", cfg.Files.Root),
		slog.String("pattern", cfg.Files.Pattern),
		slog.Bool("ledger", cfg.Ledger.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))

	var client syncer.Depositor
	if withClient {
		if err := cfg.Zenodo.RequireToken(); err != nil {
			return nil, err
		}
		c, err := zenodo.NewClient(cfg.Zenodo.Client(), zenodo.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("init zenodo client: %w", err)
		}
		client = c
	}

	store, err := storage.NewFS(cfg.Files.Root)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	rt := &runtime{cfg: cfg, logger: logger, store: store}

	if cfg.Ledger.Enabled {
		path := cfg.Ledger.Path
		if !filepath.IsAbs(path) {
			path = filepath.Join(store.Root(), path)
		}
		db, err := ledger.Open(path)
		if err != nil {
			return nil, fmt.Errorf("init ledger: %w", err)
		}
		rt.db = db
	}

	svcOpts := []syncer.Option{
		syncer.WithLogger(logger),
		syncer.WithOutput(app.out),
	}
	if rt.db != nil {
		svcOpts = append(svcOpts, syncer.WithLedger(rt.db))
	}
	svcOpts = append(svcOpts, extra...)
	rt.svc = syncer.New(client, store, cfg.Files.Paths(), svcOpts...)
	return rt, nil
}

// RunSync performs one sync pass over the workspace.
func RunSync(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.setup(true)
	if err != nil {
		return err
	}
	defer rt.close()

	_, err = rt.svc.Run(ctx, app.config.Sync.Options())
	return err
}

// RunWatch runs an initial sync pass, then re-syncs whenever candidate files
// change, until interrupted. Unchanged files are always skipped.
func RunWatch(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.setup(true)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runOpts := app.config.Sync.Options()
	runOpts.SkipUnchanged = true
	run := func(ctx context.Context) error {
		_, err := rt.svc.Run(ctx, runOpts)
		return err
	}

	if err := run(ctx); err != nil {
		rt.logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	return watcher.Watch(ctx, rt.watchConfig(), rt.logger, run, nil)
}

func (rt *runtime) watchConfig() watcher.Config {
	return watcher.Config{
		Root:     rt.store.Root(),
		Pattern:  rt.cfg.Files.Pattern,
		Debounce: rt.cfg.Watch.Debounce,
	}
}

// RunServe starts the status HTTP API, with an optional watcher, until a
// shutdown signal arrives.
func RunServe(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	rt, err := app.setup(true, syncer.WithEventCallback(broker.PublishSyncEvent))
	if err != nil {
		return err
	}
	defer rt.close()
	logger := rt.logger

	apiRouter := api.NewRouter(rt.svc, rt.history(), cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
		if _, err := rt.svc.Candidates(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.Bool("watch", cfg.Watch.Enabled))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Watch.Enabled {
		runOpts := cfg.Sync.Options()
		runOpts.SkipUnchanged = true
		g.Go(func() error {
			return watcher.Watch(gCtx, rt.watchConfig(), logger, func(ctx context.Context) error {
				_, err := rt.svc.Run(ctx, runOpts)
				return err
			}, broker.PublishFileEvent)
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

		logger.Info("Shutting down server...")

		// Open SSE streams only end when the broker closes.
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

// errShutdown cancels the errgroup context so the watcher stops with the server.
var errShutdown = errors.New("shutdown")

// RunMCP serves the read-only MCP tools on stdin/stdout.
func RunMCP(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.setup(false)
	if err != nil {
		return err
	}
	defer rt.close()

	srv := mcpserver.New(rt.svc, rt.history(), app.version)
	rt.logger.Info("MCP server starting on stdio")
	return srv.ServeStdio()
}

// ShowState prints the publication state document.
func ShowState(_ context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.setup(false)
	if err != nil {
		return err
	}
	defer rt.close()

	data, err := jsonstore.Marshal(rt.svc.State())
	if err != nil {
		return err
	}
	_, err = app.out.Write(data)
	return err
}

// ShowHistory prints published versions from the ledger, newest first.
// An empty path lists every file.
func ShowHistory(_ context.Context, path string, limit int, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	if !app.config.Ledger.Enabled {
		return fmt.Errorf("history ledger is disabled (ledger.enabled: false)")
	}
	rt, err := app.setup(false)
	if err != nil {
		return err
	}
	defer rt.close()

	if path != "" {
		path = filepath.Clean(path)
	}
	rows, err := rt.db.History(path, limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(app.out, "No publications recorded.")
		return err
	}

	tw := tabwriter.NewWriter(app.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PUBLISHED\tPATH\tDOI\tCONCEPT DOI\tCHECKSUM")
	for _, p := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.12s\n",
			p.PublishedAt.Local().Format(time.DateTime), p.Path, p.DOI, p.ConceptDOI, p.Checksum)
	}
	return tw.Flush()
}
