package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/sheetimport/internal/config"
	"github.com/JonMunkholm/sheetimport/internal/core"
	_ "github.com/JonMunkholm/sheetimport/internal/importers" // Register built-in importers
	"github.com/JonMunkholm/sheetimport/internal/logging"
	"github.com/JonMunkholm/sheetimport/internal/store"
	"github.com/JonMunkholm/sheetimport/internal/web"
)

func main() {
	// A .env file is optional; real environment variables win.
	if err := godotenv.Load(); err == nil {
		slog.Info("loaded .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("configuration loaded", "config", cfg.String())

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}
	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	}

	history := store.NewHistory(pool)
	if err := history.EnsureSchema(ctx); err != nil {
		slog.Error("failed to create history table", "error", err)
		os.Exit(1)
	}
	if err := store.EnsureTables(ctx, pool, core.All()); err != nil {
		slog.Error("failed to create import tables", "error", err)
		os.Exit(1)
	}

	signatures := core.DefaultSignatures()
	if path := cfg.Import.SignaturesFile; path != "" {
		if signatures, err = core.LoadSignaturesFile(path); err != nil {
			slog.Error("failed to load error signatures", "path", path, "error", err)
			os.Exit(1)
		}
		slog.Info("loaded error signatures", "path", path)
	}

	service, err := core.NewService(core.ServiceConfig{
		SpoolDir:      cfg.Import.SpoolDir,
		RunTimeout:    cfg.Import.RunTimeout,
		MaxConcurrent: cfg.Import.MaxConcurrent,
		MaxWait:       cfg.Import.MaxWait,
		CancelGrace:   cfg.Import.CancelGrace,
		CacheSize:     cfg.Import.ResultCache,
		Defaults:      cfg.ImportDefaults(),
		Signatures:    signatures,
	}, store.NewSinkFactory(pool, cfg.Database.StatementTimeout), history)
	if err != nil {
		slog.Error("failed to create service", "error", err)
		os.Exit(1)
	}
	for _, imp := range service.Importers() {
		slog.Debug("importer registered", "key", imp.Key, "table", imp.Table, "fields", len(imp.Schema))
	}

	var jobs sync.WaitGroup
	jobs.Add(1)
	go func() {
		defer jobs.Done()
		err := service.StartRetentionScheduler(ctx, core.RetentionConfig{
			HistoryDays:   cfg.Retention.HistoryDays,
			SpoolMaxAge:   cfg.Retention.SpoolMaxAge,
			CheckInterval: cfg.Retention.CheckInterval,
			Schedule:      cfg.Retention.Schedule,
		})
		if err != nil {
			slog.Error("retention scheduler not started", "error", err)
		}
	}()

	if cfg.Inbox.Dir != "" {
		watcher, err := core.NewInboxWatcher(service, core.InboxConfig{
			Dir:    cfg.Inbox.Dir,
			Settle: cfg.Inbox.Settle,
		})
		if err != nil {
			slog.Error("failed to prepare inbox", "dir", cfg.Inbox.Dir, "error", err)
			os.Exit(1)
		}
		jobs.Add(1)
		go func() {
			defer jobs.Done()
			if err := watcher.Run(ctx); err != nil {
				slog.Error("inbox watcher stopped", "error", err)
			}
		}()
	}

	server := web.NewServer(ctx, service, cfg)
	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Start() }()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			slog.Error("server error", "error", err)
		}
		stop()
	}

	slog.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if status := service.LimiterStatus(); status.Active > 0 {
		slog.Info("waiting for imports to complete", "active", status.Active)
	}
	if err := service.Shutdown(shutdownCtx); err != nil {
		slog.Warn("imports did not complete in time", "error", err)
	}
	jobs.Wait()
	slog.Info("server stopped")
}
