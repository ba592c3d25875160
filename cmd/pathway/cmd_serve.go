package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rendis/pathway/internal/artifacts"
	"github.com/rendis/pathway/internal/complexity"
	"github.com/rendis/pathway/internal/generation"
	"github.com/rendis/pathway/internal/logging"
	"github.com/rendis/pathway/internal/refinement"
	"github.com/rendis/pathway/internal/scheduler"
	"github.com/rendis/pathway/internal/store"
	"github.com/rendis/pathway/internal/streaming"
	"github.com/rendis/pathway/pkg/mcp"
	"github.com/rendis/pathway/pkg/schema"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server over stdio",
	Long: `Starts an MCP server over stdin/stdout exposing the pathway refinement tools.

Sessions are persisted to libSQL when db_path is set, derived diagrams are cached
in Redis when redis_url is set, and stale sessions are pruned on a cron schedule.
Send SIGHUP to reload the settings file.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, level, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen, err := buildGenerator(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var cache artifacts.Cache
	if cfg.RedisURL != "" {
		rc, err := artifacts.NewRedisCache(ctx, cfg.RedisURL, cfg.CacheTTL)
		if err != nil {
			return err
		}
		defer rc.Close()
		cache = rc
		logger.Info("artifact cache: redis", "ttl", cfg.CacheTTL)
	}

	deps := refinement.Deps{Logger: logger}
	deps.Scorer, err = complexity.New(cfg.Scorer, logger)
	if err != nil {
		return err
	}

	hub := streaming.NewMemoryHub()
	deps.Sink = hub

	var st store.Store
	if cfg.DBPath != "" {
		db, err := openStore(ctx, cfg.DBPath)
		if err != nil {
			return err
		}
		defer db.Close()
		st = db
		deps.Sink = streaming.Tee(store.NewEventLog(db), hub)

		sched := scheduler.NewScheduler(logger)
		if err := sched.Register(scheduler.PruneJob(cfg.Maintenance.PruneCron, db, cfg.Maintenance.MaxAge, logger)); err != nil {
			return err
		}
		if err := sched.Register(scheduler.VacuumJob(cfg.Maintenance.VacuumCron, db)); err != nil {
			return err
		}
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()
		logger.Info("session store: libsql", "path", cfg.DBPath)
	}

	engine, err := refinement.NewEngine(gen, cfg.Engine, deps)
	if err != nil {
		return err
	}

	go watchReload(ctx, cfg, level, logger)

	srv := mcp.NewPathwayServer(mcp.PathwayServerDeps{
		Engine: engine,
		Store:  st,
		Cache:  cache,
		Events: hub,
		Logger: logger,
	})
	logger.Info("starting pathway MCP server over stdio", "version", version, "strict", cfg.Engine.Strict)
	return srv.Serve(ctx)
}

// buildGenerator wires the OpenAI chat model behind a circuit breaker. Without
// an API key the server still runs; every generation fails fast.
func buildGenerator(ctx context.Context, cfg Config, logger *slog.Logger) (generation.Generator, error) {
	if cfg.Model.APIKey == "" {
		logger.Warn("no generation api key configured; initialize, apply, regenerate and reorganize will fail")
		return generation.Func(func(context.Context, string, bool) (*generation.Result, error) {
			return nil, schema.NewError(schema.ErrCodeGenerationFailed, "no generation model configured")
		}), nil
	}

	model, err := generation.NewOpenAIChatModel(ctx, cfg.Model)
	if err != nil {
		return nil, err
	}
	chat := generation.NewChatModel(model, generation.WithLogger(logger))
	return generation.NewBreaker(chat, cfg.Breaker), nil
}

func openStore(ctx context.Context, dbPath string) (*store.LibSQLStore, error) {
	if path, ok := strings.CutPrefix(dbPath, "file:"); ok {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := store.NewLibSQLStore(dbPath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// watchReload re-reads the settings on SIGHUP. Only the log level applies in
// place; other changes are reported and need a restart.
func watchReload(ctx context.Context, current Config, level *slog.LevelVar, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
		}

		next, err := loadConfig(configPath)
		if err != nil {
			logger.Error("config reload failed", "error", err)
			continue
		}
		d := diffConfigs(current, next)
		if d.LogLevelChanged {
			lvl, err := logging.ParseLevel(next.LogLevel)
			if err != nil {
				logger.Error("config reload: bad log level", "error", err)
			} else {
				level.Set(lvl)
				logger.Info("log level changed", "level", next.LogLevel)
			}
		}
		if len(d.RestartNeeded) > 0 {
			logger.Warn("config changes need a restart", "fields", d.RestartNeeded)
		}
		current = next
	}
}
