package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rendis/wayfind/internal/capability"
	"github.com/rendis/wayfind/internal/checkpoint"
	"github.com/rendis/wayfind/internal/engine"
	"github.com/rendis/wayfind/internal/llm"
	"github.com/rendis/wayfind/internal/logging"
	"github.com/rendis/wayfind/internal/memory"
	"github.com/rendis/wayfind/internal/nodes"
	"github.com/rendis/wayfind/internal/server"
	"github.com/rendis/wayfind/pkg/mcp"
)

func main() {
	mcpMode := flag.Bool("mcp", false, "serve MCP tools over stdio instead of HTTP")
	flag.Parse()

	// .env is a local-development convenience; absence is fine.
	_ = godotenv.Load()

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger, *mcpMode); err != nil {
		logger.Error("wayfind exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger, mcpMode bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := checkpoint.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open checkpoint store: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate checkpoint store: %w", err)
	}

	var profiles memory.Store
	if cfg.RedisAddr != "" {
		redisStore := memory.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		defer redisStore.Close()
		profiles = redisStore
		logger.Info("profile store enabled", slog.String("redis_addr", cfg.RedisAddr))
	} else {
		logger.Info("profile store disabled, reflection will be skipped")
	}

	completer, err := llm.New(ctx, llm.Config{
		Backend:    cfg.LLMBackend,
		Model:      cfg.LLMModel,
		OllamaHost: cfg.OllamaHost,
	})
	if err != nil {
		return fmt.Errorf("init language model backend: %w", err)
	}

	registry, catalog, err := buildRegistry(cfg, profiles, logger)
	if err != nil {
		return err
	}

	pool := engine.NewWorkerPool(cfg.PoolSize)
	defer pool.Shutdown()

	eng := buildEngine(cfg, store, completer, registry, catalog, profiles, pool, logger)

	if mcpMode {
		logger.Info("serving MCP tools over stdio")
		srv := mcp.NewWayfindServer(mcp.WayfindServerDeps{Engine: eng, Logger: logger})
		return srv.Serve(ctx)
	}
	return serveHTTP(ctx, cfg, eng, logger)
}

// buildRegistry registers the built-in capabilities. The catalog is also
// returned so the synthesizer can ground simple answers in it.
func buildRegistry(cfg Config, profiles memory.Store, logger *slog.Logger) (*capability.Registry, capability.Searcher, error) {
	registry := capability.NewRegistry()

	var catalog capability.Searcher
	if cfg.CatalogPath != "" {
		fileCatalog, err := capability.NewFileCatalog(cfg.CatalogPath)
		if err != nil {
			return nil, nil, fmt.Errorf("load tool catalog: %w", err)
		}
		catalog = fileCatalog
		logger.Info("tool catalog loaded",
			slog.String("path", cfg.CatalogPath),
			slog.Int("entries", fileCatalog.Len()),
		)
	}

	caps := []capability.Capability{
		capability.NewWebSearch(nil, ""),
		capability.NewClock(time.Now),
	}
	if catalog != nil {
		caps = append(caps, capability.NewHybridRetrieval(catalog, nil))
	}
	if profiles != nil {
		caps = append(caps, capability.NewMemoryRead(profiles))
	}
	calculator, err := capability.NewBudgetCalculator(cfg.AlertRule)
	if err != nil {
		return nil, nil, fmt.Errorf("compile budget alert rule: %w", err)
	}
	caps = append(caps, calculator)

	for _, c := range caps {
		if err := registry.Register(c); err != nil {
			return nil, nil, fmt.Errorf("register capability %s: %w", c.Name(), err)
		}
	}
	return registry, catalog, nil
}

func buildEngine(
	cfg Config,
	store checkpoint.Store,
	completer llm.Completer,
	registry *capability.Registry,
	catalog capability.Searcher,
	profiles memory.Store,
	pool *engine.WorkerPool,
	logger *slog.Logger,
) *engine.Engine {
	nodeCfg := nodes.Config{
		ScoreThreshold: cfg.ScoreThreshold,
		MaxIterations:  cfg.MaxIterations,
		FanOut:         cfg.FanOut,
	}

	eng := engine.New(store, engine.Graph{}, engine.Options{Logger: logger})
	eng.SetGraph(engine.Graph{
		Routing:      nodes.NewRouter(completer, eng),
		Planning:     nodes.NewPlanner(completer, profiles, eng),
		Approval:     nodes.NewApproval(eng),
		ToolLoop:     nodes.NewToolLoop(completer, registry, profiles, pool, nodeCfg, eng),
		Synthesizing: nodes.NewSynthesizer(completer, catalog, eng),
		Reflecting:   nodes.NewReflection(completer, profiles, logger, eng),
	})
	return eng
}

func serveHTTP(ctx context.Context, cfg Config, eng *engine.Engine, logger *slog.Logger) error {
	handler := server.New(eng, logger).Handler()
	httpSrv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.ListenAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}
