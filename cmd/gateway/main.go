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
	"syscall"
	"time"

	"github.com/rickgao/deriv-gateway/internal/api"
	"github.com/rickgao/deriv-gateway/internal/auth"
	"github.com/rickgao/deriv-gateway/internal/channel"
	"github.com/rickgao/deriv-gateway/internal/config"
	"github.com/rickgao/deriv-gateway/internal/database"
	"github.com/rickgao/deriv-gateway/internal/deriv"
	"github.com/rickgao/deriv-gateway/internal/market"
	"github.com/rickgao/deriv-gateway/internal/metrics"
	"github.com/rickgao/deriv-gateway/internal/poller"
	"github.com/rickgao/deriv-gateway/internal/router"
	"github.com/rickgao/deriv-gateway/internal/version"
	"github.com/rickgao/deriv-gateway/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/gateway.local.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional env file loaded before the config")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	logger.Info("starting gateway",
		"version", version.String(),
		"config", *configPath,
	)

	if err := run(*configPath, *envPath, logger); err != nil {
		logger.Error("gateway failed", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway stopped")
}

func run(configPath, envPath string, logger *slog.Logger) error {
	if err := config.LoadEnv(envPath); err != nil {
		return err
	}
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	creds, err := auth.LoadCredentials(cfg.Deriv.AppID, cfg.Deriv.Token, cfg.Deriv.TokenFile)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	wsURL, err := creds.WebSocketURL(cfg.Deriv.Endpoint)
	if err != nil {
		return err
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"app_id", creds.AppID,
		"token", creds.Redacted(),
		"catalog_url", cfg.Catalog.BaseURL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		return err
	}

	// Router and writers
	rt := router.NewRouter(router.RouterConfig{
		TickBufferSize:     cfg.Writers.BufferSize,
		ContractBufferSize: max(cfg.Writers.BufferSize/10, 1),
		MaxBufferSize:      cfg.Writers.MaxBufferSize,
	}, logger)
	writerCfg := writer.DefaultWriterConfig()
	writerCfg.BatchSize = cfg.Writers.BatchSize
	writerCfg.FlushInterval = cfg.Writers.FlushInterval

	bufs := rt.Buffers()
	tickWriter := writer.NewTickWriter(writerCfg, bufs.Tick, pool, logger)
	contractWriter := writer.NewContractWriter(writerCfg, bufs.Contract, pool, logger)
	if err := tickWriter.Start(ctx); err != nil {
		return fmt.Errorf("start tick writer: %w", err)
	}
	if err := contractWriter.Start(ctx); err != nil {
		return fmt.Errorf("start contract writer: %w", err)
	}

	// Request channel and session
	ch := channel.New(channel.Config{
		URL:                  wsURL,
		RequestTimeout:       cfg.Channel.RequestTimeout,
		SubscribeTimeout:     cfg.Channel.SubscribeTimeout,
		PingInterval:         cfg.Channel.PingInterval,
		ReconnectDelay:       cfg.Channel.ReconnectDelay,
		MaxReconnectAttempts: cfg.Channel.MaxReconnectAttempts,
		WriteTimeout:         cfg.Channel.WriteTimeout,
		BufferSize:           cfg.Channel.BufferSize,
	}, logger)
	session := deriv.NewSession(ch, creds.Token, logger, deriv.WithRecorder(rt))

	if err := ch.Open(ctx); err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if creds.Token != "" {
		acct, err := session.Authorize(ctx)
		if err != nil {
			return fmt.Errorf("authorize: %w", err)
		}
		logger.Info("authorized",
			"loginid", acct.LoginID,
			"currency", acct.Currency,
			"virtual", acct.IsVirtual,
		)
	}

	// Catalog registry, only needed when the watch list comes from the catalog
	var registry market.Registry
	if cfg.Catalog.BaseURL != "" {
		catalog := api.NewClient(
			cfg.Catalog.BaseURL,
			cfg.Catalog.Token,
			api.WithLogger(logger),
			api.WithTimeout(cfg.Catalog.Timeout),
			api.WithRetries(cfg.Catalog.MaxRetries, time.Second),
		)
		regCfg := market.DefaultConfig()
		regCfg.RefreshInterval = cfg.Catalog.RefreshInterval
		registry = market.NewRegistry(regCfg, catalog, logger)
	}

	// Poller
	pollCfg := poller.Config{
		Interval:    cfg.Poller.Interval,
		Concurrency: cfg.Poller.Concurrency,
		Timeout:     cfg.Poller.Timeout,
		Symbols:     cfg.Poller.Symbols,
	}
	var symbols poller.SymbolSource
	if registry != nil {
		symbols = registry
	}
	p := poller.New(pollCfg, session, symbols, rt, logger)

	// Health and metrics server, started before the initial catalog sync
	collector := metrics.NewCollector(metrics.Sources{
		Channel: ch.Stats,
		Router:  rt.Stats,
		Writers: map[string]func() writer.WriterMetrics{
			"ticks":     tickWriter.Stats,
			"contracts": contractWriter.Stats,
		},
		Poller:   p.Stats,
		Registry: registryStats(registry),
	})
	h := &healthHandler{db: pool, channel: ch, registry: registry, router: rt, logger: logger}
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           h.routes(cfg.Metrics.Path, collector),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server error", "error", err)
		}
	}()

	if registry != nil {
		logger.Info("starting catalog registry (initial sync)...")
		if err := registry.Start(ctx); err != nil {
			return fmt.Errorf("start catalog registry: %w", err)
		}
		logger.Info("catalog registry started", "open_symbols", len(registry.OpenSymbols()))
	}

	if err := p.Start(ctx); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}

	logger.Info("gateway running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Producers first, then drain the buffers into the database.
	if err := p.Stop(shutdownCtx); err != nil {
		logger.Warn("poller stop", "error", err)
	}
	if registry != nil {
		if err := registry.Stop(shutdownCtx); err != nil {
			logger.Warn("registry stop", "error", err)
		}
	}
	rt.Close()
	if err := tickWriter.Stop(shutdownCtx); err != nil {
		logger.Warn("tick writer stop", "error", err)
	}
	if err := contractWriter.Stop(shutdownCtx); err != nil {
		logger.Warn("contract writer stop", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("health server shutdown", "error", err)
	}
	return nil
}

func registryStats(r market.Registry) func() market.Stats {
	if r == nil {
		return nil
	}
	return r.Stats
}
