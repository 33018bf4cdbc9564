package market

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/deriv-gateway/internal/model"
)

// Config holds Registry configuration.
type Config struct {
	RefreshInterval    time.Duration
	InitialLoadTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RefreshInterval:    10 * time.Minute,
		InitialLoadTimeout: time.Minute,
	}
}

// registryImpl implements the Registry interface.
type registryImpl struct {
	cfg     Config
	catalog Catalog
	logger  *slog.Logger

	state *registryState

	refreshes atomic.Int64
	failures  atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a new catalog Registry.
func NewRegistry(cfg Config, catalog Catalog, logger *slog.Logger) Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = DefaultConfig().RefreshInterval
	}
	if cfg.InitialLoadTimeout <= 0 {
		cfg.InitialLoadTimeout = DefaultConfig().InitialLoadTimeout
	}

	return &registryImpl{
		cfg:     cfg,
		catalog: catalog,
		logger:  logger.With("component", "market"),
		state:   newState(),
	}
}

// Start performs the initial catalog fetch, then refreshes in background.
func (r *registryImpl) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	loadCtx, cancel := context.WithTimeout(r.ctx, r.cfg.InitialLoadTimeout)
	err := r.initialSync(loadCtx)
	cancel()
	if err != nil {
		r.cancel()
		return fmt.Errorf("initial catalog sync: %w", err)
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.refreshLoop(r.ctx)
	}()

	stats := r.Stats()
	r.logger.Info("market registry started",
		"symbols", stats.Symbols,
		"open_symbols", stats.OpenSymbols,
		"trade_types", stats.TradeTypes,
	)

	return nil
}

// Stop gracefully shuts down.
func (r *registryImpl) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("market registry stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *registryImpl) Symbols() []model.Symbol {
	return r.state.getSymbols()
}

func (r *registryImpl) Symbol(name string) (model.Symbol, bool) {
	return r.state.getSymbol(name)
}

func (r *registryImpl) OpenSymbols() []model.Symbol {
	return r.state.getOpenSymbols()
}

func (r *registryImpl) TradeTypes() []model.TradeType {
	return r.state.getTradeTypes()
}

func (r *registryImpl) Stats() Stats {
	r.state.mu.RLock()
	defer r.state.mu.RUnlock()

	var last int64
	if !r.state.lastSyncAt.IsZero() {
		last = r.state.lastSyncAt.UnixMicro()
	}
	return Stats{
		Symbols:     len(r.state.symbols),
		OpenSymbols: len(r.state.openSet),
		TradeTypes:  len(r.state.tradeTypes),
		Refreshes:   r.refreshes.Load(),
		Failures:    r.failures.Load(),
		LastSyncAt:  last,
	}
}
