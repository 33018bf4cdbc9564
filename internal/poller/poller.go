package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/deriv-gateway/internal/model"
)

// TickSource takes a single tick for a symbol. *deriv.Session satisfies it.
type TickSource interface {
	LatestTick(ctx context.Context, symbol string) (model.Tick, error)
}

// SymbolSource provides the symbols to poll when no fixed list is set.
type SymbolSource interface {
	OpenSymbols() []model.Symbol
}

// TickHandler receives fetched ticks.
type TickHandler interface {
	HandleTick(tick model.Tick) error
}

// TickHandlerFunc is a function adapter for TickHandler.
type TickHandlerFunc func(model.Tick) error

func (f TickHandlerFunc) HandleTick(t model.Tick) error {
	return f(t)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll interval (default: 1m)
	Concurrency int           // Max in-flight subscriptions (default: 8)
	Timeout     time.Duration // Per-symbol timeout (default: 10s)
	Symbols     []string      // Fixed watch list; empty means registry open symbols
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Minute,
		Concurrency: 8,
		Timeout:     10 * time.Second,
	}
}

// Stats holds poller statistics.
type Stats struct {
	Cycles  int64
	Fetched int64
	Errors  int64
}

// Poller periodically takes ticks over the request channel.
type Poller struct {
	cfg     Config
	source  TickSource
	symbols SymbolSource
	handler TickHandler
	logger  *slog.Logger

	cycles  atomic.Int64
	fetched atomic.Int64
	errors  atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller. symbols may be nil when cfg.Symbols is set.
func New(cfg Config, source TickSource, symbols SymbolSource, handler TickHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Poller{
		cfg:     cfg,
		source:  source,
		symbols: symbols,
		handler: handler,
		logger:  logger.With("component", "poller"),
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("tick poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
		"fixed_symbols", len(p.cfg.Symbols),
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("tick poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current statistics.
func (p *Poller) Stats() Stats {
	return Stats{
		Cycles:  p.cycles.Load(),
		Fetched: p.fetched.Load(),
		Errors:  p.errors.Load(),
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.pollAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

// watchList returns the symbols to poll this cycle.
func (p *Poller) watchList() []string {
	if len(p.cfg.Symbols) > 0 {
		return p.cfg.Symbols
	}
	if p.symbols == nil {
		return nil
	}
	open := p.symbols.OpenSymbols()
	names := make([]string, 0, len(open))
	for _, s := range open {
		names = append(names, s.Symbol)
	}
	return names
}

// pollAll takes one tick for every watched symbol concurrently. A failing
// symbol is logged and does not cancel the others.
func (p *Poller) pollAll() {
	start := time.Now()
	p.cycles.Add(1)

	symbols := p.watchList()
	if len(symbols) == 0 {
		p.logger.Debug("no symbols to poll")
		return
	}

	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	var fetched, failed atomic.Int64

	for _, symbol := range symbols {
		if p.ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := p.pollSymbol(symbol); err != nil {
				p.logger.Warn("failed to poll symbol",
					"symbol", symbol,
					"err", err,
				)
				failed.Add(1)
				return nil
			}
			fetched.Add(1)
			return nil
		})
	}

	g.Wait()

	p.fetched.Add(fetched.Load())
	p.errors.Add(failed.Load())

	p.logger.Info("poll cycle complete",
		"symbols", len(symbols),
		"fetched", fetched.Load(),
		"errors", failed.Load(),
		"duration", time.Since(start),
	)
}

// pollSymbol takes and hands off a single symbol's tick.
func (p *Poller) pollSymbol(symbol string) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	tick, err := p.source.LatestTick(ctx, symbol)
	if err != nil {
		return err
	}

	if p.handler != nil {
		if err := p.handler.HandleTick(tick); err != nil {
			return err
		}
	}

	return nil
}
