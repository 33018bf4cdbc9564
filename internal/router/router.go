// Package router routes journal records into per-kind buffers that the
// writers drain.
package router

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rickgao/deriv-gateway/internal/model"
)

var (
	ErrClosed     = errors.New("router closed")
	ErrBufferFull = errors.New("buffer full")
	ErrInvalid    = errors.New("invalid record")
)

// RouterConfig holds configuration for the Router.
type RouterConfig struct {
	TickBufferSize     int // Default: 1000
	ContractBufferSize int // Default: 100
	MaxBufferSize      int // Growth ceiling per buffer, 0 = unbounded. Default: 1_000_000
}

// DefaultRouterConfig returns default configuration.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		TickBufferSize:     1000,
		ContractBufferSize: 100,
		MaxBufferSize:      1_000_000,
	}
}

// Buffers provides access to output buffers for writers.
type Buffers struct {
	Tick     *GrowableBuffer[model.Tick]
	Contract *GrowableBuffer[model.Contract]
}

// Stats contains runtime statistics.
type Stats struct {
	TicksRouted     int64
	TicksDuplicate  int64
	ContractsRouted int64
	Rejected        int64
	TickBuffer      BufferStats
	ContractBuffer  BufferStats
}

// Router accepts ticks and contracts and queues them for the writers.
// It satisfies poller.TickHandler and deriv.Recorder.
type Router struct {
	cfg    RouterConfig
	logger *slog.Logger

	tickBuf     *GrowableBuffer[model.Tick]
	contractBuf *GrowableBuffer[model.Contract]

	// Last routed epoch per symbol; a poll that lands on the same tick twice
	// is dropped.
	mu        sync.Mutex
	lastEpoch map[string]int64

	ticksRouted     atomic.Int64
	ticksDuplicate  atomic.Int64
	contractsRouted atomic.Int64
	rejected        atomic.Int64
}

// NewRouter creates a new Router.
func NewRouter(cfg RouterConfig, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	return &Router{
		cfg:         cfg,
		logger:      logger.With("component", "router"),
		tickBuf:     NewBoundedBuffer[model.Tick](cfg.TickBufferSize, cfg.MaxBufferSize),
		contractBuf: NewBoundedBuffer[model.Contract](cfg.ContractBufferSize, cfg.MaxBufferSize),
		lastEpoch:   make(map[string]int64),
	}
}

// HandleTick queues a tick. Ticks at or before the last routed epoch for the
// symbol are counted as duplicates and dropped without error.
func (r *Router) HandleTick(tick model.Tick) error {
	if tick.Symbol == "" || tick.Epoch <= 0 {
		r.rejected.Add(1)
		return ErrInvalid
	}

	r.mu.Lock()
	if last, ok := r.lastEpoch[tick.Symbol]; ok && tick.Epoch <= last {
		r.mu.Unlock()
		r.ticksDuplicate.Add(1)
		r.logger.Debug("duplicate tick dropped", "symbol", tick.Symbol, "epoch", tick.Epoch)
		return nil
	}
	r.lastEpoch[tick.Symbol] = tick.Epoch
	r.mu.Unlock()

	if err := send(r.tickBuf, tick); err != nil {
		r.rejected.Add(1)
		return err
	}
	r.ticksRouted.Add(1)
	return nil
}

// RecordContract queues a bought contract.
func (r *Router) RecordContract(c model.Contract) error {
	if c.ContractID == 0 {
		r.rejected.Add(1)
		return ErrInvalid
	}
	if err := send(r.contractBuf, c); err != nil {
		r.rejected.Add(1)
		r.logger.Error("contract not journalled",
			"contract_id", c.ContractID,
			"error", err,
		)
		return err
	}
	r.contractsRouted.Add(1)
	return nil
}

func send[T any](buf *GrowableBuffer[T], item T) error {
	if buf.Send(item) {
		return nil
	}
	if buf.Closed() {
		return ErrClosed
	}
	return ErrBufferFull
}

// Buffers returns the output buffers.
func (r *Router) Buffers() Buffers {
	return Buffers{
		Tick:     r.tickBuf,
		Contract: r.contractBuf,
	}
}

// Close stops accepting records. Writers drain what remains.
func (r *Router) Close() {
	r.tickBuf.Close()
	r.contractBuf.Close()
	r.logger.Info("router closed",
		"ticks_routed", r.ticksRouted.Load(),
		"contracts_routed", r.contractsRouted.Load(),
	)
}

// Stats returns current router statistics.
func (r *Router) Stats() Stats {
	return Stats{
		TicksRouted:     r.ticksRouted.Load(),
		TicksDuplicate:  r.ticksDuplicate.Load(),
		ContractsRouted: r.contractsRouted.Load(),
		Rejected:        r.rejected.Load(),
		TickBuffer:      r.tickBuf.Stats(),
		ContractBuffer:  r.contractBuf.Stats(),
	}
}
