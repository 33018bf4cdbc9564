package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/deriv-gateway/internal/router"
)

// batchWriter drains a router buffer into batched inserts. R is the row type
// produced from each record T.
type batchWriter[T, R any] struct {
	name   string
	cfg    WriterConfig
	logger *slog.Logger

	// Input from the router
	input *router.GrowableBuffer[T]

	db        Batcher
	transform func(T) R
	queue     func(*pgx.Batch, R)

	// Batching
	batch   []R
	batchMu sync.Mutex

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics WriterMetrics
}

func newBatchWriter[T, R any](
	name string,
	cfg WriterConfig,
	input *router.GrowableBuffer[T],
	db Batcher,
	logger *slog.Logger,
	transform func(T) R,
	queue func(*pgx.Batch, R),
) *batchWriter[T, R] {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultWriterConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
	return &batchWriter[T, R]{
		name:      name,
		cfg:       cfg,
		logger:    logger.With("writer", name),
		input:     input,
		db:        db,
		transform: transform,
		queue:     queue,
		batch:     make([]R, 0, cfg.BatchSize),
	}
}

func (w *batchWriter[T, R]) start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
}

// stop cancels the loops, drains whatever the router still holds and writes
// it with a fresh deadline.
func (w *batchWriter[T, R]) stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("writer stop timed out")
		return ctx.Err()
	}

	for _, item := range w.input.DrainTo(0) {
		w.add(item)
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), w.cfg.ShutdownTimeout)
	defer cancel()
	w.flush(flushCtx)

	w.logger.Info("writer stopped")
	return nil
}

func (w *batchWriter[T, R]) stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop reads from the input buffer and accumulates batches.
func (w *batchWriter[T, R]) consumeLoop() {
	defer w.wg.Done()

	for {
		item, ok := w.input.Receive(w.ctx)
		if !ok {
			return
		}
		if w.add(item) && w.ctx.Err() == nil {
			w.flush(w.ctx)
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *batchWriter[T, R]) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// add transforms a record into the batch and reports whether the batch is full.
func (w *batchWriter[T, R]) add(item T) bool {
	row := w.transform(item)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

// flush writes the current batch to the database.
func (w *batchWriter[T, R]) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	// Take ownership of current batch
	batch := w.batch
	w.batch = make([]R, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed batch",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert sends rows as one pgx.Batch; rows that hit ON CONFLICT DO
// NOTHING count as conflicts.
func (w *batchWriter[T, R]) batchInsert(ctx context.Context, rows []R) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		w.queue(batch, r)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
