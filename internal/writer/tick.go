package writer

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/deriv-gateway/internal/model"
	"github.com/rickgao/deriv-gateway/internal/router"
)

const insertTick = `
	INSERT INTO ticks (symbol, epoch, quote, pip, last_digit, stream_id, received_at)
	VALUES ($1, $2, $3::numeric, NULLIF($4, '')::numeric, $5, NULLIF($6, ''), $7)
	ON CONFLICT (symbol, epoch) DO NOTHING
`

// TickWriter consumes ticks from the router buffer and writes to the ticks table.
type TickWriter struct {
	*batchWriter[model.Tick, tickRow]
}

// NewTickWriter creates a new TickWriter.
func NewTickWriter(cfg WriterConfig, input *router.GrowableBuffer[model.Tick], db Batcher, logger *slog.Logger) *TickWriter {
	return &TickWriter{
		batchWriter: newBatchWriter("ticks", cfg, input, db, logger, transformTick, queueTick),
	}
}

// Start begins consuming ticks and writing to the database.
func (w *TickWriter) Start(ctx context.Context) error {
	w.start(ctx)
	return nil
}

// Stop gracefully shuts down the writer after a final flush.
func (w *TickWriter) Stop(ctx context.Context) error {
	return w.stop(ctx)
}

// Stats returns current metrics.
func (w *TickWriter) Stats() WriterMetrics {
	return w.stats()
}

// transformTick converts a model.Tick to a tickRow.
func transformTick(t model.Tick) tickRow {
	row := tickRow{
		Symbol:     t.Symbol,
		Epoch:      t.Epoch,
		Quote:      t.Quote.String(),
		LastDigit:  t.LastDigit(),
		StreamID:   t.StreamID,
		ReceivedAt: t.ReceivedAt,
	}
	if t.Pip.Sign() > 0 {
		row.Pip = t.Pip.String()
	}
	return row
}

func queueTick(b *pgx.Batch, r tickRow) {
	b.Queue(insertTick, r.Symbol, r.Epoch, r.Quote, r.Pip, r.LastDigit, r.StreamID, r.ReceivedAt)
}
