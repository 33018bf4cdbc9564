package writer

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// WriterConfig contains configuration for batch writers.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// ShutdownTimeout bounds the final flush on Stop.
	ShutdownTimeout time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:       500,
		FlushInterval:   5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// WriterMetrics holds per-writer counters.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// Batcher sends a pgx batch. *pgxpool.Pool satisfies it.
type Batcher interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// tickRow represents a row in the ticks table.
type tickRow struct {
	Symbol     string
	Epoch      int64  // Seconds
	Quote      string // NUMERIC text
	Pip        string // NUMERIC text, empty = NULL
	LastDigit  int
	StreamID   string
	ReceivedAt int64 // Microseconds
}

// contractRow represents a row in the contracts table.
type contractRow struct {
	JournalID     string // UUID
	ContractID    int64
	TransactionID int64
	Symbol        string
	ContractType  string
	LongCode      string
	BuyPrice      string // NUMERIC text
	Payout        string // NUMERIC text
	BalanceAfter  string // NUMERIC text
	Currency      string
	PurchaseTime  int64 // Seconds
	ReceivedAt    int64 // Microseconds
}
