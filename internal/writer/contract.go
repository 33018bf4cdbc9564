package writer

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/deriv-gateway/internal/model"
	"github.com/rickgao/deriv-gateway/internal/router"
)

const insertContract = `
	INSERT INTO contracts (
		journal_id, contract_id, transaction_id, symbol, contract_type, longcode,
		buy_price, payout, balance_after, currency, purchase_time, received_at
	)
	VALUES ($1::uuid, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric, $10, $11, $12)
	ON CONFLICT (contract_id) DO NOTHING
`

// ContractWriter consumes bought contracts from the router buffer and writes
// to the contracts table.
type ContractWriter struct {
	*batchWriter[model.Contract, contractRow]
}

// NewContractWriter creates a new ContractWriter.
func NewContractWriter(cfg WriterConfig, input *router.GrowableBuffer[model.Contract], db Batcher, logger *slog.Logger) *ContractWriter {
	return &ContractWriter{
		batchWriter: newBatchWriter("contracts", cfg, input, db, logger, transformContract, queueContract),
	}
}

// Start begins consuming contracts and writing to the database.
func (w *ContractWriter) Start(ctx context.Context) error {
	w.start(ctx)
	return nil
}

// Stop gracefully shuts down the writer after a final flush.
func (w *ContractWriter) Stop(ctx context.Context) error {
	return w.stop(ctx)
}

// Stats returns current metrics.
func (w *ContractWriter) Stats() WriterMetrics {
	return w.stats()
}

// transformContract converts a model.Contract to a contractRow.
func transformContract(c model.Contract) contractRow {
	return contractRow{
		JournalID:     c.JournalID.String(),
		ContractID:    c.ContractID,
		TransactionID: c.TransactionID,
		Symbol:        c.Symbol,
		ContractType:  c.ContractType,
		LongCode:      c.LongCode,
		BuyPrice:      c.BuyPrice.String(),
		Payout:        c.Payout.String(),
		BalanceAfter:  c.BalanceAfter.String(),
		Currency:      c.Currency,
		PurchaseTime:  c.PurchaseTime,
		ReceivedAt:    c.ReceivedAt,
	}
}

func queueContract(b *pgx.Batch, r contractRow) {
	b.Queue(insertContract,
		r.JournalID, r.ContractID, r.TransactionID, r.Symbol, r.ContractType, r.LongCode,
		r.BuyPrice, r.Payout, r.BalanceAfter, r.Currency, r.PurchaseTime, r.ReceivedAt,
	)
}
