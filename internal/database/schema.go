package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer is the subset of pgxpool.Pool used for schema setup.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS ticks (
		symbol      TEXT    NOT NULL,
		epoch       BIGINT  NOT NULL,
		quote       NUMERIC NOT NULL,
		pip         NUMERIC,
		last_digit  SMALLINT NOT NULL,
		stream_id   TEXT,
		received_at BIGINT  NOT NULL,
		PRIMARY KEY (symbol, epoch)
	)`,
	`CREATE TABLE IF NOT EXISTS contracts (
		journal_id     UUID    NOT NULL,
		contract_id    BIGINT  PRIMARY KEY,
		transaction_id BIGINT  NOT NULL,
		symbol         TEXT    NOT NULL,
		contract_type  TEXT    NOT NULL,
		longcode       TEXT    NOT NULL,
		buy_price      NUMERIC NOT NULL,
		payout         NUMERIC NOT NULL,
		balance_after  NUMERIC NOT NULL,
		currency       TEXT    NOT NULL,
		purchase_time  BIGINT  NOT NULL,
		received_at    BIGINT  NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS contracts_symbol_purchase_idx ON contracts (symbol, purchase_time)`,
}

// EnsureSchema creates the journal tables if they do not exist.
func EnsureSchema(ctx context.Context, db Execer) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
