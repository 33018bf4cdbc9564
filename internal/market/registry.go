// Package market caches the symbol and trade-type catalogs.
//
// Catalogs are fetched once at start (blocking) and refreshed in the
// background; readers always see the last successful snapshot.
package market

import (
	"context"

	"github.com/rickgao/deriv-gateway/internal/model"
)

// Catalog is the source the registry fetches from. *api.Client satisfies it.
type Catalog interface {
	GetSymbols(ctx context.Context) ([]model.Symbol, error)
	GetTradeTypes(ctx context.Context) ([]model.TradeType, error)
}

// Registry serves cached catalogs.
type Registry interface {
	// Start performs the initial fetch, then refreshes in background.
	Start(ctx context.Context) error

	// Stop gracefully shuts down.
	Stop(ctx context.Context) error

	// Symbols returns every known symbol.
	Symbols() []model.Symbol

	// Symbol returns a specific symbol by name.
	Symbol(name string) (model.Symbol, bool)

	// OpenSymbols returns symbols whose exchange is open and not suspended.
	OpenSymbols() []model.Symbol

	// TradeTypes returns the trade-type table.
	TradeTypes() []model.TradeType

	// Stats returns a snapshot of registry counters.
	Stats() Stats
}

// Stats holds registry statistics.
type Stats struct {
	Symbols     int
	OpenSymbols int
	TradeTypes  int
	Refreshes   int64
	Failures    int64
	LastSyncAt  int64 // µs since epoch, 0 before first sync
}
