package market

import (
	"context"
	"time"

	"github.com/rickgao/deriv-gateway/internal/model"
)

// fetch pulls both catalogs. Either failing fails the whole fetch so the
// cache never mixes snapshots.
func (r *registryImpl) fetch(ctx context.Context) ([]model.Symbol, []model.TradeType, error) {
	symbols, err := r.catalog.GetSymbols(ctx)
	if err != nil {
		return nil, nil, err
	}
	types, err := r.catalog.GetTradeTypes(ctx)
	if err != nil {
		return nil, nil, err
	}
	return symbols, types, nil
}

// initialSync fetches the catalogs on startup.
func (r *registryImpl) initialSync(ctx context.Context) error {
	r.logger.Info("starting initial catalog sync")
	start := time.Now()

	symbols, types, err := r.fetch(ctx)
	if err != nil {
		r.failures.Add(1)
		return err
	}

	r.state.mu.Lock()
	r.state.replaceLocked(symbols, types)
	r.state.mu.Unlock()
	r.refreshes.Add(1)

	r.logger.Info("initial sync complete",
		"symbols", len(symbols),
		"trade_types", len(types),
		"duration", time.Since(start),
	)

	return nil
}

// refreshLoop periodically re-fetches the catalogs.
func (r *registryImpl) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

// refresh replaces the cache with a fresh snapshot. A failed fetch keeps the
// previous snapshot.
func (r *registryImpl) refresh(ctx context.Context) {
	start := time.Now()

	symbols, types, err := r.fetch(ctx)
	if err != nil {
		r.failures.Add(1)
		r.logger.Error("catalog refresh failed", "err", err)
		return
	}

	r.state.mu.Lock()
	opened, closed := r.state.replaceLocked(symbols, types)
	r.state.mu.Unlock()
	r.refreshes.Add(1)

	if opened > 0 || closed > 0 {
		r.logger.Info("catalog refresh found changes",
			"opened", opened,
			"closed", closed,
			"duration", time.Since(start),
		)
	} else {
		r.logger.Debug("catalog refresh complete",
			"symbols", len(symbols),
			"duration", time.Since(start),
		)
	}
}
