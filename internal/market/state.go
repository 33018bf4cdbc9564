package market

import (
	"sort"
	"sync"
	"time"

	"github.com/rickgao/deriv-gateway/internal/model"
)

// registryState holds the thread-safe catalog cache.
type registryState struct {
	mu sync.RWMutex

	// All known symbols indexed by name.
	symbols map[string]*model.Symbol

	// Symbols currently tradeable.
	openSet map[string]struct{}

	tradeTypes []model.TradeType

	// Last successful sync timestamp.
	lastSyncAt time.Time
}

func newState() *registryState {
	return &registryState{
		symbols: make(map[string]*model.Symbol),
		openSet: make(map[string]struct{}),
	}
}

func isOpen(s model.Symbol) bool {
	return s.IsOpen && !s.IsSuspended
}

// getSymbol returns a symbol by name (read-locked).
func (s *registryState) getSymbol(name string) (model.Symbol, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sym, ok := s.symbols[name]
	if !ok {
		return model.Symbol{}, false
	}
	return *sym, true
}

// getSymbols returns a copy of all symbols sorted by name (read-locked).
func (s *registryState) getSymbols() []model.Symbol {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Symbol, 0, len(s.symbols))
	for _, sym := range s.symbols {
		result = append(result, *sym)
	}
	sortSymbols(result)
	return result
}

// getOpenSymbols returns a copy of all open symbols sorted by name (read-locked).
func (s *registryState) getOpenSymbols() []model.Symbol {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]model.Symbol, 0, len(s.openSet))
	for name := range s.openSet {
		if sym, ok := s.symbols[name]; ok {
			result = append(result, *sym)
		}
	}
	sortSymbols(result)
	return result
}

func (s *registryState) getTradeTypes() []model.TradeType {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]model.TradeType(nil), s.tradeTypes...)
}

// upsertSymbolLocked adds or updates a symbol (caller must hold write lock).
func (s *registryState) upsertSymbolLocked(sym model.Symbol) {
	cp := sym
	s.symbols[sym.Symbol] = &cp

	if isOpen(sym) {
		s.openSet[sym.Symbol] = struct{}{}
	} else {
		delete(s.openSet, sym.Symbol)
	}
}

// replaceLocked swaps in a fresh catalog snapshot and reports how many symbols
// opened and closed relative to the previous one. Symbols missing from the
// snapshot are dropped.
func (s *registryState) replaceLocked(symbols []model.Symbol, types []model.TradeType) (opened, closed int) {
	seen := make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		seen[sym.Symbol] = struct{}{}
		_, wasOpen := s.openSet[sym.Symbol]
		s.upsertSymbolLocked(sym)
		_, nowOpen := s.openSet[sym.Symbol]
		switch {
		case nowOpen && !wasOpen:
			opened++
		case wasOpen && !nowOpen:
			closed++
		}
	}
	for name := range s.symbols {
		if _, ok := seen[name]; ok {
			continue
		}
		if _, wasOpen := s.openSet[name]; wasOpen {
			closed++
		}
		delete(s.symbols, name)
		delete(s.openSet, name)
	}

	s.tradeTypes = append(s.tradeTypes[:0:0], types...)
	s.lastSyncAt = time.Now()
	return opened, closed
}

func sortSymbols(syms []model.Symbol) {
	sort.Slice(syms, func(i, j int) bool { return syms[i].Symbol < syms[j].Symbol })
}
