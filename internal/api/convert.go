package api

import (
	"time"

	"github.com/rickgao/deriv-gateway/internal/model"
)

// NowMicro returns the current time in microseconds since epoch.
func NowMicro() int64 {
	return time.Now().UnixMicro()
}

// ToModel converts an APISymbol to model.Symbol.
func (s *APISymbol) ToModel() model.Symbol {
	return model.Symbol{
		Symbol:      s.Symbol,
		DisplayName: s.DisplayName,
		Market:      s.Market,
		Submarket:   s.Submarket,
		Pip:         s.Pip,
		IsOpen:      s.ExchangeIsOpen == 1,
		IsSuspended: s.IsTradingSuspended == 1,
		UpdatedAt:   NowMicro(),
	}
}

// ToModel converts an APITradeType to model.TradeType.
func (t *APITradeType) ToModel() model.TradeType {
	return model.TradeType{
		ContractType: t.ContractType,
		Name:         t.Name,
		Category:     t.Category,
		Barriers:     t.Barriers,
		MinDuration:  t.MinDuration,
	}
}
