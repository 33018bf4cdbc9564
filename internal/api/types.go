package api

import "github.com/shopspring/decimal"

// SymbolsResponse from GET /api/symbols
type SymbolsResponse struct {
	Symbols []APISymbol `json:"symbols"`
}

// APISymbol represents an underlying in the catalog.
type APISymbol struct {
	Symbol             string          `json:"symbol"`
	DisplayName        string          `json:"display_name"`
	Market             string          `json:"market"`
	Submarket          string          `json:"submarket"`
	Pip                decimal.Decimal `json:"pip"`
	ExchangeIsOpen     int             `json:"exchange_is_open"`
	IsTradingSuspended int             `json:"is_trading_suspended"`
}

// TradeTypesResponse from GET /api/trade-types
type TradeTypesResponse struct {
	TradeTypes []APITradeType `json:"trade_types"`
}

// APITradeType represents one contract type in the catalog.
type APITradeType struct {
	ContractType string `json:"contract_type"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	Barriers     int    `json:"barriers"`
	MinDuration  string `json:"min_contract_duration"`
}

// LoginRequest is the POST /api/login body.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse from POST /api/login
type LoginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
