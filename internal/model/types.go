package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Catalog Types
// -----------------------------------------------------------------------------

// Symbol is a tradeable underlying from the market catalog.
type Symbol struct {
	Symbol      string          // Primary key (e.g., "R_100")
	DisplayName string          // Display name (e.g., "Volatility 100 Index")
	Market      string          // Market group (e.g., "synthetic_index")
	Submarket   string          // Submarket group (e.g., "random_index")
	Pip         decimal.Decimal // Quote precision (e.g., 0.01)
	IsOpen      bool            // Exchange currently open for this symbol
	IsSuspended bool            // Trading suspended
	UpdatedAt   int64           // Last catalog refresh (µs since epoch)
}

// TradeType is one contract type from the trade-type table.
type TradeType struct {
	ContractType string // Primary key (e.g., "CALL")
	Name         string // Display name (e.g., "Rise")
	Category     string // Category (e.g., "callput")
	Barriers     int    // Number of barriers the contract takes
	MinDuration  string // Minimum duration (e.g., "1t", "15s")
}

// -----------------------------------------------------------------------------
// Journal Types
// -----------------------------------------------------------------------------

// Tick is a single price observation.
type Tick struct {
	Symbol     string          // Underlying symbol
	Epoch      int64           // Server tick time (seconds since epoch)
	Quote      decimal.Decimal // Spot price
	Pip        decimal.Decimal // Quote precision
	StreamID   string          // Server stream id the tick arrived on
	ReceivedAt int64           // Local receive timestamp (µs since epoch)
}

// Contract is a purchased contract as confirmed by the server.
type Contract struct {
	JournalID     uuid.UUID       // Primary key (local)
	ContractID    int64           // Deriv contract id
	TransactionID int64           // Deriv transaction id
	Symbol        string          // Underlying symbol
	ContractType  string          // e.g., "CALL", "PUT", "DIGITEVEN"
	LongCode      string          // Human-readable contract description
	BuyPrice      decimal.Decimal // Price paid
	Payout        decimal.Decimal // Potential payout
	BalanceAfter  decimal.Decimal // Account balance after purchase
	Currency      string          // Account currency
	PurchaseTime  int64           // Server purchase time (seconds since epoch)
	ReceivedAt    int64           // Local receive timestamp (µs since epoch)
}

// Decimals returns the number of decimal places implied by the pip size.
func (s Symbol) Decimals() int32 {
	return decimals(s.Pip)
}

// LastDigit returns the final digit of the quote at pip precision, the value
// digit contracts settle on.
func (t Tick) LastDigit() int {
	d := decimals(t.Pip)
	scaled := t.Quote.Shift(d).Truncate(0).Abs()
	return int(scaled.Mod(decimal.NewFromInt(10)).IntPart())
}

// MaxProfit is the payout less the buy price.
func (c Contract) MaxProfit() decimal.Decimal {
	return c.Payout.Sub(c.BuyPrice)
}

func decimals(pip decimal.Decimal) int32 {
	if pip.Sign() <= 0 {
		return 0
	}
	if e := pip.Exponent(); e < 0 {
		return -e
	}
	return 0
}
