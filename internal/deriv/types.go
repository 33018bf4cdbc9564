package deriv

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/deriv-gateway/internal/model"
)

var (
	ErrNoToken         = errors.New("no API token configured")
	ErrUnknownProposal = errors.New("proposal not issued by this session")
)

// Recorder receives bought contracts for journalling.
type Recorder interface {
	RecordContract(c model.Contract) error
}

// Account is the authorize reply payload.
type Account struct {
	LoginID   string          `json:"loginid"`
	Currency  string          `json:"currency"`
	Balance   decimal.Decimal `json:"balance"`
	Email     string          `json:"email"`
	IsVirtual int             `json:"is_virtual"`
}

// Balance is the balance reply payload.
type Balance struct {
	Balance  decimal.Decimal `json:"balance"`
	Currency string          `json:"currency"`
	LoginID  string          `json:"loginid"`
}

// ProposalRequest describes the contract to price.
type ProposalRequest struct {
	Symbol       string
	ContractType string          // e.g. "CALL", "PUT", "DIGITEVEN"
	Amount       decimal.Decimal // Stake or payout, per Basis
	Basis        string          // "stake" (default) or "payout"
	Currency     string
	Duration     int
	DurationUnit string // "t", "s", "m", "h", "d"
	Barrier      string
}

func (r ProposalRequest) payload() map[string]any {
	basis := r.Basis
	if basis == "" {
		basis = "stake"
	}
	p := map[string]any{
		"proposal":      1,
		"amount":        json.Number(r.Amount.String()),
		"basis":         basis,
		"contract_type": r.ContractType,
		"currency":      r.Currency,
		"duration":      r.Duration,
		"duration_unit": r.DurationUnit,
		"symbol":        r.Symbol,
	}
	if r.Barrier != "" {
		p["barrier"] = r.Barrier
	}
	return p
}

// Proposal is a priced contract that can be bought by ID.
type Proposal struct {
	ID        string          `json:"id"`
	AskPrice  decimal.Decimal `json:"ask_price"`
	Payout    decimal.Decimal `json:"payout"`
	Spot      decimal.Decimal `json:"spot"`
	SpotTime  int64           `json:"spot_time"`
	DateStart int64           `json:"date_start"`
	LongCode  string          `json:"longcode"`
}

// BuyReceipt is the buy reply payload.
type BuyReceipt struct {
	ContractID    int64           `json:"contract_id"`
	TransactionID int64           `json:"transaction_id"`
	BuyPrice      decimal.Decimal `json:"buy_price"`
	Payout        decimal.Decimal `json:"payout"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
	LongCode      string          `json:"longcode"`
	ShortCode     string          `json:"shortcode"`
	PurchaseTime  int64           `json:"purchase_time"`
	StartTime     int64           `json:"start_time"`
}

// tickPayload is the tick stream payload.
type tickPayload struct {
	ID      string          `json:"id"`
	Symbol  string          `json:"symbol"`
	Quote   decimal.Decimal `json:"quote"`
	Epoch   int64           `json:"epoch"`
	PipSize int32           `json:"pip_size"`
}

func (p tickPayload) toModel(receivedAt time.Time) model.Tick {
	t := model.Tick{
		Symbol:     p.Symbol,
		Epoch:      p.Epoch,
		Quote:      p.Quote,
		StreamID:   p.ID,
		ReceivedAt: receivedAt.UnixMicro(),
	}
	if p.PipSize > 0 {
		t.Pip = decimal.New(1, -p.PipSize)
	}
	return t
}
