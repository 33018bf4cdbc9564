package deriv

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rickgao/deriv-gateway/internal/channel"
	"github.com/rickgao/deriv-gateway/internal/model"
)

// Requester is the subset of *channel.Channel a Session uses.
type Requester interface {
	Send(ctx context.Context, payload channel.Request, timeout time.Duration) (*channel.Response, error)
	SubscribeOnce(ctx context.Context, payload channel.Request, field string, timeout time.Duration) (*channel.Response, error)
	OnOpen(fn func())
	Generation() uint64
	MarkAuthorized(token string, generation uint64) bool
	Authorized() string
}

// proposalTTL bounds how long an unbought proposal is remembered.
const proposalTTL = 10 * time.Minute

// reauthTimeout bounds the background authorize after a reconnect.
const reauthTimeout = 10 * time.Second

// Session is a typed Deriv session bound to one account token.
type Session struct {
	ch       Requester
	token    string
	logger   *slog.Logger
	recorder Recorder

	authMu  sync.Mutex // serializes authorize round trips
	mu      sync.Mutex
	account *Account
	issued  map[string]issuedProposal
}

type issuedProposal struct {
	req ProposalRequest
	at  time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithRecorder publishes bought contracts to r.
func WithRecorder(r Recorder) Option {
	return func(s *Session) {
		s.recorder = r
	}
}

// NewSession creates a session on ch. When token is set, the session
// re-authorizes in the background every time the channel opens.
func NewSession(ch Requester, token string, logger *slog.Logger, opts ...Option) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		ch:     ch,
		token:  token,
		logger: logger.With("component", "deriv"),
		issued: make(map[string]issuedProposal),
	}
	for _, opt := range opts {
		opt(s)
	}

	if token != "" {
		ch.OnOpen(func() {
			go s.reauthorize()
		})
	}
	return s
}

func (s *Session) reauthorize() {
	ctx, cancel := context.WithTimeout(context.Background(), reauthTimeout)
	defer cancel()

	acct, err := s.Authorize(ctx)
	if err != nil {
		s.logger.Warn("authorize after open failed", "error", err)
		return
	}
	s.logger.Info("authorized", "loginid", acct.LoginID, "currency", acct.Currency)
}

// Authorize authorizes the connection with the session token. It is a no-op
// when the channel's marker already holds the token.
func (s *Session) Authorize(ctx context.Context) (*Account, error) {
	if s.token == "" {
		return nil, ErrNoToken
	}

	s.authMu.Lock()
	defer s.authMu.Unlock()

	if s.ch.Authorized() == s.token {
		if acct := s.Account(); acct != nil {
			return acct, nil
		}
	}

	gen := s.ch.Generation()
	resp, err := s.ch.Send(ctx, channel.Request{"authorize": s.token}, 0)
	if err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}
	var acct Account
	if err := decode(resp, "authorize", &acct); err != nil {
		return nil, fmt.Errorf("authorize: %w", err)
	}

	if !s.ch.MarkAuthorized(s.token, gen) {
		// The connection that accepted the token is gone; OnOpen retries.
		return nil, fmt.Errorf("authorize: %w", channel.ErrConnectionLost)
	}
	s.mu.Lock()
	s.account = &acct
	s.mu.Unlock()
	return &acct, nil
}

// Account returns the account from the last successful authorize, or nil.
func (s *Session) Account() *Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.account == nil {
		return nil
	}
	acct := *s.account
	return &acct
}

// Balance fetches the account balance.
func (s *Session) Balance(ctx context.Context) (*Balance, error) {
	if _, err := s.Authorize(ctx); err != nil {
		return nil, err
	}
	resp, err := s.ch.Send(ctx, channel.Request{"balance": 1}, 0)
	if err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	var bal Balance
	if err := decode(resp, "balance", &bal); err != nil {
		return nil, fmt.Errorf("balance: %w", err)
	}
	return &bal, nil
}

// Proposal prices a contract. The returned ID can be passed to Buy.
func (s *Session) Proposal(ctx context.Context, req ProposalRequest) (*Proposal, error) {
	if req.Currency == "" {
		if acct := s.Account(); acct != nil {
			req.Currency = acct.Currency
		}
	}

	resp, err := s.ch.Send(ctx, channel.Request(req.payload()), 0)
	if err != nil {
		return nil, fmt.Errorf("proposal %s %s: %w", req.ContractType, req.Symbol, err)
	}
	var p Proposal
	if err := decode(resp, "proposal", &p); err != nil {
		return nil, fmt.Errorf("proposal %s %s: %w", req.ContractType, req.Symbol, err)
	}

	now := time.Now()
	s.mu.Lock()
	for id, ip := range s.issued {
		if now.Sub(ip.at) > proposalTTL {
			delete(s.issued, id)
		}
	}
	s.issued[p.ID] = issuedProposal{req: req, at: now}
	s.mu.Unlock()

	return &p, nil
}

// Buy buys a proposal previously returned by Proposal at up to price.
func (s *Session) Buy(ctx context.Context, proposalID string, price decimal.Decimal) (*BuyReceipt, error) {
	s.mu.Lock()
	ip, ok := s.issued[proposalID]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("buy %s: %w", proposalID, ErrUnknownProposal)
	}

	if _, err := s.Authorize(ctx); err != nil {
		return nil, err
	}

	resp, err := s.ch.Send(ctx, channel.Request{
		"buy":   proposalID,
		"price": json.Number(price.String()),
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("buy %s: %w", proposalID, err)
	}
	var receipt BuyReceipt
	if err := decode(resp, "buy", &receipt); err != nil {
		return nil, fmt.Errorf("buy %s: %w", proposalID, err)
	}

	s.mu.Lock()
	delete(s.issued, proposalID)
	s.mu.Unlock()

	if s.recorder != nil {
		c := model.Contract{
			JournalID:     uuid.New(),
			ContractID:    receipt.ContractID,
			TransactionID: receipt.TransactionID,
			Symbol:        ip.req.Symbol,
			ContractType:  ip.req.ContractType,
			LongCode:      receipt.LongCode,
			BuyPrice:      receipt.BuyPrice,
			Payout:        receipt.Payout,
			BalanceAfter:  receipt.BalanceAfter,
			Currency:      ip.req.Currency,
			PurchaseTime:  receipt.PurchaseTime,
			ReceivedAt:    resp.ReceivedAt().UnixMicro(),
		}
		if err := s.recorder.RecordContract(c); err != nil {
			s.logger.Warn("record contract failed",
				"contract_id", receipt.ContractID,
				"error", err,
			)
		}
	}

	return &receipt, nil
}

// LatestTick takes the next tick for symbol from a one-shot tick stream.
func (s *Session) LatestTick(ctx context.Context, symbol string) (model.Tick, error) {
	resp, err := s.ch.SubscribeOnce(ctx, channel.Request{"ticks": symbol}, "tick", 0)
	if err != nil {
		return model.Tick{}, fmt.Errorf("ticks %s: %w", symbol, err)
	}
	var p tickPayload
	if err := resp.Decode("tick", &p); err != nil {
		return model.Tick{}, fmt.Errorf("ticks %s: %w", symbol, err)
	}
	if p.Symbol == "" {
		p.Symbol = symbol
	}
	return p.toModel(resp.ReceivedAt()), nil
}

// Ping round-trips a ping request.
func (s *Session) Ping(ctx context.Context) error {
	resp, err := s.ch.Send(ctx, channel.Request{"ping": 1}, 0)
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return resp.Err()
}

// decode converts an embedded remote error, then decodes field.
func decode(resp *channel.Response, field string, v any) error {
	if err := resp.Err(); err != nil {
		return err
	}
	return resp.Decode(field, v)
}
