package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rickgao/deriv-gateway/internal/model"
)

// GetSymbols fetches the symbol catalog.
func (c *Client) GetSymbols(ctx context.Context) ([]model.Symbol, error) {
	var resp SymbolsResponse
	if err := c.get(ctx, "/api/symbols", nil, &resp); err != nil {
		return nil, fmt.Errorf("get symbols: %w", err)
	}

	symbols := make([]model.Symbol, 0, len(resp.Symbols))
	for i := range resp.Symbols {
		if resp.Symbols[i].Symbol == "" {
			continue
		}
		symbols = append(symbols, resp.Symbols[i].ToModel())
	}
	return symbols, nil
}

// GetTradeTypes fetches the trade-type table.
func (c *Client) GetTradeTypes(ctx context.Context) ([]model.TradeType, error) {
	var resp TradeTypesResponse
	if err := c.get(ctx, "/api/trade-types", nil, &resp); err != nil {
		return nil, fmt.Errorf("get trade types: %w", err)
	}

	types := make([]model.TradeType, 0, len(resp.TradeTypes))
	for i := range resp.TradeTypes {
		if resp.TradeTypes[i].ContractType == "" {
			continue
		}
		types = append(types, resp.TradeTypes[i].ToModel())
	}
	return types, nil
}

// CheckCredentials verifies a username and password against the user store.
// Rejected credentials return false with a nil error.
func (c *Client) CheckCredentials(ctx context.Context, username, password string) (bool, error) {
	var resp LoginResponse
	err := c.post(ctx, "/api/login", LoginRequest{Username: username, Password: password}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) &&
			(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
			return false, nil
		}
		return false, fmt.Errorf("check credentials: %w", err)
	}
	return resp.Success, nil
}
