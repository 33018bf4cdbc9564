// Package auth provides Deriv API credentials: the application id that every
// WebSocket URL carries and the account token sent with authorize.
package auth

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// DefaultEndpoint is the public Deriv WebSocket endpoint.
const DefaultEndpoint = "wss://ws.derivws.com/websockets/v3"

// Credentials holds the application id and account token.
type Credentials struct {
	AppID int    // Application id from the Deriv dashboard
	Token string // Account API token, empty for unauthenticated use
}

// LoadCredentials builds credentials from an app id and either an inline token
// or a token file. An inline token wins over the file.
func LoadCredentials(appID int, token, tokenPath string) (*Credentials, error) {
	if appID <= 0 {
		return nil, fmt.Errorf("app id is required")
	}

	if token == "" && tokenPath != "" {
		t, err := LoadToken(tokenPath)
		if err != nil {
			return nil, fmt.Errorf("load token: %w", err)
		}
		token = t
	}

	return &Credentials{
		AppID: appID,
		Token: token,
	}, nil
}

// LoadToken reads an API token from a file, ignoring surrounding whitespace.
func LoadToken(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read token file: %w", err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("token file %s is empty", path)
	}
	if strings.ContainsAny(token, " \t\r\n") {
		return "", fmt.Errorf("token file %s holds more than one token", path)
	}
	return token, nil
}

// WebSocketURL returns endpoint with the app_id query parameter set.
// An empty endpoint means DefaultEndpoint.
func (c *Credentials) WebSocketURL(endpoint string) (string, error) {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("endpoint scheme %q: want ws or wss", u.Scheme)
	}

	q := u.Query()
	q.Set("app_id", strconv.Itoa(c.AppID))
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Redacted returns the token with all but its last four characters masked.
func (c *Credentials) Redacted() string {
	if len(c.Token) <= 4 {
		return strings.Repeat("*", len(c.Token))
	}
	return strings.Repeat("*", len(c.Token)-4) + c.Token[len(c.Token)-4:]
}
