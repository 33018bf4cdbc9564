package auth

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeToken(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write token file: %v", err)
	}
	return path
}

func TestLoadCredentials(t *testing.T) {
	path := writeToken(t, "  file-token\n")

	tests := []struct {
		name      string
		appID     int
		token     string
		path      string
		wantToken string
		wantErr   string
	}{
		{"inline token", 1089, "inline", "", "inline", ""},
		{"inline wins over file", 1089, "inline", path, "inline", ""},
		{"token from file", 1089, "", path, "file-token", ""},
		{"no token", 1089, "", "", "", ""},
		{"missing app id", 0, "inline", "", "", "app id is required"},
		{"missing file", 1089, "", "/nonexistent/token", "", "read token file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := LoadCredentials(tt.appID, tt.token, tt.path)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadCredentials failed: %v", err)
			}
			if creds.Token != tt.wantToken {
				t.Errorf("Token = %q, want %q", creds.Token, tt.wantToken)
			}
			if creds.AppID != tt.appID {
				t.Errorf("AppID = %d, want %d", creds.AppID, tt.appID)
			}
		})
	}
}

func TestLoadToken_Invalid(t *testing.T) {
	if _, err := LoadToken(writeToken(t, "   \n")); err == nil {
		t.Error("expected error for empty token file")
	}
	if _, err := LoadToken(writeToken(t, "one\ntwo\n")); err == nil {
		t.Error("expected error for multi-token file")
	}
}

func TestCredentials_WebSocketURL(t *testing.T) {
	creds := &Credentials{AppID: 1089}

	tests := []struct {
		name     string
		endpoint string
		want     string
		wantErr  bool
	}{
		{"default endpoint", "", "wss://ws.derivws.com/websockets/v3?app_id=1089", false},
		{"custom endpoint", "ws://localhost:8080/ws", "ws://localhost:8080/ws?app_id=1089", false},
		{"keeps other params", "wss://ws.binaryws.com/websockets/v3?l=EN", "wss://ws.binaryws.com/websockets/v3?app_id=1089&l=EN", false},
		{"http scheme rejected", "https://ws.derivws.com", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := creds.WebSocketURL(tt.endpoint)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("WebSocketURL() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCredentials_Redacted(t *testing.T) {
	tests := []struct {
		token string
		want  string
	}{
		{"", ""},
		{"abc", "***"},
		{"a1b2c3d4e5", "******d4e5"},
	}
	for _, tt := range tests {
		c := &Credentials{Token: tt.token}
		if got := c.Redacted(); got != tt.want {
			t.Errorf("Redacted(%q) = %q, want %q", tt.token, got, tt.want)
		}
	}
}
