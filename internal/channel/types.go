package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrTimeout         = errors.New("request timeout")
	ErrConnectionLost  = errors.New("connection lost before reply")
	ErrClosed          = errors.New("channel closed")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrEncode          = errors.New("encode request")
	ErrStaleConnection = errors.New("connection stale")
)

// Default timeouts and reconnect bounds.
const (
	DefaultRequestTimeout       = 3 * time.Second
	DefaultSubscribeTimeout     = 8 * time.Second
	DefaultPingInterval         = 30 * time.Second
	DefaultReconnectDelay       = 3 * time.Second
	DefaultMaxReconnectAttempts = 10
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Request is an outbound message: one command field plus its arguments.
// The channel adds req_id (and subscribe for streams) and never validates
// the rest.
type Request map[string]any

// Command returns the name of the primary command field. Deriv requests carry
// exactly one field that is not an argument, so the first known command wins.
func (r Request) Command() string {
	for _, name := range knownCommands {
		if _, ok := r[name]; ok {
			return name
		}
	}
	return ""
}

var knownCommands = []string{
	"authorize", "ticks", "ticks_history", "proposal", "proposal_open_contract",
	"buy", "sell", "balance", "ping", "forget", "forget_all", "active_symbols",
	"contracts_for", "time", "portfolio", "statement", "transaction",
}

// streamFields maps a streaming command to the payload field that carries its values.
var streamFields = map[string]string{
	"ticks":                  "tick",
	"ticks_history":          "history",
	"proposal":               "proposal",
	"proposal_open_contract": "proposal_open_contract",
	"balance":                "balance",
	"transaction":            "transaction",
}

// RemoteError is the error object the server embeds in a normal reply.
type RemoteError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	if e.Code == "" {
		return "deriv error: " + e.Message
	}
	return fmt.Sprintf("deriv error %s: %s", e.Code, e.Message)
}

// SubscriptionInfo identifies a server-side stream.
type SubscriptionInfo struct {
	ID string `json:"id"`
}

// Response is a parsed inbound message.
type Response struct {
	MsgType      string            `json:"msg_type"`
	ReqID        int64             `json:"-"`
	Error        *RemoteError      `json:"error,omitempty"`
	Subscription *SubscriptionInfo `json:"subscription,omitempty"`

	// Raw is the message exactly as received.
	Raw []byte `json:"-"`

	fields     map[string]json.RawMessage
	receivedAt time.Time
}

// Has reports whether the message carries a top-level field.
func (r *Response) Has(field string) bool {
	_, ok := r.fields[field]
	return ok
}

// Field returns the raw JSON of a top-level field.
func (r *Response) Field(field string) (json.RawMessage, bool) {
	v, ok := r.fields[field]
	return v, ok
}

// Decode unmarshals a top-level field into v.
func (r *Response) Decode(field string, v any) error {
	raw, ok := r.fields[field]
	if !ok {
		return fmt.Errorf("field %q not present in %s message", field, r.MsgType)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", field, err)
	}
	return nil
}

// Err returns the embedded remote error, or nil for a successful reply.
func (r *Response) Err() error {
	if r.Error == nil {
		return nil
	}
	return r.Error
}

// ReceivedAt is the local time the message was read off the socket.
func (r *Response) ReceivedAt() time.Time {
	return r.receivedAt
}

// echoReq is the subset of echo_req the router needs.
type echoReq struct {
	ReqID *int64 `json:"req_id"`
}

// ParseResponse parses a single inbound frame outside a Channel, for tools
// and tests that replay captured traffic.
func ParseResponse(data []byte) (*Response, error) {
	resp, ok := parseResponse(data, time.Now())
	if !ok {
		return nil, fmt.Errorf("parse response: not a JSON object")
	}
	return resp, nil
}

// parseResponse parses an inbound frame. ok is false for frames that are not
// JSON objects.
func parseResponse(data []byte, receivedAt time.Time) (*Response, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return nil, false
	}

	resp := &Response{
		Raw:        data,
		fields:     fields,
		receivedAt: receivedAt,
	}

	if raw, ok := fields["msg_type"]; ok {
		json.Unmarshal(raw, &resp.MsgType)
	}
	if raw, ok := fields["error"]; ok {
		var remote RemoteError
		if err := json.Unmarshal(raw, &remote); err == nil {
			resp.Error = &remote
		}
	}
	if raw, ok := fields["subscription"]; ok {
		var sub SubscriptionInfo
		if err := json.Unmarshal(raw, &sub); err == nil && sub.ID != "" {
			resp.Subscription = &sub
		}
	}

	resp.ReqID = -1
	if raw, ok := fields["echo_req"]; ok {
		var echo echoReq
		if err := json.Unmarshal(raw, &echo); err == nil && echo.ReqID != nil {
			resp.ReqID = *echo.ReqID
		}
	}
	if resp.ReqID < 0 {
		// Deriv also echoes req_id at the top level.
		if raw, ok := fields["req_id"]; ok {
			var id int64
			if err := json.Unmarshal(raw, &id); err == nil {
				resp.ReqID = id
			}
		}
	}

	return resp, true
}

// streamID returns the server-side stream id carried by a stream message.
func (r *Response) streamID(field string) string {
	if r.Subscription != nil {
		return r.Subscription.ID
	}
	raw, ok := r.fields[field]
	if !ok {
		return ""
	}
	var payload struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	return payload.ID
}

// State is the lifecycle state of the Channel.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateReconnecting
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL            string        // WebSocket URL including app_id (e.g., wss://ws.derivws.com/websockets/v3?app_id=1089)
	PongTimeout    time.Duration // Max silence (no frame, no pong) before the connection is considered stale
	WriteTimeout   time.Duration // Write deadline for sends
	BufferSize     int           // Message channel buffer size
	MaxMessageSize int64         // Inbound frame limit in bytes, 0 = unlimited
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PongTimeout:    90 * time.Second,
		WriteTimeout:   5 * time.Second,
		BufferSize:     1000,
		MaxMessageSize: 4 << 20,
	}
}

// Config configures the Channel.
type Config struct {
	URL                  string
	RequestTimeout       time.Duration // Default for Send when the caller passes 0
	SubscribeTimeout     time.Duration // Default for SubscribeOnce when the caller passes 0
	PingInterval         time.Duration // JSON keep-alive interval; 0 means DefaultPingInterval, negative disables keep-alive and stale detection
	ReconnectDelay       time.Duration // Fixed delay between reconnect attempts
	MaxReconnectAttempts int           // Attempts before giving up (state failed)
	WriteTimeout         time.Duration
	BufferSize           int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:       DefaultRequestTimeout,
		SubscribeTimeout:     DefaultSubscribeTimeout,
		PingInterval:         DefaultPingInterval,
		ReconnectDelay:       DefaultReconnectDelay,
		MaxReconnectAttempts: DefaultMaxReconnectAttempts,
		WriteTimeout:         5 * time.Second,
		BufferSize:           1000,
	}
}

// Stats is a snapshot of channel counters.
type Stats struct {
	State                State
	Sent                 int64
	Received             int64
	Dropped              int64 // Unparseable or uncorrelated inbound messages
	Timeouts             int64
	Reconnects           int64
	PendingRequests      int
	PendingSubscriptions int
	LastID               int64
}
