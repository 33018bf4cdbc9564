// Package channel implements the Multiplexed Request Channel.
//
// The Channel:
//   - Owns one persistent WebSocket connection to the Deriv API
//   - Tags every outbound request with a monotonically increasing req_id
//   - Routes correlated replies back to the waiting caller
//   - Wraps streaming requests as take-one-value-then-forget subscriptions
//   - Sends a JSON keep-alive ping while the connection is open
//   - Reconnects with a fixed delay and a bounded number of attempts
package channel
