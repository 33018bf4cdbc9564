// Package model defines shared record types used across the gateway.
//
// Conventions:
//   - Amounts and quotes: decimal.Decimal, never float64
//   - Timestamps: int64 microseconds since Unix epoch, except Epoch fields
//     which carry the server's seconds-since-epoch value unchanged
//   - IDs: string for symbols and stream ids, int64 for Deriv contract ids,
//     uuid.UUID for local journal ids
package model
