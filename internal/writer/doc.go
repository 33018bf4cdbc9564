// Package writer implements batch writers for journal records.
//
// Writers:
//   - Tick writer (ticks table)
//   - Contract writer (contracts table)
//
// All writers use append-only semantics (never update, only insert).
// Quotes and amounts are stored as NUMERIC, passed as their exact decimal text.
package writer
