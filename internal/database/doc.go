// Package database provides the PostgreSQL connection pool for the journal
// tables.
//
// Tables:
//   - ticks: one row per (symbol, epoch) sampled by the poller
//   - contracts: one row per bought contract
package database
