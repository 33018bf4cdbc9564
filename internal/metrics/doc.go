// Package metrics exposes gateway statistics to Prometheus.
//
// Components keep their own counters and return snapshots from Stats(). The
// Collector reads those snapshots on each scrape and emits const metrics, so
// no component depends on the Prometheus client.
//
// Key metrics:
//   - Request channel state, message rates, timeouts and reconnects
//   - Router buffer depth, capacity and drops
//   - Writer inserts, conflicts and errors
//   - Poller cycles and catalog refreshes
package metrics
