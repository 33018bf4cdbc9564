// Package poller implements the Tick Poller component.
//
// The Tick Poller:
//   - Takes one tick per watched symbol every Interval
//   - Watches a fixed symbol list, or the registry's open symbols
//   - Bounds in-flight subscriptions with an errgroup limit
//   - Hands ticks to a TickHandler (normally the router)
package poller
