// Package poller implements the Tick Poller component.
//
// The Tick Poller:
//   - Fetches the latest bar for each configured symbol on a fixed interval
//   - Publishes one tick per symbol on the market channel
//   - Uses concurrent requests with bounded parallelism
//
// Ticks are plain objects ({"symbol", "price", "volume", "time", "source"})
// so any subscriber of the market channel can filter them by symbol.
package poller
