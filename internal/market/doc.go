// Package market implements the Market Connector.
//
// The connector turns a {symbol, range, interval} request into historical
// price records:
//   - Calls a Provider (Yahoo chart API or TimescaleDB price bars)
//   - Runs the blocking download on a bounded worker pool
//   - Returns an empty data slice, not an error, when the provider has no rows
//   - Reports provider failures and pool exhaustion as *UpstreamError
package market
