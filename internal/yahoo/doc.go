// Package yahoo is a market.Provider backed by the Yahoo Finance chart API.
//
// Endpoint:
//   - https://query1.finance.yahoo.com/v8/finance/chart/{symbol}?range=1mo&interval=1d
//
// Rows with no close price are dropped. An unknown or delisted symbol yields
// no rows rather than an error.
package yahoo
