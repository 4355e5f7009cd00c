// Package workerpool runs blocking calls on a bounded set of goroutines.
//
// Connectors wrap third-party calls that block (market data downloads) with
// Do so that a slow provider can occupy at most Workers goroutines. A caller
// that cannot get a slot within QueueTimeout fails fast with ErrPoolExhausted
// instead of piling up behind the provider.
package workerpool
