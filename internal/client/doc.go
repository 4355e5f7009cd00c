// Package client provides typed market and document facades over the bus
// client.
//
// MarketClient narrows the "market" channel to history fetches and a
// symbol-filtered tick stream. DocumentClient turns fetch, OCR and speech
// requests into byte buffers and text, resolving the three content shapes a
// fetch reply may carry.
package client
