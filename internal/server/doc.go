// Package server implements the bus server.
//
// Each WebSocket connection is served by one reader goroutine. Every frame is
// decoded as an envelope and handled by its flags:
//
//   - subscribe: the connection is registered on the hub for the channel and
//     receives every later publish on it.
//   - reply: the envelope is routed to a connector and exactly one response
//     is written back.
//   - neither: the message is published to the channel's subscribers.
//
// Routing matches the channel exactly first, then by family prefix followed by
// one of the separators ".", ":" or "/". "market.eu" reaches the market
// connector, "marketplace" does not.
//
// Responses are bare result objects or {"error": "..."} and use the frame type
// of the request: JSON for text frames, CBOR for binary frames. A frame that
// cannot be decoded gets {"error": "invalid payload"} and the connection stays
// open. Connector failures and panics are converted to error replies.
//
// The same listener serves GET /health and GET /sse?channel=NAME, a
// Server-Sent Events relay of hub traffic.
package server
