// Package bus is the client side of the message bus.
//
// Every operation opens its own WebSocket connection and closes it on every
// exit path:
//
//   - Publish sends one envelope and returns.
//   - Request sends an envelope flagged reply and waits for exactly one
//     response frame, bounded by a timeout.
//   - Subscribe sends an envelope flagged subscribe and exposes the stream of
//     incoming frames as an iterator.
//
// Text frames carry JSON. With WithBinaryFrames the client sends CBOR binary
// frames instead; the server answers in the frame type it received. Response
// bodies that are not structured objects are returned as {"payload": raw}.
package bus
