// Package envelope implements the wire codec for the message bus.
//
// An envelope is the unit every peer exchanges:
//
//	{"channel": "market", "message": {...}, "subscribe": false, "reply": true}
//
// WebSocket text frames carry JSON, binary frames carry the same shape as CBOR
// so a message may hold raw bytes without base64. Server responses and stream
// items are bare objects (Body). Decoding a body never fails: a payload that is
// not an object degrades to {"payload": "<raw text>"}.
package envelope
