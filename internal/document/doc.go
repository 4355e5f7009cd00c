// Package document implements the Document Connector.
//
// Fetch downloads an http(s) resource and returns it base64-encoded so it can
// travel inside a JSON envelope. Non-2xx responses and transport failures are
// reported as *UpstreamError.
package document
