package client

import (
	"errors"
	"fmt"
	"strings"
)

// Request defaults.
const (
	DefaultRange           = "1mo"
	DefaultInterval        = "1h"
	DefaultMediaType       = "application/pdf"
	DefaultMarketChannel   = "market"
	DefaultDocumentChannel = "document"
)

var (
	ErrEmptySymbol    = errors.New("symbol is required")
	ErrEmptyURI       = errors.New("uri is required")
	ErrMissingContent = errors.New("response carries no document content")
	ErrMissingText    = errors.New("response carries no text")
)

// RemoteError is an {"error": ...} reply from the server.
type RemoteError struct {
	Channel string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Channel, e.Message)
}

// MarketRequest selects a symbol and history window.
type MarketRequest struct {
	Symbol   string
	Range    string
	Interval string
}

// NewMarketRequest returns a request for symbol with default range and
// interval.
func NewMarketRequest(symbol string) MarketRequest {
	return MarketRequest{
		Symbol:   symbol,
		Range:    DefaultRange,
		Interval: DefaultInterval,
	}
}

// normalize fills defaults and validates.
func (r MarketRequest) normalize() (MarketRequest, error) {
	r.Symbol = strings.TrimSpace(r.Symbol)
	if r.Symbol == "" {
		return r, ErrEmptySymbol
	}
	if r.Range == "" {
		r.Range = DefaultRange
	}
	if r.Interval == "" {
		r.Interval = DefaultInterval
	}
	return r, nil
}

func (r MarketRequest) params() map[string]any {
	return map[string]any{
		"symbol":   r.Symbol,
		"range":    r.Range,
		"interval": r.Interval,
	}
}

// DocumentRequest names a remote document and the channel that serves it.
type DocumentRequest struct {
	URI       string
	MediaType string
	Channel   string
}

// NewDocumentRequest returns a request for uri with the default media type
// and channel.
func NewDocumentRequest(uri string) DocumentRequest {
	return DocumentRequest{
		URI:       uri,
		MediaType: DefaultMediaType,
		Channel:   DefaultDocumentChannel,
	}
}

func (r DocumentRequest) normalize() (DocumentRequest, error) {
	r.URI = strings.TrimSpace(r.URI)
	if r.URI == "" {
		return r, ErrEmptyURI
	}
	if r.MediaType == "" {
		r.MediaType = DefaultMediaType
	}
	if r.Channel == "" {
		r.Channel = DefaultDocumentChannel
	}
	return r, nil
}

func (r DocumentRequest) message(action string) map[string]any {
	return map[string]any{
		"action":     action,
		"uri":        r.URI,
		"media_type": r.MediaType,
	}
}
