package market

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Request defaults applied by the server when params are absent.
const (
	DefaultSymbol   = "AAPL"
	DefaultRange    = "1mo"
	DefaultInterval = "1d"
)

// ErrUpstream is matched by every UpstreamError.
var ErrUpstream = errors.New("upstream failure")

// UpstreamError reports a failed provider call.
type UpstreamError struct {
	Provider string
	Symbol   string
	Err      error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("market provider %s: %s: %v", e.Provider, e.Symbol, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstream, e.Err}
}

// PriceRecord is one OHLCV row. JSON names follow the provider's column
// headers so existing consumers can read the rows unchanged.
type PriceRecord struct {
	Datetime time.Time `json:"Datetime"`
	Open     float64   `json:"Open"`
	High     float64   `json:"High"`
	Low      float64   `json:"Low"`
	Close    float64   `json:"Close"`
	AdjClose float64   `json:"Adj Close"`
	Volume   int64     `json:"Volume"`
}

// HistoryResult is the market connector's reply to a history request.
type HistoryResult struct {
	Symbol string        `json:"symbol"`
	Data   []PriceRecord `json:"data"`
	Source string        `json:"source"`
}

// Provider downloads historical rows. Download may block for as long as the
// backing service takes; the connector bounds how many run at once.
type Provider interface {
	// Name is the source tag put on every HistoryResult (e.g. "yahoo").
	Name() string

	// Download returns rows for symbol over period at the given interval.
	// A symbol with no data yields (nil, nil).
	Download(ctx context.Context, symbol, period, interval string) ([]PriceRecord, error)
}
