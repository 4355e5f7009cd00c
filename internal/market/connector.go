package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rickgao/mcpbus/internal/workerpool"
)

var (
	// ErrEmptySymbol is returned for a history request without a symbol.
	ErrEmptySymbol = errors.New("symbol is required")

	// ErrInvalidRequest is matched by range or interval values that cannot
	// be parsed. Such requests never reach the provider.
	ErrInvalidRequest = errors.New("invalid history request")
)

// Connector serves history requests from a Provider.
type Connector struct {
	provider Provider
	pool     *workerpool.Pool
	logger   *slog.Logger
}

// NewConnector creates a Connector. A nil pool gets a default-sized one.
func NewConnector(provider Provider, pool *workerpool.Pool, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	if pool == nil {
		pool = workerpool.New(workerpool.DefaultConfig(), logger)
	}
	return &Connector{
		provider: provider,
		pool:     pool,
		logger:   logger,
	}
}

// Source returns the provider's source tag.
func (c *Connector) Source() string {
	return c.provider.Name()
}

// Pool returns the worker pool used for provider calls.
func (c *Connector) Pool() *workerpool.Pool {
	return c.pool
}

// History fetches price history for symbol.
func (c *Connector) History(ctx context.Context, symbol, period, interval string) (HistoryResult, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return HistoryResult{}, ErrEmptySymbol
	}
	if period == "" {
		period = DefaultRange
	}
	if interval == "" {
		interval = DefaultInterval
	}
	if _, err := PeriodStart(period, time.Now()); err != nil {
		return HistoryResult{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if _, err := IntervalDuration(interval); err != nil {
		return HistoryResult{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	start := time.Now()
	rows, err := workerpool.Do(ctx, c.pool, func(ctx context.Context) ([]PriceRecord, error) {
		return c.provider.Download(ctx, symbol, period, interval)
	})
	if err != nil {
		c.logger.Warn("history download failed",
			"symbol", symbol,
			"provider", c.provider.Name(),
			"error", err,
		)
		return HistoryResult{}, &UpstreamError{
			Provider: c.provider.Name(),
			Symbol:   symbol,
			Err:      err,
		}
	}

	if rows == nil {
		rows = []PriceRecord{}
	}

	c.logger.Debug("history downloaded",
		"symbol", symbol,
		"range", period,
		"interval", interval,
		"rows", len(rows),
		"duration", time.Since(start),
	)

	return HistoryResult{
		Symbol: symbol,
		Data:   rows,
		Source: c.provider.Name(),
	}, nil
}
