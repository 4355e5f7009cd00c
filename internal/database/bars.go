package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/mcpbus/internal/market"
)

const historyQuery = `
SELECT time_bucket(make_interval(secs => $1), ts) AS bucket,
       first(open, ts),
       max(high),
       min(low),
       last(close, ts),
       last(coalesce(adj_close, close), ts),
       coalesce(sum(volume), 0)
FROM price_bars
WHERE symbol = $2 AND ts >= $3
GROUP BY bucket
ORDER BY bucket`

// BarStore serves price history from the price_bars hypertable.
type BarStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// NewBarStore creates a BarStore.
func NewBarStore(pool *pgxpool.Pool, logger *slog.Logger) *BarStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &BarStore{
		pool:   pool,
		logger: logger,
		now:    time.Now,
	}
}

// Name implements market.Provider.
func (s *BarStore) Name() string {
	return "timescale"
}

// Download implements market.Provider.
func (s *BarStore) Download(ctx context.Context, symbol, period, interval string) ([]market.PriceRecord, error) {
	args, err := historyArgs(symbol, period, interval, s.now())
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, historyQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("query price bars: %w", err)
	}

	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("scan price bars: %w", err)
	}

	s.logger.Debug("price bars loaded", "symbol", symbol, "rows", len(records))
	return records, nil
}

// historyArgs builds the query arguments: bucket width in seconds, symbol,
// and window start.
func historyArgs(symbol, period, interval string, now time.Time) ([]any, error) {
	start, err := market.PeriodStart(period, now)
	if err != nil {
		return nil, err
	}
	width, err := market.IntervalDuration(interval)
	if err != nil {
		return nil, err
	}
	return []any{width.Seconds(), symbol, start.UTC()}, nil
}

func scanRecord(row pgx.CollectableRow) (market.PriceRecord, error) {
	var (
		rec                  market.PriceRecord
		open, high, low, adj *float64
	)
	if err := row.Scan(&rec.Datetime, &open, &high, &low, &rec.Close, &adj, &rec.Volume); err != nil {
		return market.PriceRecord{}, err
	}
	rec.Datetime = rec.Datetime.UTC()
	rec.Open = valueOr(open, rec.Close)
	rec.High = valueOr(high, rec.Close)
	rec.Low = valueOr(low, rec.Close)
	rec.AdjClose = valueOr(adj, rec.Close)
	return rec, nil
}

func valueOr(f *float64, fallback float64) float64 {
	if f == nil {
		return fallback
	}
	return *f
}
