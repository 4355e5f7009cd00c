// Package database provides the TimescaleDB connection pool and a
// market.Provider that reads OHLCV bars from it.
//
// Expected table (one row per raw bar, any granularity):
//
//	CREATE TABLE price_bars (
//	    ts        TIMESTAMPTZ NOT NULL,
//	    symbol    TEXT        NOT NULL,
//	    open      DOUBLE PRECISION,
//	    high      DOUBLE PRECISION,
//	    low       DOUBLE PRECISION,
//	    close     DOUBLE PRECISION NOT NULL,
//	    adj_close DOUBLE PRECISION,
//	    volume    BIGINT
//	);
//	SELECT create_hypertable('price_bars', 'ts');
//
// Bars are re-bucketed to the requested interval with time_bucket.
package database
