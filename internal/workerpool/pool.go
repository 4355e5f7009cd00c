package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrPoolExhausted is returned when no worker frees up within QueueTimeout.
var ErrPoolExhausted = errors.New("worker pool exhausted")

// Config holds pool configuration.
type Config struct {
	Workers      int           // Max concurrent calls (default: 4)
	QueueTimeout time.Duration // Max wait for a free worker; 0 = fail immediately
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Workers:      4,
		QueueTimeout: 5 * time.Second,
	}
}

// Stats is a point-in-time view of pool usage.
type Stats struct {
	Workers  int
	InFlight int64
	Rejected int64
}

// Pool bounds the number of concurrently running blocking calls.
type Pool struct {
	cfg    Config
	sem    *semaphore.Weighted
	logger *slog.Logger

	inFlight atomic.Int64
	rejected atomic.Int64
}

// New creates a Pool.
func New(cfg Config, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Pool{
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.Workers)),
		logger: logger,
	}
}

// Stats returns current usage.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:  p.cfg.Workers,
		InFlight: p.inFlight.Load(),
		Rejected: p.rejected.Load(),
	}
}

// Do runs fn on a pool worker and waits for its result or for ctx to end.
// When ctx ends first the worker keeps its slot until fn returns; the result
// is discarded.
func Do[T any](ctx context.Context, p *Pool, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if err := p.acquire(ctx); err != nil {
		return zero, err
	}

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)

	p.inFlight.Add(1)
	go func() {
		defer p.sem.Release(1)
		defer p.inFlight.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("worker panic", "panic", r)
				done <- result{err: fmt.Errorf("worker panic: %v", r)}
			}
		}()

		v, err := fn(ctx)
		done <- result{val: v, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (p *Pool) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if p.cfg.QueueTimeout <= 0 {
		if !p.sem.TryAcquire(1) {
			p.rejected.Add(1)
			return ErrPoolExhausted
		}
		return nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, p.cfg.QueueTimeout)
	defer cancel()

	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.rejected.Add(1)
		p.logger.Warn("no free worker",
			"workers", p.cfg.Workers,
			"queue_timeout", p.cfg.QueueTimeout,
		)
		return ErrPoolExhausted
	}
	return nil
}
