package poller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/mcpbus/internal/market"
)

// ErrNoData is returned when a symbol has no bars in the polled window.
var ErrNoData = errors.New("no bars returned")

// HistorySource fetches price history.
type HistorySource interface {
	History(ctx context.Context, symbol, period, interval string) (market.HistoryResult, error)
}

// Publisher delivers a message to a channel's subscribers.
type Publisher interface {
	Publish(channel string, payload any) int
}

// Tick is the message published for each symbol.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Volume int64     `json:"volume"`
	Time   time.Time `json:"time"`
	Source string    `json:"source"`
}

// Body converts the tick to the map form carried on the bus.
func (t Tick) Body() map[string]any {
	return map[string]any{
		"symbol": t.Symbol,
		"price":  t.Price,
		"volume": t.Volume,
		"time":   t.Time.UTC().Format(time.RFC3339),
		"source": t.Source,
	}
}

// Config holds poller configuration.
type Config struct {
	Symbols     []string      // Symbols to poll
	Channel     string        // Channel ticks are published on (default: market)
	Interval    time.Duration // Poll interval (default: 1m)
	Range       string        // History window per poll (default: 1d)
	BarInterval string        // Bar width per poll (default: 1m)
	Concurrency int           // Max concurrent requests (default: 4)
	Timeout     time.Duration // Per-request timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Channel:     "market",
		Interval:    time.Minute,
		Range:       "1d",
		BarInterval: "1m",
		Concurrency: 4,
		Timeout:     10 * time.Second,
	}
}

// Poller periodically publishes the latest price for each symbol.
type Poller struct {
	cfg       Config
	source    HistorySource
	publisher Publisher
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller. Zero config fields take their defaults.
func New(cfg Config, source HistorySource, publisher Publisher, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	defaults := DefaultConfig()
	if cfg.Channel == "" {
		cfg.Channel = defaults.Channel
	}
	if cfg.Interval <= 0 {
		cfg.Interval = defaults.Interval
	}
	if cfg.Range == "" {
		cfg.Range = defaults.Range
	}
	if cfg.BarInterval == "" {
		cfg.BarInterval = defaults.BarInterval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaults.Timeout
	}
	return &Poller{
		cfg:       cfg,
		source:    source,
		publisher: publisher,
		logger:    logger,
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("tick poller started",
		"symbols", len(p.cfg.Symbols),
		"interval", p.cfg.Interval,
		"channel", p.cfg.Channel,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("tick poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.pollAll()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

// pollAll fetches every symbol concurrently and publishes the results.
func (p *Poller) pollAll() {
	if len(p.cfg.Symbols) == 0 {
		p.logger.Debug("no symbols to poll")
		return
	}

	start := time.Now()

	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	var published, failed atomic.Int64

	for _, symbol := range p.cfg.Symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-p.ctx.Done():
				return
			}

			if err := p.pollSymbol(symbol); err != nil {
				p.logger.Warn("failed to poll symbol",
					"symbol", symbol,
					"error", err,
				)
				failed.Add(1)
				return
			}

			published.Add(1)
		}(symbol)
	}

	wg.Wait()

	p.logger.Debug("poll cycle complete",
		"symbols", len(p.cfg.Symbols),
		"published", published.Load(),
		"errors", failed.Load(),
		"duration", time.Since(start),
	)
}

// pollSymbol fetches the latest bar for symbol and publishes it.
func (p *Poller) pollSymbol(symbol string) error {
	ctx, cancel := context.WithTimeout(p.ctx, p.cfg.Timeout)
	defer cancel()

	result, err := p.source.History(ctx, symbol, p.cfg.Range, p.cfg.BarInterval)
	if err != nil {
		return err
	}
	if len(result.Data) == 0 {
		return ErrNoData
	}

	last := result.Data[len(result.Data)-1]
	tick := Tick{
		Symbol: result.Symbol,
		Price:  last.Close,
		Volume: last.Volume,
		Time:   last.Datetime,
		Source: result.Source,
	}

	p.publisher.Publish(p.cfg.Channel, tick.Body())
	return nil
}
