package client

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"github.com/rickgao/mcpbus/internal/bus"
	"github.com/rickgao/mcpbus/internal/envelope"
	"github.com/rickgao/mcpbus/internal/market"
)

// Tick is one streamed market update.
type Tick struct {
	Symbol string
	Price  float64 // 0 when the update carries no price
	Body   envelope.Body
}

func newTick(body envelope.Body) Tick {
	price, _ := body["price"].(float64)
	return Tick{
		Symbol: body.String("symbol"),
		Price:  price,
		Body:   body,
	}
}

// MarketClient is the typed facade for the market channel.
type MarketClient struct {
	bus     *bus.Client
	channel string
	timeout time.Duration
	logger  *slog.Logger
}

// NewMarketClient creates a market facade. A zero timeout uses the bus
// client's default.
func NewMarketClient(b *bus.Client, timeout time.Duration, logger *slog.Logger) *MarketClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &MarketClient{
		bus:     b,
		channel: DefaultMarketChannel,
		timeout: timeout,
		logger:  logger,
	}
}

// FetchHistory requests price history for req.
func (c *MarketClient) FetchHistory(ctx context.Context, req MarketRequest) (market.HistoryResult, error) {
	req, err := req.normalize()
	if err != nil {
		return market.HistoryResult{}, err
	}

	body, err := c.bus.Request(ctx, c.channel, map[string]any{
		"action": "history",
		"params": req.params(),
	}, c.timeout)
	if err != nil {
		return market.HistoryResult{}, err
	}
	if msg := body.Error(); msg != "" {
		return market.HistoryResult{}, &RemoteError{Channel: c.channel, Message: msg}
	}

	var result market.HistoryResult
	if err := body.Decode(&result); err != nil {
		return market.HistoryResult{}, fmt.Errorf("decode history: %w", err)
	}
	if result.Data == nil {
		result.Data = []market.PriceRecord{}
	}
	return result, nil
}

// StreamPrices subscribes to the market channel and yields the ticks for
// req.Symbol (case-insensitive) in arrival order. The sequence is infinite
// and can be ranged over once. Calling stop, leaving the loop or cancelling
// ctx closes the connection.
func (c *MarketClient) StreamPrices(ctx context.Context, req MarketRequest) (seq iter.Seq2[Tick, error], stop func() error, err error) {
	req, err = req.normalize()
	if err != nil {
		return nil, nil, err
	}

	sub, err := c.bus.Subscribe(ctx, c.channel)
	if err != nil {
		return nil, nil, err
	}

	c.logger.Debug("streaming prices", "symbol", req.Symbol)

	seq = func(yield func(Tick, error) bool) {
		for body, err := range sub.Messages() {
			if err != nil {
				yield(Tick{}, err)
				return
			}
			if !strings.EqualFold(body.String("symbol"), req.Symbol) {
				continue
			}
			if !yield(newTick(body), nil) {
				return
			}
		}
	}
	return seq, sub.Close, nil
}
