package bus

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/rickgao/mcpbus/internal/envelope"
)

// Subscription is a live channel stream backed by its own connection.
type Subscription struct {
	channel string
	conn    *conn
	ctx     context.Context
	logger  *slog.Logger

	consumed atomic.Bool
	closed   atomic.Bool
	stop     func() bool
}

func newSubscription(ctx context.Context, channel string, cn *conn, logger *slog.Logger) *Subscription {
	s := &Subscription{
		channel: channel,
		conn:    cn,
		ctx:     ctx,
		logger:  logger,
	}
	s.stop = context.AfterFunc(ctx, s.shutdown)
	return s
}

// Channel returns the subscribed channel.
func (s *Subscription) Channel() string {
	return s.channel
}

// Messages returns the stream of frames in arrival order. The sequence can be
// ranged over once; later iterations yield ErrSubscriptionConsumed. Leaving
// the loop closes the connection. The sequence ends without an error when the
// subscription is closed, ctx is cancelled or the server closes normally.
func (s *Subscription) Messages() iter.Seq2[envelope.Body, error] {
	return func(yield func(envelope.Body, error) bool) {
		if !s.consumed.CompareAndSwap(false, true) {
			yield(nil, ErrSubscriptionConsumed)
			return
		}
		defer s.Close()

		for {
			body, err := s.conn.read()
			if err != nil {
				if s.closed.Load() || s.ctx.Err() != nil {
					return
				}
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return
				}
				yield(nil, fmt.Errorf("read %s: %w", s.channel, err))
				return
			}
			if !yield(body, nil) {
				return
			}
		}
	}
}

// Close ends the subscription and closes its connection.
func (s *Subscription) Close() error {
	s.stop()
	s.shutdown()
	return nil
}

func (s *Subscription) shutdown() {
	if s.closed.CompareAndSwap(false, true) {
		s.conn.close()
		s.logger.Debug("subscription closed", "channel", s.channel)
	}
}
