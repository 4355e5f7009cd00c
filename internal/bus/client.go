package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/mcpbus/internal/envelope"
)

// Default settings.
const (
	DefaultRequestTimeout   = 30 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
)

// Client talks to a bus server at a single URL.
type Client struct {
	url            string
	dialer         *websocket.Dialer
	header         http.Header
	binary         bool
	requestTimeout time.Duration
	writeTimeout   time.Duration
	logger         *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithHeader adds a header to every handshake.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.header.Add(key, value)
	}
}

// WithBinaryFrames sends CBOR binary frames instead of JSON text frames.
func WithBinaryFrames() Option {
	return func(c *Client) {
		c.binary = true
	}
}

// WithDefaultTimeout sets the timeout used by Request when none is given.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.requestTimeout = d
		}
	}
}

// WithWriteTimeout bounds each frame write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// New creates a client for the server at url (ws:// or wss://).
func New(url string, opts ...Option) *Client {
	c := &Client{
		url: url,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: DefaultHandshakeTimeout,
		},
		header:         http.Header{},
		requestTimeout: DefaultRequestTimeout,
		writeTimeout:   DefaultWriteTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}

	return c
}

// URL returns the server URL.
func (c *Client) URL() string {
	return c.url
}

// Publish sends message on channel without expecting a response.
func (c *Client) Publish(ctx context.Context, channel string, message any) error {
	if strings.TrimSpace(channel) == "" {
		return ErrEmptyChannel
	}

	cn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer cn.close()

	if err := cn.send(envelope.Envelope{Channel: channel, Message: message}); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}

	c.logger.Debug("published", "channel", channel)
	return nil
}

// Request sends message on channel and waits for one response. A timeout of
// zero uses the client default. On timeout the connection is closed and any
// late response is discarded.
func (c *Client) Request(ctx context.Context, channel string, message any, timeout time.Duration) (envelope.Body, error) {
	if strings.TrimSpace(channel) == "" {
		return nil, ErrEmptyChannel
	}
	if timeout <= 0 {
		timeout = c.requestTimeout
	}

	deadline := time.Now().Add(timeout)
	reqCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	timedOut := func(err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(reqCtx.Err(), context.DeadlineExceeded) || isTimeout(err) {
			return &RequestTimeoutError{Channel: channel, Timeout: timeout}
		}
		return err
	}

	cn, err := c.dial(reqCtx)
	if err != nil {
		return nil, timedOut(err)
	}
	defer cn.close()

	// Closing the socket unblocks the read when ctx ends first.
	stop := context.AfterFunc(reqCtx, cn.close)
	defer stop()

	if err := cn.send(envelope.Envelope{Channel: channel, Message: message, Reply: true}); err != nil {
		return nil, timedOut(fmt.Errorf("send request: %w", err))
	}

	cn.ws.SetReadDeadline(deadline)
	body, err := cn.read()
	if err != nil {
		err = timedOut(fmt.Errorf("read response: %w", err))
		if errors.Is(err, ErrRequestTimeout) {
			c.logger.Warn("request timed out", "channel", channel, "timeout", timeout)
		}
		return nil, err
	}

	return body, nil
}

// Subscribe registers on channel and returns the live stream. The connection
// stays open until the iteration ends, Close is called or ctx is cancelled.
func (c *Client) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	if strings.TrimSpace(channel) == "" {
		return nil, ErrEmptyChannel
	}

	cn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	if err := cn.send(envelope.Envelope{Channel: channel, Message: envelope.Body{}, Subscribe: true}); err != nil {
		cn.close()
		return nil, fmt.Errorf("subscribe to %s: %w", channel, err)
	}

	c.logger.Debug("subscribed", "channel", channel)
	return newSubscription(ctx, channel, cn, c.logger), nil
}

func (c *Client) dial(ctx context.Context) (*conn, error) {
	ws, resp, err := c.dialer.DialContext(ctx, c.url, c.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", c.url, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", c.url, err)
	}
	return &conn{ws: ws, binary: c.binary, writeTimeout: c.writeTimeout}, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
