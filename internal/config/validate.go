package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Provider names accepted by market.provider.
const (
	ProviderYahoo     = "yahoo"
	ProviderTimescale = "timescale"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.ReadLimit < 1 {
		return errors.New("server.read_limit must be >= 1")
	}
	if c.Server.SubscriberBuffer < 1 {
		return errors.New("server.subscriber_buffer must be >= 1")
	}

	if err := validateBusURL("client.market_url", c.Client.MarketURL); err != nil {
		return err
	}
	if err := validateBusURL("client.document_url", c.Client.DocumentURL); err != nil {
		return err
	}
	if c.Client.RequestTimeout <= 0 {
		return errors.New("client.request_timeout must be > 0")
	}

	switch c.Market.Provider {
	case ProviderYahoo:
	case ProviderTimescale:
		if err := c.Database.Timescale.validate("database.timescale"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("market.provider must be %q or %q, got %q", ProviderYahoo, ProviderTimescale, c.Market.Provider)
	}
	if c.Market.Workers < 1 {
		return errors.New("market.workers must be >= 1")
	}
	if c.Market.QueueTimeout < 0 {
		return errors.New("market.queue_timeout must be >= 0")
	}
	for i, symbol := range c.Market.Stream.Symbols {
		if strings.TrimSpace(symbol) == "" {
			return fmt.Errorf("market.stream.symbols[%d] is empty", i)
		}
	}
	if len(c.Market.Stream.Symbols) > 0 && c.Market.Stream.Interval <= 0 {
		return errors.New("market.stream.interval must be > 0")
	}

	if c.Document.Timeout <= 0 {
		return errors.New("document.timeout must be > 0")
	}
	if c.Document.MaxBytes < 1 {
		return errors.New("document.max_bytes must be >= 1")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func validateBusURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("%s must use ws:// or wss://, got %q", field, raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%s is missing a host", field)
	}
	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
