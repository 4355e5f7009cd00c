package config

import (
	"os"
	"time"
)

// BusURLEnv overrides the default client endpoints when set.
const BusURLEnv = "MCP_BUS_URL"

// Default values for optional configuration fields.
const (
	DefaultHost             = "0.0.0.0"
	DefaultPort             = 8765
	DefaultReadLimit        = 16 << 20
	DefaultWriteTimeout     = 10 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultSubscriberBuffer = 256
	DefaultShutdownTimeout  = 10 * time.Second
	DefaultBusURL           = "ws://localhost:8765"
	DefaultRequestTimeout   = 30 * time.Second
	DefaultProvider         = "yahoo"
	DefaultWorkers          = 4
	DefaultQueueTimeout     = 5 * time.Second
	DefaultYahooBaseURL     = "https://query1.finance.yahoo.com"
	DefaultYahooTimeout     = 30 * time.Second
	DefaultYahooMaxRetries  = 2
	DefaultStreamInterval   = time.Minute
	DefaultStreamRange      = "1d"
	DefaultStreamBar        = "1m"
	DefaultDocumentTimeout  = 30 * time.Second
	DefaultDocumentMaxBytes = 64 << 20
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 10
	DefaultMinConns         = 2
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "text"
)

func (c *Config) applyDefaults() {
	// Server defaults
	if c.Server.Host == "" {
		c.Server.Host = DefaultHost
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.Server.ReadLimit == 0 {
		c.Server.ReadLimit = DefaultReadLimit
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.PingInterval == 0 {
		c.Server.PingInterval = DefaultPingInterval
	}
	if c.Server.SubscriberBuffer == 0 {
		c.Server.SubscriberBuffer = DefaultSubscriberBuffer
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = DefaultShutdownTimeout
	}

	// Client defaults
	busURL := os.Getenv(BusURLEnv)
	if busURL == "" {
		busURL = DefaultBusURL
	}
	if c.Client.MarketURL == "" {
		c.Client.MarketURL = busURL
	}
	if c.Client.DocumentURL == "" {
		c.Client.DocumentURL = busURL
	}
	if c.Client.RequestTimeout == 0 {
		c.Client.RequestTimeout = DefaultRequestTimeout
	}

	// Market defaults
	if c.Market.Provider == "" {
		c.Market.Provider = DefaultProvider
	}
	if c.Market.Workers == 0 {
		c.Market.Workers = DefaultWorkers
	}
	if c.Market.QueueTimeout == 0 {
		c.Market.QueueTimeout = DefaultQueueTimeout
	}
	if c.Market.Yahoo.BaseURL == "" {
		c.Market.Yahoo.BaseURL = DefaultYahooBaseURL
	}
	if c.Market.Yahoo.Timeout == 0 {
		c.Market.Yahoo.Timeout = DefaultYahooTimeout
	}
	if c.Market.Yahoo.MaxRetries == 0 {
		c.Market.Yahoo.MaxRetries = DefaultYahooMaxRetries
	}
	if c.Market.Stream.Interval == 0 {
		c.Market.Stream.Interval = DefaultStreamInterval
	}
	if c.Market.Stream.Range == "" {
		c.Market.Stream.Range = DefaultStreamRange
	}
	if c.Market.Stream.BarInterval == "" {
		c.Market.Stream.BarInterval = DefaultStreamBar
	}

	// Document defaults
	if c.Document.Timeout == 0 {
		c.Document.Timeout = DefaultDocumentTimeout
	}
	if c.Document.MaxBytes == 0 {
		c.Document.MaxBytes = DefaultDocumentMaxBytes
	}

	// Database defaults
	applyDBDefaults(&c.Database.Timescale)

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
