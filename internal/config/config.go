package config

import (
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"
)

// Config is the root configuration shared by the server and the CLI.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Client   ClientConfig   `yaml:"client"`
	Market   MarketConfig   `yaml:"market"`
	Document DocumentConfig `yaml:"document"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds bus server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadLimit        int64         `yaml:"read_limit"`        // Max inbound frame size in bytes
	WriteTimeout     time.Duration `yaml:"write_timeout"`     // Write deadline per frame
	PingInterval     time.Duration `yaml:"ping_interval"`     // Keepalive ping period
	SubscriberBuffer int           `yaml:"subscriber_buffer"` // Per-subscriber queue before dropping
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// ClientConfig holds bus client settings.
type ClientConfig struct {
	MarketURL      string        `yaml:"market_url"`   // Bus endpoint for market channels
	DocumentURL    string        `yaml:"document_url"` // Bus endpoint for document channels
	RequestTimeout time.Duration `yaml:"request_timeout"`
	BinaryFrames   bool          `yaml:"binary_frames"` // Send CBOR binary frames instead of JSON text
}

// MarketConfig holds market connector settings.
type MarketConfig struct {
	Provider     string        `yaml:"provider"` // "yahoo" or "timescale"
	Workers      int           `yaml:"workers"`
	QueueTimeout time.Duration `yaml:"queue_timeout"`
	Yahoo        YahooConfig   `yaml:"yahoo"`
	Stream       StreamConfig  `yaml:"stream"`
}

// StreamConfig drives the tick poller that publishes on the market channel.
// Streaming is off when Symbols is empty.
type StreamConfig struct {
	Symbols     []string      `yaml:"symbols"`
	Interval    time.Duration `yaml:"interval"`
	Range       string        `yaml:"range"`
	BarInterval string        `yaml:"bar_interval"`
}

// YahooConfig holds chart API settings.
type YahooConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
}

// DocumentConfig holds document connector settings.
type DocumentConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	MaxBytes int64         `yaml:"max_bytes"`
}

// DatabaseConfig holds the TimescaleDB connection used by the timescale
// market provider.
type DatabaseConfig struct {
	Timescale DBConfig `yaml:"timescale"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// SlogLevel maps Level to a slog.Level. Unknown values map to info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the slog logger described by l, writing to w.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: l.SlogLevel()}
	if strings.EqualFold(l.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
