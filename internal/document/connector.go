package document

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rickgao/mcpbus/internal/version"
)

// Defaults for Config.
const (
	DefaultTimeout   = 30 * time.Second
	DefaultMaxBytes  = 64 << 20
	DefaultMediaType = "application/octet-stream"
)

var (
	ErrUpstream       = errors.New("upstream failure")
	ErrEmptyURI       = errors.New("uri is required")
	ErrUnsupportedURI = errors.New("only http and https uris are supported")
	ErrTooLarge       = errors.New("document exceeds size limit")
)

// UpstreamError reports a failed fetch.
type UpstreamError struct {
	URI        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.URI, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URI, e.Err)
}

func (e *UpstreamError) Unwrap() []error {
	return []error{ErrUpstream, e.Err}
}

// FetchResult is the wire-visible reply to a fetch action.
type FetchResult struct {
	URI           string `json:"uri"`
	MediaType     string `json:"media_type"`
	ContentBase64 string `json:"content_base64"`
}

// Bytes decodes the content.
func (r FetchResult) Bytes() ([]byte, error) {
	return base64.StdEncoding.DecodeString(r.ContentBase64)
}

// Config holds connector configuration.
type Config struct {
	Timeout  time.Duration // Whole-request timeout (default: 30s)
	MaxBytes int64         // Largest body accepted (default: 64 MiB)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:  DefaultTimeout,
		MaxBytes: DefaultMaxBytes,
	}
}

// Connector fetches remote documents.
type Connector struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewConnector creates a Connector. A nil httpClient gets one with
// cfg.Timeout.
func NewConnector(cfg Config, httpClient *http.Client, logger *slog.Logger) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Connector{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Fetch downloads uri. mediaType, when set, overrides the response
// Content-Type in the result.
func (c *Connector) Fetch(ctx context.Context, uri, mediaType string) (FetchResult, error) {
	body, contentType, err := c.Download(ctx, uri)
	if err != nil {
		return FetchResult{}, err
	}

	if mediaType == "" {
		mediaType = contentType
	}
	if mediaType == "" {
		mediaType = DefaultMediaType
	}

	c.logger.Debug("document fetched",
		"uri", uri,
		"media_type", mediaType,
		"bytes", len(body),
	)

	return FetchResult{
		URI:           uri,
		MediaType:     mediaType,
		ContentBase64: base64.StdEncoding.EncodeToString(body),
	}, nil
}

// Download performs the GET and returns the body and its Content-Type.
func (c *Connector) Download(ctx context.Context, uri string) ([]byte, string, error) {
	if strings.TrimSpace(uri) == "" {
		return nil, "", ErrEmptyURI
	}
	u, err := url.Parse(uri)
	if err != nil {
		return nil, "", fmt.Errorf("parse uri: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, "", ErrUnsupportedURI
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &UpstreamError{URI: uri, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, "", &UpstreamError{
			URI:        uri,
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBytes+1))
	if err != nil {
		return nil, "", &UpstreamError{URI: uri, StatusCode: resp.StatusCode, Err: err}
	}
	if int64(len(body)) > c.cfg.MaxBytes {
		return nil, "", &UpstreamError{URI: uri, StatusCode: resp.StatusCode, Err: ErrTooLarge}
	}

	return body, resp.Header.Get("Content-Type"), nil
}
