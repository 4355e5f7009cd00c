package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/rickgao/mcpbus/internal/bus"
	"github.com/rickgao/mcpbus/internal/document"
	"github.com/rickgao/mcpbus/internal/envelope"
)

// Document actions.
const (
	ActionFetch = "fetch"
	ActionOCR   = "ocr"
	ActionASR   = "asr"
)

// DocumentClient is the typed facade for document channels.
type DocumentClient struct {
	bus        *bus.Client
	downloader *document.Connector
	timeout    time.Duration
	logger     *slog.Logger
}

// NewDocumentClient creates a document facade. downloader dereferences
// signed URLs; nil gets one with default settings.
func NewDocumentClient(b *bus.Client, downloader *document.Connector, timeout time.Duration, logger *slog.Logger) *DocumentClient {
	if logger == nil {
		logger = slog.Default()
	}
	if downloader == nil {
		downloader = document.NewConnector(document.DefaultConfig(), nil, logger)
	}
	return &DocumentClient{
		bus:        b,
		downloader: downloader,
		timeout:    timeout,
		logger:     logger,
	}
}

// Fetch returns the bytes of the document named by req.
func (c *DocumentClient) Fetch(ctx context.Context, req DocumentRequest) ([]byte, error) {
	body, req, err := c.call(ctx, req, ActionFetch)
	if err != nil {
		return nil, err
	}

	content := ResolveContent(body)
	c.logger.Debug("document resolved", "uri", req.URI, "kind", content.Kind.String())

	return content.Bytes(ctx, c.download)
}

// OCRImage returns the text recognized in the image named by req.
func (c *DocumentClient) OCRImage(ctx context.Context, req DocumentRequest) (string, error) {
	return c.text(ctx, req, ActionOCR)
}

// SpeechToText returns the transcript of the audio named by req.
func (c *DocumentClient) SpeechToText(ctx context.Context, req DocumentRequest) (string, error) {
	return c.text(ctx, req, ActionASR)
}

func (c *DocumentClient) text(ctx context.Context, req DocumentRequest, action string) (string, error) {
	body, _, err := c.call(ctx, req, action)
	if err != nil {
		return "", err
	}
	text, ok := body["text"].(string)
	if !ok {
		return "", ErrMissingText
	}
	return text, nil
}

func (c *DocumentClient) call(ctx context.Context, req DocumentRequest, action string) (envelope.Body, DocumentRequest, error) {
	req, err := req.normalize()
	if err != nil {
		return nil, req, err
	}

	body, err := c.bus.Request(ctx, req.Channel, req.message(action), c.timeout)
	if err != nil {
		return nil, req, err
	}
	if msg := body.Error(); msg != "" {
		return nil, req, &RemoteError{Channel: req.Channel, Message: msg}
	}
	return body, req, nil
}

func (c *DocumentClient) download(ctx context.Context, url string) ([]byte, error) {
	data, _, err := c.downloader.Download(ctx, url)
	return data, err
}
