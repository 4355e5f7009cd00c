package client

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/rickgao/mcpbus/internal/envelope"
)

// ContentKind tags how a fetch reply carries the document.
type ContentKind int

const (
	ContentMissing ContentKind = iota
	ContentEncoded
	ContentRaw
	ContentSignedURL
)

func (k ContentKind) String() string {
	switch k {
	case ContentEncoded:
		return "encoded"
	case ContentRaw:
		return "raw"
	case ContentSignedURL:
		return "signed_url"
	default:
		return "missing"
	}
}

// Reply fields that may carry document content.
const (
	fieldEncoded   = "content_base64"
	fieldRaw       = "content"
	fieldSignedURL = "signed_url"
)

// Content is the resolved shape of a fetch reply. Exactly one of Encoded,
// Raw or SignedURL is meaningful, as selected by Kind.
type Content struct {
	Kind      ContentKind
	Encoded   string
	Raw       []byte
	SignedURL string
}

// ResolveContent picks the content shape of body. Inline base64 wins over
// raw content, which wins over a signed URL.
func ResolveContent(body envelope.Body) Content {
	if s := body.String(fieldEncoded); s != "" {
		return Content{Kind: ContentEncoded, Encoded: s}
	}

	switch raw := body[fieldRaw].(type) {
	case []byte:
		if len(raw) > 0 {
			return Content{Kind: ContentRaw, Raw: raw}
		}
	case string:
		if raw != "" {
			return Content{Kind: ContentRaw, Raw: []byte(raw)}
		}
	}

	if u := body.String(fieldSignedURL); u != "" {
		return Content{Kind: ContentSignedURL, SignedURL: u}
	}
	return Content{Kind: ContentMissing}
}

// Bytes returns the document bytes. download is called only for a signed
// URL.
func (c Content) Bytes(ctx context.Context, download func(ctx context.Context, url string) ([]byte, error)) ([]byte, error) {
	switch c.Kind {
	case ContentEncoded:
		data, err := base64.StdEncoding.DecodeString(c.Encoded)
		if err != nil {
			return nil, fmt.Errorf("decode content: %w", err)
		}
		return data, nil
	case ContentRaw:
		return c.Raw, nil
	case ContentSignedURL:
		data, err := download(ctx, c.SignedURL)
		if err != nil {
			return nil, fmt.Errorf("download signed url: %w", err)
		}
		return data, nil
	default:
		return nil, ErrMissingContent
	}
}
