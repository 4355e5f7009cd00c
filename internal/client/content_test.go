package client

import (
	"context"
	"errors"
	"testing"

	"github.com/rickgao/mcpbus/internal/envelope"
)

func TestResolveContent(t *testing.T) {
	tests := []struct {
		name string
		body envelope.Body
		want ContentKind
	}{
		{
			name: "all three",
			body: envelope.Body{"content_base64": "aGk=", "content": "hi", "signed_url": "https://x"},
			want: ContentEncoded,
		},
		{
			name: "raw and signed",
			body: envelope.Body{"content": []byte("hi"), "signed_url": "https://x"},
			want: ContentRaw,
		},
		{
			name: "signed only",
			body: envelope.Body{"signed_url": "https://x"},
			want: ContentSignedURL,
		},
		{
			name: "empty fields",
			body: envelope.Body{"content_base64": "", "content": "", "signed_url": ""},
			want: ContentMissing,
		},
		{
			name: "wrong types",
			body: envelope.Body{"content_base64": 12, "content": 3.5},
			want: ContentMissing,
		},
		{
			name: "payload fallback",
			body: envelope.Body{envelope.PayloadKey: "garbage"},
			want: ContentMissing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveContent(tt.body).Kind; got != tt.want {
				t.Errorf("Kind = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContent_Bytes(t *testing.T) {
	noDownload := func(context.Context, string) ([]byte, error) {
		t.Error("download called")
		return nil, nil
	}

	data, err := Content{Kind: ContentEncoded, Encoded: "aGk="}.Bytes(context.Background(), noDownload)
	if err != nil || string(data) != "hi" {
		t.Errorf("encoded = %q, %v", data, err)
	}

	if _, err := (Content{Kind: ContentEncoded, Encoded: "!!"}).Bytes(context.Background(), noDownload); err == nil {
		t.Error("expected base64 error")
	}

	data, err = Content{Kind: ContentRaw, Raw: []byte{1, 2}}.Bytes(context.Background(), noDownload)
	if err != nil || len(data) != 2 {
		t.Errorf("raw = %v, %v", data, err)
	}

	var gotURL string
	data, err = Content{Kind: ContentSignedURL, SignedURL: "https://x/y"}.Bytes(context.Background(),
		func(_ context.Context, url string) ([]byte, error) {
			gotURL = url
			return []byte("ok"), nil
		})
	if err != nil || string(data) != "ok" || gotURL != "https://x/y" {
		t.Errorf("signed = %q, %v (url %q)", data, err, gotURL)
	}

	if _, err := (Content{}).Bytes(context.Background(), noDownload); !errors.Is(err, ErrMissingContent) {
		t.Errorf("missing err = %v", err)
	}
}

func TestContentKind_String(t *testing.T) {
	for kind, want := range map[ContentKind]string{
		ContentMissing:   "missing",
		ContentEncoded:   "encoded",
		ContentRaw:       "raw",
		ContentSignedURL: "signed_url",
	} {
		if got := kind.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", kind, got, want)
		}
	}
}
