package client

import "github.com/rickgao/mcpbus/internal/envelope"

// Document is a reply reshaped for text ingestion pipelines.
type Document struct {
	PageContent string         `json:"page_content"`
	Metadata    map[string]any `json:"metadata"`
}

// NormalizeDocuments maps replies carrying "content" and "metadata" to
// Documents, one per reply and in order. Missing content becomes an empty
// string and missing metadata an empty map.
func NormalizeDocuments(bodies []envelope.Body) []Document {
	docs := make([]Document, 0, len(bodies))
	for _, b := range bodies {
		doc := Document{Metadata: map[string]any{}}

		switch c := b["content"].(type) {
		case string:
			doc.PageContent = c
		case []byte:
			doc.PageContent = string(c)
		}
		if md, ok := b["metadata"].(map[string]any); ok {
			doc.Metadata = md
		}

		docs = append(docs, doc)
	}
	return docs
}
