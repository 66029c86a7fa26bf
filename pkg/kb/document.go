// Package kb defines the core knowledge-base data model: documents, chunks,
// retrieval results, and citations. All pipeline packages operate on these
// types; they carry no behavior beyond construction and copying.
package kb

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DocumentType classifies document content for chunking and conversion.
type DocumentType string

const (
	DocumentTypeText     DocumentType = "text"
	DocumentTypeMarkdown DocumentType = "markdown"
	DocumentTypeHTML     DocumentType = "html"
	DocumentTypePDF      DocumentType = "pdf"
	DocumentTypeDocx     DocumentType = "docx"
	DocumentTypeCode     DocumentType = "code"
	DocumentTypeImage    DocumentType = "image"
	DocumentTypeAudio    DocumentType = "audio"
	DocumentTypeVideo    DocumentType = "video"
	DocumentTypeURL      DocumentType = "url"
	DocumentTypeUnknown  DocumentType = "unknown"
)

// ParseDocumentType converts a string to a DocumentType.
// Unrecognized values map to DocumentTypeUnknown.
func ParseDocumentType(s string) DocumentType {
	switch DocumentType(s) {
	case DocumentTypeText, DocumentTypeMarkdown, DocumentTypeHTML,
		DocumentTypePDF, DocumentTypeDocx, DocumentTypeCode,
		DocumentTypeImage, DocumentTypeAudio, DocumentTypeVideo,
		DocumentTypeURL:
		return DocumentType(s)
	default:
		return DocumentTypeUnknown
	}
}

// Document is a unit of ingested content.
//
// Documents are values: the pipeline never mutates a document after the
// collection layer creates it. Metadata values are restricted to the
// JSON-compatible union (string, number, bool, list, nested map); see
// IsIndexableValue.
type Document struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Type      DocumentType   `json:"type"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Source    string         `json:"source,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewDocument creates a document with a generated id when none is given.
func NewDocument(id, content string, docType DocumentType) *Document {
	if id == "" {
		id = uuid.NewString()
	}
	if docType == "" {
		docType = DocumentTypeUnknown
	}
	return &Document{
		ID:        id,
		Content:   content,
		Type:      docType,
		Metadata:  make(map[string]any),
		CreatedAt: time.Now(),
	}
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	out := *d
	out.Metadata = CloneMetadata(d.Metadata)
	return &out
}

// IsIndexableValue reports whether a metadata value can be used as a key in
// the metadata index. Only scalars qualify; lists and maps are stored but
// not indexed.
func IsIndexableValue(v any) bool {
	switch v.(type) {
	case string, bool,
		int, int32, int64,
		float32, float64:
		return true
	default:
		return false
	}
}

// StringifyValue renders a metadata value the way the JSON persistence layer
// does, so index keys are stable across save/load.
func StringifyValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		// JSON numbers decode as float64; keep integral values compact.
		if x == float64(int64(x)) {
			return fmt.Sprintf("%d", int64(x))
		}
		return fmt.Sprintf("%g", x)
	case float32:
		return StringifyValue(float64(x))
	default:
		return fmt.Sprint(x)
	}
}

// CloneMetadata returns a copy of a metadata map. Nested maps and lists are
// copied one level deep, which is sufficient for the bounded value union.
func CloneMetadata(md map[string]any) map[string]any {
	if md == nil {
		return nil
	}
	out := make(map[string]any, len(md))
	for k, v := range md {
		switch x := v.(type) {
		case map[string]any:
			nested := make(map[string]any, len(x))
			for nk, nv := range x {
				nested[nk] = nv
			}
			out[k] = nested
		case []any:
			list := make([]any, len(x))
			copy(list, x)
			out[k] = list
		default:
			out[k] = v
		}
	}
	return out
}

// MergeMetadata merges src into dst without mutating either; on key
// collision src wins. A nil dst is treated as empty.
func MergeMetadata(dst, src map[string]any) map[string]any {
	out := CloneMetadata(dst)
	if out == nil {
		out = make(map[string]any, len(src))
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}
