package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/corpus/pkg/kb"
)

func TestExtractDocument_Stats(t *testing.T) {
	e := NewExtractor(Config{ExtractMetadata: true})
	doc := kb.NewDocument("doc-1", "First paragraph here.\n\nSecond paragraph follows.", kb.DocumentTypeText)

	meta := e.ExtractDocument(doc)
	require.NotNil(t, meta)
	assert.Equal(t, len(doc.Content), meta["char_count"])
	assert.Equal(t, 6, meta["word_count"])
	assert.Equal(t, 3, meta["line_count"])
	assert.Equal(t, 2, meta["paragraph_count"])
}

func TestExtractDocument_DisabledReturnsNil(t *testing.T) {
	e := NewExtractor(Config{})
	doc := kb.NewDocument("doc-1", "some content", kb.DocumentTypeText)
	assert.Nil(t, e.ExtractDocument(doc))
	assert.Nil(t, e.ExtractChunk("some content"))
}

func TestExtractChunk_Stats(t *testing.T) {
	e := NewExtractor(Config{ExtractMetadata: true})
	meta := e.ExtractChunk("three short words")
	require.NotNil(t, meta)
	assert.Equal(t, 17, meta["chunk_char_count"])
	assert.Equal(t, 3, meta["chunk_word_count"])
}

func TestAutomatic_DetectsCodeAndURLs(t *testing.T) {
	e := NewExtractor(Config{GenerateAutomatic: true, MaxKeywords: 5})

	meta := e.Automatic("See https://example.com for details.\n\nfunc main() {\n}")
	assert.Equal(t, true, meta["has_code"])
	assert.Equal(t, true, meta["has_urls"])

	meta = e.Automatic("Plain prose without anything special in it.")
	assert.Equal(t, false, meta["has_code"])
	assert.Equal(t, false, meta["has_urls"])
}

func TestAutomatic_KeywordsAreDeterministic(t *testing.T) {
	e := NewExtractor(Config{GenerateAutomatic: true, MaxKeywords: 3})
	content := "database database database index index query"

	first := e.Automatic(content)["keywords"].([]string)
	second := e.Automatic(content)["keywords"].([]string)
	assert.Equal(t, []string{"database", "index", "query"}, first)
	assert.Equal(t, first, second)
}

func TestPrepareForIndex_EmitsVariants(t *testing.T) {
	e := NewExtractor(Config{IndexMetadata: true})
	meta := map[string]any{
		"title": "Annual Report 2024",
		"pages": 42,
	}

	out := e.PrepareForIndex(meta)
	assert.Equal(t, "Annual Report 2024", out["title"])
	assert.Equal(t, "annual report 2024", out["title_lower"])
	assert.Equal(t, []string{"annual", "report", "2024"}, out["title_tokens"])
	assert.Equal(t, 42, out["pages"])
	assert.NotContains(t, out, "pages_lower")
}

func TestPrepareForIndex_DisabledPassesThrough(t *testing.T) {
	e := NewExtractor(Config{})
	meta := map[string]any{"title": "Something"}
	out := e.PrepareForIndex(meta)
	assert.Equal(t, meta, out)
	assert.NotContains(t, out, "title_lower")
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"hello", "world", "42"}, Tokenize("Hello, World! 42 x"))
	assert.Empty(t, Tokenize("  . , !  "))
}
