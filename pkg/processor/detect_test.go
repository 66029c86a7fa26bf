package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kadirpekel/corpus/pkg/kb"
)

func TestDetectType_MIMEWins(t *testing.T) {
	// A MIME type takes priority over a conflicting extension.
	got := DetectType("text/html; charset=utf-8", "notes.md", "# heading")
	assert.Equal(t, kb.DocumentTypeHTML, got)
}

func TestDetectType_Extension(t *testing.T) {
	tests := []struct {
		fileName string
		want     kb.DocumentType
	}{
		{"report.pdf", kb.DocumentTypePDF},
		{"letter.docx", kb.DocumentTypeDocx},
		{"README.md", kb.DocumentTypeMarkdown},
		{"index.html", kb.DocumentTypeHTML},
		{"main.go", kb.DocumentTypeCode},
		{"photo.JPG", kb.DocumentTypeImage},
		{"notes.txt", kb.DocumentTypeText},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectType("", tt.fileName, ""), tt.fileName)
	}
}

func TestDetectType_ContentSniffing(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    kb.DocumentType
	}{
		{"html doctype", "<!DOCTYPE html>\n<html><body></body></html>", kb.DocumentTypeHTML},
		{"markdown heading", "# Title\n\nSome prose follows.", kb.DocumentTypeMarkdown},
		{"code", "package main\n\nfunc main() {\n}", kb.DocumentTypeCode},
		{"bare url", "https://example.com/page", kb.DocumentTypeURL},
		{"plain prose", "Just a plain sentence without structure", kb.DocumentTypeText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectType("", "", tt.content))
		})
	}
}

func TestConvert_MarkdownToText(t *testing.T) {
	doc := kb.NewDocument("d", "# Title\n\nSome **bold** and a [link](https://example.com).", kb.DocumentTypeMarkdown)
	out := Convert(doc, kb.DocumentTypeText)

	assert.Equal(t, kb.DocumentTypeText, out.Type)
	assert.Equal(t, "Title\n\nSome bold and a link.", out.Content)
	// The original document is untouched.
	assert.Equal(t, kb.DocumentTypeMarkdown, doc.Type)
}

func TestConvert_HTMLToText(t *testing.T) {
	doc := kb.NewDocument("d", "<html><body><p>Hello &amp; welcome</p><script>alert(1)</script></body></html>", kb.DocumentTypeHTML)
	out := Convert(doc, kb.DocumentTypeText)

	assert.Equal(t, kb.DocumentTypeText, out.Type)
	assert.Equal(t, "Hello & welcome", out.Content)
}

func TestConvert_HTMLToMarkdown(t *testing.T) {
	doc := kb.NewDocument("d", `<h2>Section</h2><p>See <a href="https://example.com">the docs</a> for <strong>details</strong>.</p>`, kb.DocumentTypeHTML)
	out := Convert(doc, kb.DocumentTypeMarkdown)

	assert.Equal(t, kb.DocumentTypeMarkdown, out.Type)
	assert.Contains(t, out.Content, "## Section")
	assert.Contains(t, out.Content, "[the docs](https://example.com)")
	assert.Contains(t, out.Content, "**details**")
}

func TestConvert_UnsupportedReturnsInputUnchanged(t *testing.T) {
	doc := kb.NewDocument("d", "plain text", kb.DocumentTypeText)
	out := Convert(doc, kb.DocumentTypeMarkdown)
	assert.Same(t, doc, out)
}

func TestParserRegistry_Extensions(t *testing.T) {
	r := NewParserRegistry()
	assert.ElementsMatch(t, []string{".pdf", ".docx", ".xlsx"}, r.Extensions())
	assert.True(t, r.CanParse("/tmp/report.PDF"))
	assert.False(t, r.CanParse("/tmp/notes.txt"))
}
