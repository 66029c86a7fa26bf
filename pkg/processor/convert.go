package processor

import (
	"html"
	"log/slog"
	"regexp"
	"strings"

	"github.com/kadirpekel/corpus/pkg/kb"
)

// Convert downgrades a document to a simpler type. Supported conversions:
// markdown→text, html→text, html→markdown. Anything else returns the input
// document unchanged with a warning.
func Convert(doc *kb.Document, target kb.DocumentType) *kb.Document {
	if doc.Type == target {
		return doc
	}

	var content string
	switch {
	case doc.Type == kb.DocumentTypeMarkdown && target == kb.DocumentTypeText:
		content = MarkdownToText(doc.Content)
	case doc.Type == kb.DocumentTypeHTML && target == kb.DocumentTypeText:
		content = HTMLToText(doc.Content)
	case doc.Type == kb.DocumentTypeHTML && target == kb.DocumentTypeMarkdown:
		content = HTMLToMarkdown(doc.Content)
	default:
		slog.Warn("unsupported document conversion",
			"document_id", doc.ID, "from", doc.Type, "to", target)
		return doc
	}

	out := doc.Clone()
	out.Content = content
	out.Type = target
	return out
}

var (
	mdHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
	mdBoldItalic = regexp.MustCompile(`(\*{1,3}|_{1,3})([^*_]+)(\*{1,3}|_{1,3})`)
	mdCodeFence  = regexp.MustCompile("(?s)```[a-zA-Z0-9]*\n?(.*?)```")
	mdInlineCode = regexp.MustCompile("`([^`]+)`")
	mdLink       = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	mdImage      = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	mdListMarker = regexp.MustCompile(`(?m)^\s*([-*+]|\d+\.)\s+`)
	mdBlockquote = regexp.MustCompile(`(?m)^>\s?`)
	mdHorizRule  = regexp.MustCompile(`(?m)^(\s*[-*_]){3,}\s*$`)
)

// MarkdownToText strips markdown formatting, keeping the visible text.
func MarkdownToText(md string) string {
	text := mdCodeFence.ReplaceAllString(md, "$1")
	text = mdImage.ReplaceAllString(text, "$1")
	text = mdLink.ReplaceAllString(text, "$1")
	text = mdHeading.ReplaceAllString(text, "")
	text = mdBoldItalic.ReplaceAllString(text, "$2")
	text = mdInlineCode.ReplaceAllString(text, "$1")
	text = mdListMarker.ReplaceAllString(text, "")
	text = mdBlockquote.ReplaceAllString(text, "")
	text = mdHorizRule.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

var (
	htmlScript  = regexp.MustCompile(`(?is)<(script|style)[^>]*>.*?</(script|style)>`)
	htmlBreak   = regexp.MustCompile(`(?i)<br\s*/?>`)
	htmlBlock   = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote|pre)>`)
	htmlTag     = regexp.MustCompile(`<[^>]+>`)
	blankRun    = regexp.MustCompile(`\n{3,}`)
	spaceRun    = regexp.MustCompile(`[ \t]+`)
	htmlHeading = regexp.MustCompile(`(?is)<h([1-6])[^>]*>(.*?)</h[1-6]>`)
	htmlAnchor  = regexp.MustCompile(`(?is)<a\s+[^>]*href="([^"]*)"[^>]*>(.*?)</a>`)
	htmlStrong  = regexp.MustCompile(`(?is)<(strong|b)[^>]*>(.*?)</(strong|b)>`)
	htmlEm      = regexp.MustCompile(`(?is)<(em|i)[^>]*>(.*?)</(em|i)>`)
	htmlListEl  = regexp.MustCompile(`(?is)<li[^>]*>(.*?)</li>`)
	htmlCode    = regexp.MustCompile(`(?is)<code[^>]*>(.*?)</code>`)
)

// HTMLToText strips tags and decodes entities.
func HTMLToText(h string) string {
	text := htmlScript.ReplaceAllString(h, "")
	text = htmlBreak.ReplaceAllString(text, "\n")
	text = htmlBlock.ReplaceAllString(text, "$0\n\n")
	text = htmlTag.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = spaceRun.ReplaceAllString(text, " ")
	text = blankRun.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// HTMLToMarkdown converts common HTML structures to their markdown
// equivalents and strips the rest.
func HTMLToMarkdown(h string) string {
	text := htmlScript.ReplaceAllString(h, "")
	text = htmlHeading.ReplaceAllStringFunc(text, func(m string) string {
		parts := htmlHeading.FindStringSubmatch(m)
		level := int(parts[1][0] - '0')
		return "\n" + strings.Repeat("#", level) + " " + strings.TrimSpace(parts[2]) + "\n"
	})
	text = htmlAnchor.ReplaceAllString(text, "[$2]($1)")
	text = htmlStrong.ReplaceAllString(text, "**$2**")
	text = htmlEm.ReplaceAllString(text, "*$2*")
	text = htmlCode.ReplaceAllString(text, "`$1`")
	text = htmlListEl.ReplaceAllString(text, "- $1\n")
	text = htmlBreak.ReplaceAllString(text, "\n")
	text = htmlBlock.ReplaceAllString(text, "$0\n\n")
	text = htmlTag.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = blankRun.ReplaceAllString(text, "\n\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
