package processor

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kadirpekel/corpus/pkg/kb"
)

// DetectType classifies content: MIME type first, then file extension, then
// content sniffing. Unknown inputs default to text.
func DetectType(mimeType, fileName, content string) kb.DocumentType {
	if t := typeFromMIME(mimeType); t != kb.DocumentTypeUnknown {
		return t
	}
	if t := typeFromExtension(fileName); t != kb.DocumentTypeUnknown {
		return t
	}
	if t := sniffContent(content); t != kb.DocumentTypeUnknown {
		return t
	}
	return kb.DocumentTypeText
}

func typeFromMIME(mimeType string) kb.DocumentType {
	// Strip parameters like "; charset=utf-8".
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "text/plain":
		return kb.DocumentTypeText
	case "text/markdown":
		return kb.DocumentTypeMarkdown
	case "text/html", "application/xhtml+xml":
		return kb.DocumentTypeHTML
	case "application/pdf":
		return kb.DocumentTypePDF
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/msword":
		return kb.DocumentTypeDocx
	}
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return kb.DocumentTypeImage
	case strings.HasPrefix(mimeType, "audio/"):
		return kb.DocumentTypeAudio
	case strings.HasPrefix(mimeType, "video/"):
		return kb.DocumentTypeVideo
	}
	return kb.DocumentTypeUnknown
}

var codeExtensions = map[string]bool{
	".go": true, ".py": true, ".js": true, ".ts": true, ".java": true,
	".c": true, ".h": true, ".cpp": true, ".rs": true, ".rb": true,
	".sh": true, ".sql": true, ".yaml": true, ".yml": true, ".json": true,
	".toml": true, ".proto": true,
}

func typeFromExtension(fileName string) kb.DocumentType {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".txt", ".text", ".log":
		return kb.DocumentTypeText
	case ".md", ".markdown", ".mdx":
		return kb.DocumentTypeMarkdown
	case ".html", ".htm", ".xhtml":
		return kb.DocumentTypeHTML
	case ".pdf":
		return kb.DocumentTypePDF
	case ".docx", ".doc":
		return kb.DocumentTypeDocx
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg":
		return kb.DocumentTypeImage
	case ".mp3", ".wav", ".flac", ".ogg":
		return kb.DocumentTypeAudio
	case ".mp4", ".mkv", ".avi", ".webm":
		return kb.DocumentTypeVideo
	}
	if codeExtensions[ext] {
		return kb.DocumentTypeCode
	}
	return kb.DocumentTypeUnknown
}

var (
	htmlSignature     = regexp.MustCompile(`(?i)^\s*(<!doctype\s+html|<html[\s>])`)
	markdownSignature = regexp.MustCompile(`(?m)^#{1,6}\s+\S|^\s*[-*]\s+\S|\[[^\]]+\]\([^)]+\)`)
	codeSignature     = regexp.MustCompile(`(?m)^\s*(func|def|class|package|import|#include)\b|[;{}]\s*$`)
	urlSignature      = regexp.MustCompile(`^\s*https?://\S+\s*$`)
)

func sniffContent(content string) kb.DocumentType {
	sample := content
	if len(sample) > 2048 {
		sample = sample[:2048]
	}
	switch {
	case urlSignature.MatchString(sample):
		return kb.DocumentTypeURL
	case htmlSignature.MatchString(sample):
		return kb.DocumentTypeHTML
	case markdownSignature.MatchString(sample):
		return kb.DocumentTypeMarkdown
	case codeSignature.MatchString(sample):
		return kb.DocumentTypeCode
	}
	return kb.DocumentTypeUnknown
}
