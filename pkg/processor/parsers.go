// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package processor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"

	"github.com/kadirpekel/corpus/pkg/kb"
)

// ParseResult is the outcome of native binary extraction.
type ParseResult struct {
	Content  string
	Type     kb.DocumentType
	Metadata map[string]any
}

// nativeParser extracts text from one binary format.
type nativeParser interface {
	CanParse(filePath string) bool
	Parse(ctx context.Context, filePath string) (*ParseResult, error)
	Extensions() []string
}

// ParserRegistry holds the native parsers for PDF, DOCX, and XLSX.
type ParserRegistry struct {
	parsers []nativeParser
}

// NewParserRegistry creates a registry with the built-in parsers.
func NewParserRegistry() *ParserRegistry {
	return &ParserRegistry{
		parsers: []nativeParser{&pdfParser{}, &officeParser{}},
	}
}

// CanParse reports whether any parser handles the file.
func (r *ParserRegistry) CanParse(filePath string) bool {
	return r.find(filePath) != nil
}

// ParseFile extracts a document from a binary file.
func (r *ParserRegistry) ParseFile(ctx context.Context, filePath string) (*kb.Document, error) {
	parser := r.find(filePath)
	if parser == nil {
		return nil, NewProcessingError("", "parse",
			fmt.Sprintf("no native parser for %s", filepath.Ext(filePath)), nil)
	}

	result, err := parser.Parse(ctx, filePath)
	if err != nil {
		return nil, NewProcessingError("", "parse", "native extraction failed", err)
	}

	doc := kb.NewDocument("", result.Content, result.Type)
	doc.Source = filePath
	doc.Metadata = result.Metadata
	return doc, nil
}

// Extensions returns all supported file extensions.
func (r *ParserRegistry) Extensions() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range r.parsers {
		for _, ext := range p.Extensions() {
			if !seen[ext] {
				seen[ext] = true
				out = append(out, ext)
			}
		}
	}
	return out
}

func (r *ParserRegistry) find(filePath string) nativeParser {
	for _, p := range r.parsers {
		if p.CanParse(filePath) {
			return p
		}
	}
	return nil
}

// pdfParser extracts plain text from PDF files page by page.
type pdfParser struct{}

func (p *pdfParser) CanParse(filePath string) bool {
	return strings.ToLower(filepath.Ext(filePath)) == ".pdf"
}

func (p *pdfParser) Extensions() []string { return []string{".pdf"} }

func (p *pdfParser) Parse(ctx context.Context, filePath string) (*ParseResult, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat PDF file: %w", err)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF file: %w", err)
	}
	defer file.Close()

	reader, err := pdf.NewReader(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to parse PDF: %w", err)
	}

	var parts []string
	totalPages := reader.NumPage()
	for pageNum := 1; pageNum <= totalPages; pageNum++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			parts = append(parts, fmt.Sprintf("--- Page %d (extraction failed: %v) ---", pageNum, err))
			continue
		}
		if strings.TrimSpace(text) != "" {
			parts = append(parts, fmt.Sprintf("--- Page %d ---\n%s", pageNum, text))
		}
	}

	content := strings.Join(parts, "\n\n")
	return &ParseResult{
		Content: content,
		Type:    kb.DocumentTypePDF,
		Metadata: map[string]any{
			"title":         filepath.Base(filePath),
			"pages":         totalPages,
			"file_size":     info.Size(),
			"file_modified": info.ModTime().Format(time.RFC3339),
		},
	}, nil
}

// officeParser extracts text from Word and Excel documents.
type officeParser struct{}

func (p *officeParser) CanParse(filePath string) bool {
	ext := strings.ToLower(filepath.Ext(filePath))
	return ext == ".docx" || ext == ".xlsx"
}

func (p *officeParser) Extensions() []string { return []string{".docx", ".xlsx"} }

func (p *officeParser) Parse(ctx context.Context, filePath string) (*ParseResult, error) {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".docx":
		return p.parseWord(filePath)
	case ".xlsx":
		return p.parseExcel(ctx, filePath)
	default:
		return nil, fmt.Errorf("unsupported office format: %s", filepath.Ext(filePath))
	}
}

func (p *officeParser) parseWord(filePath string) (*ParseResult, error) {
	doc, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Word document: %w", err)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()
	return &ParseResult{
		Content: content,
		Type:    kb.DocumentTypeDocx,
		Metadata: map[string]any{
			"title":      filepath.Base(filePath),
			"paragraphs": len(strings.Split(content, "\n\n")),
		},
	}, nil
}

func (p *officeParser) parseExcel(ctx context.Context, filePath string) (*ParseResult, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Excel document: %w", err)
	}
	defer f.Close()

	// Limit cells per sheet to avoid huge outputs.
	const maxCells = 1000

	var parts []string
	sheets := f.GetSheetList()
	for _, sheetName := range sheets {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		var sheetText strings.Builder
		sheetText.WriteString(fmt.Sprintf("--- Sheet: %s ---\n", sheetName))

		rows, err := f.GetRows(sheetName)
		if err != nil {
			sheetText.WriteString(fmt.Sprintf("Error reading sheet: %v\n", err))
			continue
		}

		cellCount := 0
		for rowIndex, row := range rows {
			if cellCount >= maxCells {
				sheetText.WriteString("... (truncated)\n")
				break
			}
			for colIndex, cell := range row {
				if cellCount >= maxCells {
					break
				}
				if text := strings.TrimSpace(cell); text != "" {
					sheetText.WriteString(fmt.Sprintf("%s%d: %s\n", columnLetter(colIndex), rowIndex+1, text))
					cellCount++
				}
			}
		}

		if text := strings.TrimSpace(sheetText.String()); text != "" {
			parts = append(parts, text)
		}
	}

	return &ParseResult{
		Content: strings.Join(parts, "\n\n"),
		Type:    kb.DocumentTypeDocx,
		Metadata: map[string]any{
			"title":  filepath.Base(filePath),
			"sheets": len(sheets),
		},
	}, nil
}

// columnLetter converts a 0-based column index to an Excel column letter
// (A, B, ..., Z, AA, AB, ...).
func columnLetter(index int) string {
	result := ""
	for {
		result = string(rune('A'+index%26)) + result
		index = index/26 - 1
		if index < 0 {
			break
		}
	}
	return result
}
