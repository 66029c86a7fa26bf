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

// Package metadata derives structural and statistical metadata from
// documents and chunks, and prepares metadata fields for indexing.
package metadata

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/kadirpekel/corpus/pkg/kb"
)

// Config controls which extraction passes run.
type Config struct {
	// ExtractMetadata enables the document/chunk statistics pass.
	ExtractMetadata bool `yaml:"extract_metadata" mapstructure:"extract_metadata"`

	// GenerateAutomatic enables the automatic pass (keywords, content hints).
	GenerateAutomatic bool `yaml:"generate_automatic_metadata" mapstructure:"generate_automatic_metadata"`

	// IndexMetadata enables lowercase/normalized/tokenized variants of
	// string fields for filtered retrieval.
	IndexMetadata bool `yaml:"index_metadata" mapstructure:"index_metadata"`

	// MaxKeywords bounds the automatic keyword list.
	MaxKeywords int `yaml:"max_keywords" mapstructure:"max_keywords"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.MaxKeywords <= 0 {
		c.MaxKeywords = 10
	}
}

// Extractor derives metadata per document and per chunk.
type Extractor struct {
	config Config
}

// NewExtractor creates an extractor.
func NewExtractor(cfg Config) *Extractor {
	cfg.SetDefaults()
	return &Extractor{config: cfg}
}

// Config returns the extractor configuration.
func (e *Extractor) Config() Config { return e.config }

// ExtractDocument returns statistical metadata for a whole document.
// Existing document metadata is never overwritten by these keys; callers
// merge with document metadata winning on collision.
func (e *Extractor) ExtractDocument(doc *kb.Document) map[string]any {
	if !e.config.ExtractMetadata {
		return nil
	}
	content := doc.Content
	meta := map[string]any{
		"char_count":      len(content),
		"word_count":      len(strings.Fields(content)),
		"line_count":      countLines(content),
		"paragraph_count": countParagraphs(content),
	}
	if e.config.GenerateAutomatic {
		for k, v := range e.Automatic(content) {
			meta[k] = v
		}
	}
	return meta
}

// ExtractChunk returns per-chunk statistics for a fragment's text.
func (e *Extractor) ExtractChunk(text string) map[string]any {
	if !e.config.ExtractMetadata {
		return nil
	}
	return map[string]any{
		"chunk_char_count": len(text),
		"chunk_word_count": len(strings.Fields(text)),
	}
}

// Automatic derives content hints without any external model: top keywords
// by term frequency and boolean signals for embedded code and URLs.
func (e *Extractor) Automatic(content string) map[string]any {
	meta := map[string]any{
		"has_code": codePattern.MatchString(content),
		"has_urls": urlPattern.MatchString(content),
	}
	if kw := topKeywords(content, e.config.MaxKeywords); len(kw) > 0 {
		meta["keywords"] = kw
	}
	return meta
}

// PrepareForIndex emits index variants for every string field: a lowercase
// copy under "<key>_lower" and a token list under "<key>_tokens". The
// original fields are preserved unchanged.
func (e *Extractor) PrepareForIndex(meta map[string]any) map[string]any {
	if !e.config.IndexMetadata || meta == nil {
		return meta
	}
	out := make(map[string]any, len(meta)*2)
	for k, v := range meta {
		out[k] = v
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		lower := strings.ToLower(s)
		out[k+"_lower"] = lower
		if tokens := Tokenize(lower); len(tokens) > 0 {
			out[k+"_tokens"] = tokens
		}
	}
	return out
}

var (
	codePattern = regexp.MustCompile("(?m)(```|^\\s{4}\\S|\\bfunc\\s+\\w+\\s*\\(|\\bdef\\s+\\w+\\s*\\(|\\bclass\\s+\\w+|[;{}]\\s*$)")
	urlPattern  = regexp.MustCompile(`https?://\S+`)
)

// Tokenize lowercases and splits on non-alphanumeric runes, dropping
// single-character tokens.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) > 1 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// topKeywords returns up to n tokens ordered by descending frequency, ties
// broken alphabetically so the result is deterministic.
func topKeywords(content string, n int) []string {
	freq := make(map[string]int)
	for _, tok := range Tokenize(content) {
		if stopwords[tok] {
			continue
		}
		freq[tok]++
	}
	if len(freq) == 0 {
		return nil
	}

	terms := make([]string, 0, len(freq))
	for t := range freq {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > n {
		terms = terms[:n]
	}
	return terms
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n") + 1
	if strings.HasSuffix(s, "\n") {
		n--
	}
	return n
}

func countParagraphs(s string) int {
	n := 0
	for _, p := range strings.Split(s, "\n\n") {
		if strings.TrimSpace(p) != "" {
			n++
		}
	}
	return n
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true,
	"this": true, "that": true, "with": true, "have": true, "from": true,
	"they": true, "will": true, "would": true, "there": true, "their": true,
	"what": true, "about": true, "which": true, "when": true, "into": true,
	"than": true, "then": true, "them": true, "these": true, "some": true,
	"its": true, "also": true, "been": true, "were": true, "has": true,
}
