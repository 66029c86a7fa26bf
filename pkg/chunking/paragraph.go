// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chunking

import "strings"

// ParagraphChunker splits on double-newlines and emits one chunk per
// paragraph. Paragraphs larger than the chunk size are delegated to the
// recursive strategy with offsets preserved.
type ParagraphChunker struct {
	config    Config
	recursive *RecursiveChunker
}

// NewParagraphChunker creates a paragraph chunker.
func NewParagraphChunker(cfg Config) *ParagraphChunker {
	cfg.SetDefaults()
	return &ParagraphChunker{
		config:    cfg,
		recursive: NewRecursiveChunker(cfg),
	}
}

// Chunk splits content into per-paragraph chunks.
func (c *ParagraphChunker) Chunk(text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var chunks []Chunk
	for _, p := range splitOffsets(text, "\n\n") {
		if p.end-p.start > c.config.Size {
			chunks = append(chunks, c.recursive.split(text[p.start:p.end], p.start, c.config.Separators)...)
			continue
		}
		chunks = emitAt(chunks, text, 0, p.start, p.end)
	}
	return chunks, nil
}

func (c *ParagraphChunker) Strategy() Strategy { return StrategyParagraph }

func (c *ParagraphChunker) Config() Config { return c.config }

// Ensure ParagraphChunker implements Chunker.
var _ Chunker = (*ParagraphChunker)(nil)
