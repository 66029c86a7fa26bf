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

// FixedChunker emits contiguous windows of the configured size, stepping by
// size minus overlap. With RespectSentenceBoundary it searches back a short
// distance for a sentence terminator or space to shift the split.
type FixedChunker struct {
	config Config
}

// NewFixedChunker creates a fixed-window chunker.
func NewFixedChunker(cfg Config) *FixedChunker {
	cfg.SetDefaults()
	return &FixedChunker{config: cfg}
}

// Chunk splits content into fixed windows.
func (c *FixedChunker) Chunk(text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	size := c.config.Size
	overlap := c.config.effectiveOverlap()

	var chunks []Chunk
	s := 0
	for s < len(text) {
		e := s + size
		if e >= len(text) {
			chunks = emitAt(chunks, text, 0, s, len(text))
			break
		}

		if c.config.RespectSentenceBoundary {
			if shifted := c.boundaryShift(text, s, e); shifted > s {
				e = shifted
			}
		}

		chunks = emitAt(chunks, text, 0, s, e)

		next := e - overlap
		if next <= s {
			next = s + 1
		}
		s = next
	}
	return chunks, nil
}

// boundaryShift searches back from the split point for a sentence terminator
// or space, within min(50, size/10) characters. Returns the shifted end, or
// the original end when no boundary is found (the hard split stands).
func (c *FixedChunker) boundaryShift(text string, start, end int) int {
	window := 50
	if limit := c.config.Size / 10; limit < window {
		window = limit
	}

	lowest := end - window
	if lowest <= start {
		lowest = start + 1
	}

	// Prefer a terminator; a space is the fallback.
	spaceAt := -1
	for i := end - 1; i >= lowest; i-- {
		ch := text[i]
		if ch == '.' || ch == '!' || ch == '?' {
			return i + 1 // split after the terminator
		}
		if spaceAt < 0 && (ch == ' ' || ch == '\n' || ch == '\t') {
			spaceAt = i + 1
		}
	}
	if spaceAt > start {
		return spaceAt
	}
	return end
}

func (c *FixedChunker) Strategy() Strategy { return StrategyFixed }

func (c *FixedChunker) Config() Config { return c.config }

// Ensure FixedChunker implements Chunker.
var _ Chunker = (*FixedChunker)(nil)
