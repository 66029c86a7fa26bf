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

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SentenceChunker packs whole sentences up to the chunk size. The overlap
// between consecutive chunks respects sentence boundaries when a whole
// sentence fits inside the overlap budget; otherwise it falls back to plain
// character overlap.
type SentenceChunker struct {
	config Config
}

// NewSentenceChunker creates a sentence chunker.
func NewSentenceChunker(cfg Config) *SentenceChunker {
	cfg.SetDefaults()
	return &SentenceChunker{config: cfg}
}

// Chunk splits content into sentence-packed chunks.
func (c *SentenceChunker) Chunk(text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	size := c.config.Size
	overlap := c.config.effectiveOverlap()
	sentences := splitSentences(text)

	var chunks []Chunk
	curStart := 0
	lastEnd := 0

	flush := func() {
		chunks = emitAt(chunks, text, 0, curStart, lastEnd)
		next := sentenceOverlapStart(sentences, curStart, lastEnd, overlap)
		// Keep the minimum advance so the chunk count stays bounded even
		// when sentences pack well below the target size.
		if min := curStart + (size - overlap); next < min {
			next = min
		}
		if next > lastEnd {
			next = lastEnd
		}
		if next <= curStart {
			next = curStart + 1
		}
		curStart = next
	}

	for _, s := range sentences {
		// A single sentence longer than the chunk size is hard-split so the
		// chunker keeps its size bound.
		if s.end-s.start > size {
			if lastEnd > curStart {
				flush()
			}
			for ws := s.start; ws < s.end; {
				we := ws + size
				if we > s.end {
					we = s.end
				}
				chunks = emitAt(chunks, text, 0, ws, we)
				if we == s.end {
					break
				}
				ws = we - overlap
				if ws <= we-size {
					ws = we - size + 1
				}
			}
			curStart = s.end - overlap
			if curStart < s.start {
				curStart = s.start
			}
			lastEnd = s.end
			continue
		}

		if lastEnd > curStart && s.end-curStart > size {
			flush()
		}
		lastEnd = s.end
	}

	if lastEnd > curStart {
		chunks = emitAt(chunks, text, 0, curStart, lastEnd)
	}
	return chunks, nil
}

func (c *SentenceChunker) Strategy() Strategy { return StrategySentence }

func (c *SentenceChunker) Config() Config { return c.config }

// Ensure SentenceChunker implements Chunker.
var _ Chunker = (*SentenceChunker)(nil)

// sentenceOverlapStart finds the start offset of the overlap region ending
// at end: the earliest sentence start within the overlap budget, or plain
// character overlap when no sentence boundary fits.
func sentenceOverlapStart(sentences []span, chunkStart, end, overlap int) int {
	if overlap <= 0 {
		return end
	}

	best := -1
	for _, s := range sentences {
		if s.start <= chunkStart || s.start >= end {
			continue
		}
		if end-s.start <= overlap {
			best = s.start
			break // sentences are ordered; first hit is the earliest
		}
	}
	if best >= 0 {
		return best
	}

	// Fall back to character overlap.
	start := end - overlap
	if start < chunkStart {
		start = chunkStart
	}
	return start
}

// splitSentences partitions text into sentence spans. A sentence ends at a
// run of ASCII terminators (.!?) followed by whitespace, or at a CJK
// fullwidth terminator immediately. Trailing whitespace belongs to the
// sentence that precedes it, so spans tile the whole input.
func splitSentences(text string) []span {
	var spans []span
	start := 0
	i := 0
	for i < len(text) {
		r, width := utf8.DecodeRuneInString(text[i:])

		if isCJKTerminator(r) {
			end := i + width
			// Absorb trailing whitespace into this sentence.
			end += leadingSpaceLen(text[end:])
			spans = append(spans, span{start, end})
			start = end
			i = end
			continue
		}

		if r == '.' || r == '!' || r == '?' {
			// Absorb a run of terminators (e.g. "?!", "...").
			end := i + width
			for end < len(text) {
				nr, nw := utf8.DecodeRuneInString(text[end:])
				if nr == '.' || nr == '!' || nr == '?' {
					end += nw
					continue
				}
				break
			}
			ws := leadingSpaceLen(text[end:])
			if ws > 0 || end == len(text) {
				end += ws
				spans = append(spans, span{start, end})
				start = end
				i = end
				continue
			}
		}

		i += width
	}

	if start < len(text) {
		spans = append(spans, span{start, len(text)})
	}
	return spans
}

// leadingSpaceLen returns the byte length of the leading whitespace run.
func leadingSpaceLen(s string) int {
	n := 0
	for n < len(s) {
		r, width := utf8.DecodeRuneInString(s[n:])
		if !unicode.IsSpace(r) {
			break
		}
		n += width
	}
	return n
}
