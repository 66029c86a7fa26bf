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

// RecursiveChunker splits at the highest-priority separator present in the
// text, packs the resulting parts greedily up to the chunk size, and retains
// the trailing overlap as the start of the next chunk. Parts that are
// themselves oversized are split again with the remaining separators; when
// no separator yields progress the text is hard-split at the chunk size.
type RecursiveChunker struct {
	config Config
}

// NewRecursiveChunker creates a recursive chunker.
func NewRecursiveChunker(cfg Config) *RecursiveChunker {
	cfg.SetDefaults()
	return &RecursiveChunker{config: cfg}
}

// Chunk splits content recursively.
func (c *RecursiveChunker) Chunk(text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return c.split(text, 0, c.config.Separators), nil
}

// split chunks text (a slice of the original input starting at offset base)
// using the given separator priority list. Returned offsets are absolute.
func (c *RecursiveChunker) split(text string, base int, seps []string) []Chunk {
	size := c.config.Size
	overlap := c.config.effectiveOverlap()

	if len(text) <= size {
		return emitAt(nil, text, base, 0, len(text))
	}

	sep, rest := pickSeparator(text, seps)
	if sep == "" {
		return c.hardSplit(text, base)
	}

	var chunks []Chunk
	parts := splitOffsets(text, sep)

	curStart := parts[0].start
	lastEnd := curStart

	for _, p := range parts {
		partLen := p.end - p.start

		// Oversized part: flush the accumulation and recurse into the part
		// with the remaining separators.
		if partLen > size {
			if lastEnd > curStart {
				chunks = emitAt(chunks, text, base, curStart, lastEnd)
			}
			chunks = append(chunks, c.split(text[p.start:p.end], base+p.start, rest)...)
			curStart = p.end - overlap
			if curStart < p.start {
				curStart = p.start
			}
			lastEnd = p.end
			continue
		}

		// Adding this part would exceed the chunk size: emit what we have
		// and retain the trailing overlap. The next start advances by at
		// least size-overlap so the emitted chunk count stays bounded by
		// ceil(len/(size-overlap))+1.
		if lastEnd > curStart && p.end-curStart > size {
			chunks = emitAt(chunks, text, base, curStart, lastEnd)
			curStart = advanceStart(curStart, lastEnd, size, overlap)
		}

		lastEnd = p.end
	}

	if lastEnd > curStart {
		chunks = emitAt(chunks, text, base, curStart, lastEnd)
	}
	return chunks
}

// hardSplit emits fixed windows when no separator can make progress.
func (c *RecursiveChunker) hardSplit(text string, base int) []Chunk {
	size := c.config.Size
	step := size - c.config.effectiveOverlap()
	if step < 1 {
		step = 1
	}

	var chunks []Chunk
	for s := 0; s < len(text); s += step {
		e := s + size
		if e > len(text) {
			e = len(text)
		}
		chunks = emitAt(chunks, text, base, s, e)
		if e == len(text) {
			break
		}
	}
	return chunks
}

func (c *RecursiveChunker) Strategy() Strategy { return StrategyRecursive }

func (c *RecursiveChunker) Config() Config { return c.config }

// Ensure RecursiveChunker implements Chunker.
var _ Chunker = (*RecursiveChunker)(nil)

// span is a half-open [start, end) range into a text slice.
type span struct {
	start int
	end   int
}

// pickSeparator returns the first separator present in the text and the
// lower-priority remainder of the list. The empty separator means hard-split.
func pickSeparator(text string, seps []string) (string, []string) {
	for i, sep := range seps {
		if sep == "" {
			return "", nil
		}
		if strings.Contains(text, sep) {
			return sep, seps[i+1:]
		}
	}
	return "", nil
}

// splitOffsets splits text by sep, returning the spans of the parts without
// the separator. Empty parts (consecutive separators) are preserved as
// zero-length spans and skipped by emit.
func splitOffsets(text, sep string) []span {
	var parts []span
	start := 0
	for {
		idx := strings.Index(text[start:], sep)
		if idx < 0 {
			parts = append(parts, span{start, len(text)})
			return parts
		}
		parts = append(parts, span{start, start + idx})
		start = start + idx + len(sep)
	}
}

// advanceStart computes the start of the next chunk after emitting
// [curStart, lastEnd): lastEnd minus the overlap, but never less than
// curStart+(size-overlap) and never beyond lastEnd, so every chunk advances
// and no text is skipped.
func advanceStart(curStart, lastEnd, size, overlap int) int {
	next := lastEnd - overlap
	if min := curStart + (size - overlap); next < min {
		next = min
	}
	if next > lastEnd {
		next = lastEnd
	}
	if next <= curStart {
		next = curStart + 1
	}
	return next
}

// emitAt is emit with a base offset: start/end are relative to text, the
// recorded offsets are absolute.
func emitAt(chunks []Chunk, text string, base, start, end int) []Chunk {
	if start >= end {
		return chunks
	}
	slice := text[start:end]
	if strings.TrimSpace(slice) == "" {
		return chunks
	}
	return append(chunks, Chunk{Text: slice, Start: base + start, End: base + end})
}
