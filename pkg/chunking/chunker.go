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

// Package chunking splits document content into positioned, size-bounded
// chunks. Four strategies are provided: recursive, sentence, paragraph,
// and fixed.
package chunking

import (
	"fmt"
	"log/slog"
)

// Chunk is a slice of the input with its character offsets.
//
// Text always equals the input's [Start:End) slice; offsets are half-open.
type Chunk struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Strategy identifies a chunking strategy.
type Strategy string

const (
	// StrategyRecursive tries separators in priority order and packs the
	// resulting parts greedily. The default and the fallback for unknown
	// strategy names.
	StrategyRecursive Strategy = "recursive"

	// StrategySentence packs whole sentences up to the chunk size.
	StrategySentence Strategy = "sentence"

	// StrategyParagraph emits one chunk per double-newline paragraph,
	// delegating oversized paragraphs to the recursive strategy.
	StrategyParagraph Strategy = "paragraph"

	// StrategyFixed emits fixed-size character windows, optionally shifted
	// back to the nearest sentence boundary.
	StrategyFixed Strategy = "fixed"
)

// Chunker splits content into chunks.
//
// Implementations guarantee:
//   - each chunk's Text equals the input slice at [Start:End)
//   - empty or whitespace-only input yields no chunks
//   - every emitted chunk is non-empty after trimming
//   - the chunker always advances, even when overlap is misconfigured
type Chunker interface {
	Chunk(text string) ([]Chunk, error)

	Strategy() Strategy

	Config() Config
}

// Config configures chunking behavior.
type Config struct {
	// Strategy selects the chunking strategy. Default: "recursive".
	Strategy Strategy `yaml:"strategy,omitempty" mapstructure:"strategy"`

	// Size is the target chunk size in characters. Default: 1000.
	Size int `yaml:"chunk_size,omitempty" mapstructure:"chunk_size"`

	// Overlap is the overlap between consecutive chunks in characters.
	// Default: 200. Values >= Size are treated as Size-1.
	Overlap int `yaml:"chunk_overlap,omitempty" mapstructure:"chunk_overlap"`

	// Separators is the priority-ordered separator list for the recursive
	// strategy. Default: ["\n\n", "\n", " ", ""].
	Separators []string `yaml:"separators,omitempty" mapstructure:"separators"`

	// RespectSentenceBoundary lets the fixed strategy shift a split back to
	// a sentence terminator or space.
	RespectSentenceBoundary bool `yaml:"respect_sentence_boundary,omitempty" mapstructure:"respect_sentence_boundary"`
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Strategy:   StrategyRecursive,
		Size:       1000,
		Overlap:    200,
		Separators: []string{"\n\n", "\n", " ", ""},
	}
}

// SetDefaults applies default values in place.
func (c *Config) SetDefaults() {
	if c.Strategy == "" {
		c.Strategy = StrategyRecursive
	}
	if c.Size <= 0 {
		c.Size = 1000
	}
	if c.Overlap < 0 {
		c.Overlap = 0
	}
	if len(c.Separators) == 0 {
		c.Separators = []string{"\n\n", "\n", " ", ""}
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", c.Size)
	}
	if c.Overlap < 0 {
		return fmt.Errorf("chunk overlap cannot be negative, got %d", c.Overlap)
	}
	return nil
}

// effectiveOverlap clamps the overlap so chunking always makes progress.
// overlap == size is treated as size-1.
func (c Config) effectiveOverlap() int {
	if c.Overlap >= c.Size {
		return c.Size - 1
	}
	if c.Overlap < 0 {
		return 0
	}
	return c.Overlap
}

// New creates a chunker for the configured strategy. Unknown strategy names
// fall back to recursive with a warning.
func New(cfg Config) Chunker {
	cfg.SetDefaults()

	switch cfg.Strategy {
	case StrategyRecursive:
		return NewRecursiveChunker(cfg)
	case StrategySentence:
		return NewSentenceChunker(cfg)
	case StrategyParagraph:
		return NewParagraphChunker(cfg)
	case StrategyFixed:
		return NewFixedChunker(cfg)
	default:
		slog.Warn("Unknown chunking strategy, falling back to recursive",
			"strategy", cfg.Strategy)
		cfg.Strategy = StrategyRecursive
		return NewRecursiveChunker(cfg)
	}
}

// isSentenceTerminator reports whether r ends a sentence. Covers ASCII and
// the CJK fullwidth forms.
func isSentenceTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// isCJKTerminator reports whether r is a fullwidth terminator, which ends a
// sentence without requiring trailing whitespace.
func isCJKTerminator(r rune) bool {
	switch r {
	case '。', '！', '？':
		return true
	}
	return false
}
