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

package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kadirpekel/corpus/pkg/kb"
)

// Config controls answer generation.
type Config struct {
	Stream                   bool          `yaml:"stream" mapstructure:"stream"`
	IncludeCitations         bool          `yaml:"include_citations" mapstructure:"include_citations"`
	CitationStyle            CitationStyle `yaml:"citation_style" mapstructure:"citation_style"`
	IncludeReferencesSection bool          `yaml:"include_references_section" mapstructure:"include_references_section"`

	// MaxContextTokens bounds the prompt's source budget. Zero disables
	// trimming.
	MaxContextTokens int `yaml:"max_context_tokens" mapstructure:"max_context_tokens"`
}

// Generator assembles prompts from retrieved fragments and calls the
// external model.
type Generator struct {
	config     Config
	model      TextGenerator
	attributor *SourceAttributor
	counter    *TokenCounter
}

// New creates a generator around model.
func New(cfg Config, model TextGenerator) *Generator {
	g := &Generator{
		config:     cfg,
		model:      model,
		attributor: NewSourceAttributor(cfg.CitationStyle),
	}
	if cfg.MaxContextTokens > 0 {
		counter, err := NewTokenCounter(model.Model())
		if err != nil {
			slog.Warn("token encoding unavailable, estimating token counts",
				"model", model.Model(), "error", err)
		}
		g.counter = counter
	}
	return g
}

// Answer generates a plain answer for query from sources. No sources
// yields the sentinel answer, not an error.
func (g *Generator) Answer(ctx context.Context, query string, sources []*kb.RetrievalResult) (string, error) {
	if len(sources) == 0 {
		return kb.NoAnswerSentinel, nil
	}

	answer, err := g.model.Generate(ctx, g.buildPrompt(query, sources))
	if err != nil {
		return "", NewGenerationError(g.model.Model(), "generate", "model call failed", err)
	}
	if strings.TrimSpace(answer) == "" {
		return "", NewGenerationError(g.model.Model(), "generate", "model returned an empty response", nil)
	}
	return answer, nil
}

// AnswerWithCitations generates an answer and attributes it to its
// sources.
func (g *Generator) AnswerWithCitations(ctx context.Context, query string, sources []*kb.RetrievalResult) (*kb.QueryResult, error) {
	start := time.Now()

	result := &kb.QueryResult{Query: query}
	if len(sources) == 0 {
		result.Answer = kb.NoAnswerSentinel
		result.Elapsed = time.Since(start)
		return result, nil
	}

	answer, err := g.Answer(ctx, query, sources)
	if err != nil {
		return nil, err
	}

	if g.config.IncludeCitations {
		annotated, references, citations := g.attributor.Attribute(answer, sources)
		answer = annotated
		result.Citations = citations
		if g.config.IncludeReferencesSection && references != "" {
			answer = answer + "\n\n" + references
		}
	}

	result.Answer = answer
	result.Sources = make([]kb.RetrievalResult, len(sources))
	for i, src := range sources {
		result.Sources[i] = *src
	}
	result.Confidence = sources[0].Score
	result.Elapsed = time.Since(start)
	return result, nil
}

// AnswerStream generates an answer as a finite, ordered sequence of text
// pieces. No sources yields a single sentinel piece.
func (g *Generator) AnswerStream(ctx context.Context, query string, sources []*kb.RetrievalResult) (<-chan StreamChunk, error) {
	if len(sources) == 0 {
		out := make(chan StreamChunk, 1)
		out <- StreamChunk{Text: kb.NoAnswerSentinel}
		close(out)
		return out, nil
	}

	stream, err := g.model.GenerateStream(ctx, g.buildPrompt(query, sources))
	if err != nil {
		return nil, NewGenerationError(g.model.Model(), "stream", "model call failed", err)
	}
	return stream, nil
}

// buildPrompt renders numbered source blocks followed by the question.
func (g *Generator) buildPrompt(query string, sources []*kb.RetrievalResult) string {
	sources = g.fitSources(sources)

	var b strings.Builder
	b.WriteString("Answer the question using only the sources below. " +
		"If the sources do not contain the answer, say so.\n\nSources:\n")
	for i, src := range sources {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, src.Chunk.Text)
	}
	fmt.Fprintf(&b, "Question: %s\nAnswer:", query)
	return b.String()
}

// fitSources keeps the top-ranked sources that fit the token budget. At
// least one source is always kept so the prompt is never empty.
func (g *Generator) fitSources(sources []*kb.RetrievalResult) []*kb.RetrievalResult {
	if g.config.MaxContextTokens <= 0 {
		return sources
	}

	used := 0
	for i, src := range sources {
		used += g.counter.Count(src.Chunk.Text)
		if used > g.config.MaxContextTokens && i > 0 {
			slog.Debug("trimming sources to context budget",
				"kept", i, "dropped", len(sources)-i, "budget", g.config.MaxContextTokens)
			return sources[:i]
		}
	}
	return sources
}
