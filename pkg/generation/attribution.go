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
	"fmt"
	"strings"

	"github.com/kadirpekel/corpus/pkg/kb"
	"github.com/kadirpekel/corpus/pkg/metadata"
)

// CitationStyle selects how reference markers are rendered.
type CitationStyle string

const (
	CitationNumbered CitationStyle = "numbered"
	CitationBullet   CitationStyle = "bullet"
)

// A sentence cites a source only when they share at least this many
// distinct terms.
const minCitationOverlap = 2

const snippetLength = 120

// SourceAttributor maps answer sentences to the sources that support
// them by term overlap. The mapping is deterministic for identical
// inputs: ties go to the earlier source in the list.
type SourceAttributor struct {
	style CitationStyle
}

// NewSourceAttributor creates an attributor. An empty style defaults to
// numbered.
func NewSourceAttributor(style CitationStyle) *SourceAttributor {
	if style == "" {
		style = CitationNumbered
	}
	return &SourceAttributor{style: style}
}

// Attribute annotates answer with reference markers and builds the
// references section. Citation indices are 1-based, assigned in order of
// first citation; each cited source appears in the references once.
func (a *SourceAttributor) Attribute(answer string, sources []*kb.RetrievalResult) (string, string, []kb.Citation) {
	if answer == "" || len(sources) == 0 {
		return answer, "", nil
	}

	sourceTerms := make([]map[string]bool, len(sources))
	for i, src := range sources {
		sourceTerms[i] = termSet(src.Chunk.Text)
	}

	// source index -> assigned citation number
	assigned := make(map[int]int)
	var citations []kb.Citation
	var annotated strings.Builder

	for _, sentence := range splitAnswerSentences(answer) {
		terms := termSet(sentence)

		best, bestOverlap := -1, 0
		for i, set := range sourceTerms {
			overlap := 0
			for term := range terms {
				if set[term] {
					overlap++
				}
			}
			if overlap > bestOverlap {
				best, bestOverlap = i, overlap
			}
		}

		text := sentence
		if best >= 0 && bestOverlap >= minCitationOverlap {
			number, ok := assigned[best]
			if !ok {
				number = len(assigned) + 1
				assigned[best] = number
				src := sources[best]
				citations = append(citations, kb.Citation{
					ChunkID:  src.Chunk.ID,
					Index:    number,
					Snippet:  snippet(src.Chunk.Text),
					Score:    src.Score,
					Metadata: kb.CloneMetadata(src.Chunk.Metadata),
				})
			}
			text = insertMarker(sentence, number)
		}
		annotated.WriteString(text)
	}

	return annotated.String(), a.references(citations), citations
}

// references renders the references section in the configured style,
// ordered by first citation.
func (a *SourceAttributor) references(citations []kb.Citation) string {
	if len(citations) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("References:\n")
	for _, c := range citations {
		if a.style == CitationBullet {
			fmt.Fprintf(&b, "- %s (%s)\n", c.Snippet, c.ChunkID)
		} else {
			fmt.Fprintf(&b, "[%d] %s\n", c.Index, c.Snippet)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// insertMarker places " [n]" before the sentence's trailing punctuation
// and whitespace.
func insertMarker(sentence string, number int) string {
	trimmed := strings.TrimRight(sentence, " \t\n")
	trailing := sentence[len(trimmed):]

	body := strings.TrimRight(trimmed, ".!?")
	punct := trimmed[len(body):]
	return fmt.Sprintf("%s [%d]%s%s", body, number, punct, trailing)
}

// splitAnswerSentences tiles the answer into sentence spans so that
// re-joining them reproduces the input.
func splitAnswerSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if runes[i] != '.' && runes[i] != '!' && runes[i] != '?' {
			continue
		}
		// Absorb the punctuation run and following whitespace.
		for i+1 < len(runes) && (runes[i+1] == '.' || runes[i+1] == '!' || runes[i+1] == '?') {
			i++
		}
		end := i + 1
		for end < len(runes) && (runes[end] == ' ' || runes[end] == '\n' || runes[end] == '\t') {
			end++
		}
		sentences = append(sentences, string(runes[start:end]))
		start = end
		i = end - 1
	}
	if start < len(runes) {
		sentences = append(sentences, string(runes[start:]))
	}
	return sentences
}

func termSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, token := range metadata.Tokenize(text) {
		set[token] = true
	}
	return set
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= snippetLength {
		return text
	}
	return strings.TrimRight(text[:snippetLength], " ") + "..."
}
