package generation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/corpus/pkg/kb"
)

func attributionSources() []*kb.RetrievalResult {
	return []*kb.RetrievalResult{
		{Chunk: &kb.Chunk{ID: "s1", Text: "Chunking splits long documents into overlapping fragments."}, Score: 0.9},
		{Chunk: &kb.Chunk{ID: "s2", Text: "Embeddings map fragment text into a vector space."}, Score: 0.8},
	}
}

func TestAttribute_Deterministic(t *testing.T) {
	a := NewSourceAttributor(CitationNumbered)
	answer := "Chunking splits documents into fragments. Embeddings map text into a vector space."

	first, firstRefs, firstCites := a.Attribute(answer, attributionSources())
	second, secondRefs, secondCites := a.Attribute(answer, attributionSources())

	assert.Equal(t, first, second)
	assert.Equal(t, firstRefs, secondRefs)
	assert.Equal(t, firstCites, secondCites)
}

func TestAttribute_NumberedByFirstCitation(t *testing.T) {
	a := NewSourceAttributor(CitationNumbered)

	// The first sentence matches the second source, so it gets marker [1].
	answer := "Embeddings map text into a vector space. Chunking splits documents into fragments."
	annotated, references, citations := a.Attribute(answer, attributionSources())

	require.Len(t, citations, 2)
	assert.Equal(t, "s2", citations[0].ChunkID)
	assert.Equal(t, 1, citations[0].Index)
	assert.Equal(t, "s1", citations[1].ChunkID)
	assert.Equal(t, 2, citations[1].Index)

	assert.Contains(t, annotated, "vector space [1].")
	assert.Contains(t, annotated, "fragments [2].")

	lines := strings.Split(references, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "References:", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "[1] Embeddings"))
	assert.True(t, strings.HasPrefix(lines[2], "[2] Chunking"))
}

func TestAttribute_BulletStyle(t *testing.T) {
	a := NewSourceAttributor(CitationBullet)
	answer := "Chunking splits documents into fragments."

	_, references, citations := a.Attribute(answer, attributionSources())
	require.Len(t, citations, 1)
	assert.True(t, strings.HasPrefix(references, "References:\n- Chunking"))
	assert.Contains(t, references, "(s1)")
}

func TestAttribute_UnrelatedSentenceUncited(t *testing.T) {
	a := NewSourceAttributor(CitationNumbered)
	answer := "Completely unrelated weather report."

	annotated, references, citations := a.Attribute(answer, attributionSources())
	assert.Equal(t, answer, annotated)
	assert.Empty(t, references)
	assert.Empty(t, citations)
}

func TestAttribute_RepeatedSourceCitedOnce(t *testing.T) {
	a := NewSourceAttributor(CitationNumbered)
	answer := "Chunking splits documents into fragments. Overlapping fragments come from chunking documents."

	annotated, references, citations := a.Attribute(answer, attributionSources())
	require.Len(t, citations, 1, "a source appears in the references once")
	assert.Equal(t, "s1", citations[0].ChunkID)
	assert.Equal(t, 2, strings.Count(annotated, "[1]"), "both sentences carry the same marker")
	assert.Equal(t, 1, strings.Count(references, "[1]"))
}

func TestSplitAnswerSentences_Rejoins(t *testing.T) {
	inputs := []string{
		"One. Two! Three?",
		"No terminal punctuation",
		"Trailing space. ",
		"Ellipsis... then more.",
		"",
	}
	for _, input := range inputs {
		assert.Equal(t, input, strings.Join(splitAnswerSentences(input), ""))
	}
}

func TestSnippet_Truncates(t *testing.T) {
	long := strings.Repeat("abcd ", 50)
	s := snippet(long)
	assert.LessOrEqual(t, len(s), snippetLength+3)
	assert.True(t, strings.HasSuffix(s, "..."))

	assert.Equal(t, "short text", snippet("short  text"))
}
