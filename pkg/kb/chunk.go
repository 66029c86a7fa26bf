package kb

import "time"

// Chunk is the fundamental storage unit: a positioned slice of a document's
// content, optionally carrying an embedding.
//
// Invariants: 0 <= StartIndex <= EndIndex <= len(document content), and
// Text equals content[StartIndex:EndIndex] at creation time. Chunks persist
// independently once stored; the source document may be deleted later.
type Chunk struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Text       string         `json:"text"`
	StartIndex int            `json:"start_index"`
	EndIndex   int            `json:"end_index"`
	Embedding  []float32      `json:"embedding,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the chunk. Store providers hand out clones so
// callers cannot mutate stored state.
func (c *Chunk) Clone() *Chunk {
	out := *c
	if c.Embedding != nil {
		out.Embedding = make([]float32, len(c.Embedding))
		copy(out.Embedding, c.Embedding)
	}
	out.Metadata = CloneMetadata(c.Metadata)
	return &out
}

// ChunkingResult is the output of processing one document.
type ChunkingResult struct {
	DocumentID string        `json:"document_id"`
	Chunks     []*Chunk      `json:"chunks"`
	Skipped    int           `json:"skipped,omitempty"`
	Elapsed    time.Duration `json:"elapsed,omitempty"`
}

// RetrievalResult is a chunk with its relevance score and rank.
//
// Score is cosine similarity clamped to [0,1] for semantic search, or a
// normalized term-frequency relevance for keyword search. Rank is 0-based.
type RetrievalResult struct {
	Chunk *Chunk  `json:"chunk"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// QueryResult is the end-to-end answer to a natural-language query.
type QueryResult struct {
	Query      string            `json:"query"`
	Answer     string            `json:"answer"`
	Sources    []RetrievalResult `json:"sources,omitempty"`
	Citations  []Citation        `json:"citations,omitempty"`
	Confidence float64           `json:"confidence,omitempty"`
	Elapsed    time.Duration     `json:"elapsed,omitempty"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
}

// Citation references a source chunk used in a generated answer.
type Citation struct {
	ChunkID  string         `json:"chunk_id"`
	Index    int            `json:"index"` // 1-based marker number
	Snippet  string         `json:"snippet,omitempty"`
	Score    float64        `json:"score,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"` // author, title, date, ...
}

// NoAnswerSentinel is returned when a query finds no sources. This is a
// successful outcome, not an error.
const NoAnswerSentinel = "I don't have enough information to answer that question."
