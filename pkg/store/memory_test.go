package store

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/corpus/pkg/kb"
)

func testChunks() []*kb.Chunk {
	return []*kb.Chunk{
		{
			ID: "A", DocumentID: "doc-1", Text: "alpha fragment text",
			StartIndex: 0, EndIndex: 19,
			Embedding: []float32{1, 0, 0},
			Metadata:  map[string]any{"document_id": "doc-1", "chunk_index": 0, "lang": "en"},
		},
		{
			ID: "B", DocumentID: "doc-1", Text: "beta fragment text",
			StartIndex: 19, EndIndex: 37,
			Embedding: []float32{0, 1, 0},
			Metadata:  map[string]any{"document_id": "doc-1", "chunk_index": 1, "lang": "de"},
		},
		{
			ID: "C", DocumentID: "doc-1", Text: "gamma fragment text",
			StartIndex: 37, EndIndex: 56,
			Embedding: []float32{1, 1, 0},
			Metadata:  map[string]any{"document_id": "doc-1", "chunk_index": 2, "lang": "en"},
		},
	}
}

func newMemory(t *testing.T, cfg Config) *MemoryProvider {
	t.Helper()
	p := NewMemoryProvider(cfg)
	require.NoError(t, p.Initialize(context.Background()))
	return p
}

func TestMemoryProvider_AddGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := newMemory(t, Config{})
	chunks := testChunks()
	require.NoError(t, p.AddChunks(ctx, chunks))

	for _, want := range chunks {
		got, err := p.GetChunk(ctx, want.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, want.Text, got.Text)
		assert.Equal(t, want.StartIndex, got.StartIndex)
		assert.Equal(t, want.EndIndex, got.EndIndex)
		assert.Equal(t, want.Embedding, got.Embedding)
		assert.Equal(t, want.Metadata, got.Metadata)
	}

	missing, err := p.GetChunk(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryProvider_HandsOutCopies(t *testing.T) {
	ctx := context.Background()
	p := newMemory(t, Config{})
	require.NoError(t, p.AddChunks(ctx, testChunks()))

	got, err := p.GetChunk(ctx, "A")
	require.NoError(t, err)
	got.Metadata["lang"] = "mutated"
	got.Text = "mutated"

	again, err := p.GetChunk(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "en", again.Metadata["lang"])
	assert.Equal(t, "alpha fragment text", again.Text)
}

func TestMemoryProvider_SearchSimilar(t *testing.T) {
	// Ingest A=[1,0,0], B=[0,1,0], C=[1,1,0]; query [1,0,0] top_k 2 must
	// rank A first with score 1.0 and C second with 1/sqrt(2).
	ctx := context.Background()
	p := newMemory(t, Config{})
	require.NoError(t, p.AddChunks(ctx, testChunks()))

	results, err := p.SearchSimilar(ctx, []float32{1, 0, 0}, SearchOptions{TopK: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "A", results[0].Chunk.ID)
	assert.Equal(t, 0, results[0].Rank)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)

	assert.Equal(t, "C", results[1].Chunk.ID)
	assert.Equal(t, 1, results[1].Rank)
	assert.InDelta(t, 1/math.Sqrt2, results[1].Score, 1e-6)
}

func TestMemoryProvider_SearchFiltersAndMinScore(t *testing.T) {
	ctx := context.Background()
	p := newMemory(t, Config{})
	require.NoError(t, p.AddChunks(ctx, testChunks()))

	results, err := p.SearchSimilar(ctx, []float32{1, 0, 0}, SearchOptions{
		TopK:    10,
		Filters: map[string]any{"lang": "en"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].Chunk.ID)
	assert.Equal(t, "C", results[1].Chunk.ID)

	// Intersecting filters.
	results, err = p.SearchSimilar(ctx, []float32{1, 0, 0}, SearchOptions{
		TopK:    10,
		Filters: map[string]any{"lang": "en", "chunk_index": 2},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "C", results[0].Chunk.ID)

	// document_id resolves through the document index.
	results, err = p.SearchSimilar(ctx, []float32{1, 0, 0}, SearchOptions{
		TopK:    10,
		Filters: map[string]any{"document_id": "doc-1"},
	})
	require.NoError(t, err)
	assert.Len(t, results, 3)

	// min_score drops weak matches.
	results, err = p.SearchSimilar(ctx, []float32{1, 0, 0}, SearchOptions{TopK: 10, MinScore: 0.9})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "A", results[0].Chunk.ID)
}

func TestMemoryProvider_SearchBoundaries(t *testing.T) {
	ctx := context.Background()
	p := newMemory(t, Config{})
	require.NoError(t, p.AddChunks(ctx, testChunks()))

	// top_k == 0 yields no results, no error.
	results, err := p.SearchSimilar(ctx, []float32{1, 0, 0}, SearchOptions{TopK: 0})
	require.NoError(t, err)
	assert.Empty(t, results)

	// A zero query vector scores 0 everywhere.
	results, err = p.SearchSimilar(ctx, []float32{0, 0, 0}, SearchOptions{TopK: 10, MinScore: 1e-9})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryProvider_KeywordSearch(t *testing.T) {
	ctx := context.Background()
	p := newMemory(t, Config{})
	require.NoError(t, p.AddChunks(ctx, []*kb.Chunk{
		{ID: "X", DocumentID: "d", Text: "the quick brown fox jumps over the lazy dog", Embedding: []float32{1}},
		{ID: "Y", DocumentID: "d", Text: "a fox and another fox in the woods", Embedding: []float32{1}},
		{ID: "Z", DocumentID: "d", Text: "nothing relevant here", Embedding: []float32{1}},
	}))

	results, err := p.KeywordSearch(ctx, "fox", SearchOptions{TopK: 10})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Y", results[0].Chunk.ID, "two occurrences rank first")
	assert.InDelta(t, 1.0, results[0].Score, 1e-9, "best match normalizes to 1.0")
	assert.Equal(t, "X", results[1].Chunk.ID)
	assert.Less(t, results[1].Score, 1.0)
}

func TestMemoryProvider_DeleteChunks(t *testing.T) {
	ctx := context.Background()
	p := newMemory(t, Config{})
	require.NoError(t, p.AddChunks(ctx, testChunks()))
	require.NoError(t, p.DeleteChunks(ctx, []string{"B"}))

	got, err := p.GetChunk(ctx, "B")
	require.NoError(t, err)
	assert.Nil(t, got)

	// The deleted chunk appears in no search result regardless of filters.
	results, err := p.SearchSimilar(ctx, []float32{0, 1, 0}, SearchOptions{TopK: 10})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "B", r.Chunk.ID)
	}
	results, err = p.SearchSimilar(ctx, []float32{0, 1, 0}, SearchOptions{
		TopK: 10, Filters: map[string]any{"lang": "de"},
	})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryProvider_DeleteDocument(t *testing.T) {
	ctx := context.Background()
	p := newMemory(t, Config{})
	require.NoError(t, p.AddChunks(ctx, testChunks()))
	require.NoError(t, p.DeleteDocument(ctx, "doc-1"))

	stats, err := p.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats["total_chunks"])
	assert.Equal(t, 0, stats["total_documents"])

	chunks, err := p.GetDocumentChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestMemoryProvider_ReAddIsIdempotent(t *testing.T) {
	ctx := context.Background()
	p := newMemory(t, Config{})
	chunks := testChunks()
	require.NoError(t, p.AddChunks(ctx, chunks))

	updated := chunks[0].Clone()
	updated.Metadata["lang"] = "fr"
	require.NoError(t, p.AddChunks(ctx, []*kb.Chunk{updated}))

	stats, err := p.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats["total_chunks"], "re-add must not grow the store")

	got, err := p.GetChunk(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "fr", got.Metadata["lang"], "latest write wins")

	// The old index entry is gone.
	results, err := p.SearchSimilar(ctx, []float32{1, 0, 0}, SearchOptions{
		TopK: 10, Filters: map[string]any{"lang": "en"},
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "C", results[0].Chunk.ID)
}

func TestMemoryProvider_MaxChunks(t *testing.T) {
	ctx := context.Background()
	p := newMemory(t, Config{MaxChunks: 2})

	err := p.AddChunks(ctx, testChunks())
	require.Error(t, err)

	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindOperation, se.Kind)
}

func TestMemoryProvider_SkipsChunksWithoutEmbedding(t *testing.T) {
	ctx := context.Background()
	p := newMemory(t, Config{})

	require.NoError(t, p.AddChunks(ctx, []*kb.Chunk{
		{ID: "with", DocumentID: "d", Text: "has embedding", Embedding: []float32{1}},
		{ID: "without", DocumentID: "d", Text: "no embedding"},
	}))

	stats, err := p.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats["total_chunks"])

	got, err := p.GetChunk(ctx, "without")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryProvider_UpdateMetadataMerges(t *testing.T) {
	ctx := context.Background()
	p := newMemory(t, Config{})
	require.NoError(t, p.AddChunks(ctx, testChunks()))

	require.NoError(t, p.UpdateMetadata(ctx, "A", map[string]any{"lang": "fr", "new": true}))

	got, err := p.GetChunk(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, "fr", got.Metadata["lang"])
	assert.Equal(t, true, got.Metadata["new"])
	assert.Equal(t, 0, got.Metadata["chunk_index"], "unrelated keys survive the merge")

	err = p.UpdateMetadata(ctx, "missing", map[string]any{"x": 1})
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, KindNotFound, se.Kind)
}

func TestMemoryProvider_Persistence(t *testing.T) {
	// Save the S2 data, then open a fresh provider with identical config;
	// observable state must match.
	ctx := context.Background()
	dir := t.TempDir()
	cfg := Config{PersistenceEnabled: true, PersistencePath: dir}

	p := newMemory(t, cfg)
	require.NoError(t, p.AddChunks(ctx, testChunks()))
	require.NoError(t, p.Close())

	reopened := newMemory(t, cfg)
	stats, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats["total_chunks"])
	assert.Equal(t, 1, stats["total_documents"])

	// Embeddings are re-attached from the vectors file.
	results, err := reopened.SearchSimilar(ctx, []float32{1, 0, 0}, SearchOptions{TopK: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].Chunk.ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)

	// Numeric metadata survives the JSON round trip as int.
	got, err := reopened.GetChunk(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 0, got.Metadata["chunk_index"])

	// Filtered search keeps working against the reloaded index.
	filtered, err := reopened.SearchSimilar(ctx, []float32{1, 0, 0}, SearchOptions{
		TopK: 10, Filters: map[string]any{"lang": "en"},
	})
	require.NoError(t, err)
	assert.Len(t, filtered, 2)
}

func TestMemoryProvider_ClearRemovesStateFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := Config{PersistenceEnabled: true, PersistencePath: dir}

	p := newMemory(t, cfg)
	require.NoError(t, p.AddChunks(ctx, testChunks()))
	require.NoError(t, p.Close())
	require.NoError(t, p.Clear(ctx))

	reopened := newMemory(t, cfg)
	stats, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats["total_chunks"])
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{0.3, 0.7, 0.2}
	b := []float32{0.9, 0.1, 0.4}

	assert.Equal(t, CosineSimilarity(a, b), CosineSimilarity(b, a), "symmetric")
	assert.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9, "self similarity is 1")
	assert.Equal(t, 0.0, CosineSimilarity(a, []float32{0, 0, 0}), "zero magnitude guard")
	assert.Equal(t, 0.0, CosineSimilarity(a, []float32{1, 2}), "length mismatch guard")
	assert.Equal(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{-1, 0}), "negative clamped to 0")

	score := CosineSimilarity(a, b)
	assert.GreaterOrEqual(t, score, 0.0)
	assert.LessOrEqual(t, score, 1.0)
}

func TestWithRetry_RetriesConnectionErrorsOnly(t *testing.T) {
	ctx := context.Background()

	attempts := 0
	err := WithRetry(ctx, 3, func() error {
		attempts++
		if attempts < 3 {
			return NewConnectionError("test", "op", "flaky", nil)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	attempts = 0
	opErr := NewStorageError("test", "op", KindOperation, "bad request", nil)
	err = WithRetry(ctx, 3, func() error {
		attempts++
		return opErr
	})
	assert.Equal(t, 1, attempts, "non-connection errors are not retried")
	assert.ErrorIs(t, err, error(opErr))
}

func TestWithRetry_Exhaustion(t *testing.T) {
	attempts := 0
	err := WithRetry(context.Background(), 2, func() error {
		attempts++
		return NewConnectionError("test", "op", fmt.Sprintf("fail %d", attempts), nil)
	})
	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.True(t, IsConnectionError(err))
}
