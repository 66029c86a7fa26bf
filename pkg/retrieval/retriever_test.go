package retrieval

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/corpus/pkg/kb"
	"github.com/kadirpekel/corpus/pkg/store"
)

// fakeEmbedder returns a fixed vector and counts calls.
type fakeEmbedder struct {
	vector []float32
	calls  int32
	err    error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return nil, f.err
	}
	return f.vector, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec, err := f.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimension() int { return len(f.vector) }
func (f *fakeEmbedder) Model() string  { return "fake" }
func (f *fakeEmbedder) Close() error   { return nil }

func seededProvider(t *testing.T) store.Provider {
	t.Helper()
	p := store.NewMemoryProvider(store.Config{})
	require.NoError(t, p.Initialize(context.Background()))
	require.NoError(t, p.AddChunks(context.Background(), []*kb.Chunk{
		{ID: "A", DocumentID: "d", Text: "indexing and search basics", Embedding: []float32{1, 0, 0}},
		{ID: "B", DocumentID: "d", Text: "unrelated cooking notes", Embedding: []float32{0, 1, 0}},
		{ID: "C", DocumentID: "d", Text: "search ranking internals", Embedding: []float32{1, 1, 0}},
	}))
	return p
}

func TestRetriever_RanksByScore(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0, 0}}
	r := New(Config{TopK: 2}, emb, seededProvider(t))

	results, err := r.Retrieve(context.Background(), "search", store.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].Chunk.ID)
	assert.Equal(t, 0, results[0].Rank)
	assert.Equal(t, "C", results[1].Chunk.ID)
	assert.Equal(t, 1, results[1].Rank)
}

func TestRetriever_CacheHitSkipsEmbedding(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0, 0}}
	r := New(Config{TopK: 2, CacheEnabled: true}, emb, seededProvider(t))
	ctx := context.Background()

	first, err := r.Retrieve(ctx, "search", store.SearchOptions{})
	require.NoError(t, err)
	second, err := r.Retrieve(ctx, "search", store.SearchOptions{})
	require.NoError(t, err)

	assert.Equal(t, int32(1), atomic.LoadInt32(&emb.calls), "second call served from cache")
	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Chunk.ID, second[i].Chunk.ID)
		assert.Equal(t, first[i].Score, second[i].Score)
	}

	stats := r.CacheStats()
	require.NotNil(t, stats)
	assert.Equal(t, int64(1), stats["hits"])
}

func TestRetriever_InvalidateCacheForcesRefetch(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0, 0}}
	r := New(Config{TopK: 2, CacheEnabled: true}, emb, seededProvider(t))
	ctx := context.Background()

	_, err := r.Retrieve(ctx, "search", store.SearchOptions{})
	require.NoError(t, err)
	r.InvalidateCache()
	_, err = r.Retrieve(ctx, "search", store.SearchOptions{})
	require.NoError(t, err)

	assert.Equal(t, int32(2), atomic.LoadInt32(&emb.calls))
}

func TestRetriever_EmbedErrorIsTyped(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("model offline")}
	r := New(Config{}, emb, seededProvider(t))

	_, err := r.Retrieve(context.Background(), "search", store.SearchOptions{})
	require.Error(t, err)

	var re *RetrievalError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "embed_query", re.Operation)
}

func TestRetriever_HybridMergesKeywordHits(t *testing.T) {
	// B is orthogonal to the query vector but matches the query text; in
	// hybrid mode it must surface with a keyword-weighted score.
	emb := &fakeEmbedder{vector: []float32{1, 0, 0}}
	p := store.NewMemoryProvider(store.Config{})
	require.NoError(t, p.Initialize(context.Background()))
	require.NoError(t, p.AddChunks(context.Background(), []*kb.Chunk{
		{ID: "A", DocumentID: "d", Text: "nothing in common", Embedding: []float32{1, 0, 0}},
		{ID: "B", DocumentID: "d", Text: "cooking cooking cooking", Embedding: []float32{0, 1, 0}},
	}))

	r := New(Config{TopK: 5, Hybrid: true}, emb, p)
	results, err := r.Retrieve(context.Background(), "cooking", store.SearchOptions{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "A", results[0].Chunk.ID, "vector weight dominates")
	assert.InDelta(t, vectorWeight, results[0].Score, 1e-9)
	assert.Equal(t, "B", results[1].Chunk.ID)
	assert.InDelta(t, keywordWeight, results[1].Score, 1e-9)
}

func TestRetriever_DefaultTopK(t *testing.T) {
	emb := &fakeEmbedder{vector: []float32{1, 0, 0}}
	r := New(Config{TopK: 1}, emb, seededProvider(t))

	results, err := r.Retrieve(context.Background(), "search", store.SearchOptions{})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
