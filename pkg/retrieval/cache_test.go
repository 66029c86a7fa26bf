package retrieval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/corpus/pkg/kb"
)

func result(id string, score float64) *kb.RetrievalResult {
	return &kb.RetrievalResult{
		Chunk: &kb.Chunk{ID: id, DocumentID: "doc", Text: "text for " + id},
		Score: score,
	}
}

func TestFingerprint_StableUnderFilterPermutation(t *testing.T) {
	a := Fingerprint("query", map[string]any{"lang": "en", "year": 2024, "tag": "x"}, 5)
	b := Fingerprint("query", map[string]any{"tag": "x", "lang": "en", "year": 2024}, 5)
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, Fingerprint("other query", map[string]any{"lang": "en", "year": 2024, "tag": "x"}, 5))
	assert.NotEqual(t, a, Fingerprint("query", map[string]any{"lang": "de", "year": 2024, "tag": "x"}, 5))
	assert.NotEqual(t, a, Fingerprint("query", map[string]any{"lang": "en", "year": 2024, "tag": "x"}, 10))
	assert.NotEqual(t, Fingerprint("q", nil, 5), Fingerprint("q", nil, 6))
}

func TestCache_PutGet(t *testing.T) {
	c := NewCache(10, time.Minute)

	_, ok := c.Get("k1")
	assert.False(t, ok)

	c.Put("k1", []*kb.RetrievalResult{result("A", 0.9)})
	got, ok := c.Get("k1")
	require.True(t, ok)
	require.Len(t, got, 1)
	assert.Equal(t, "A", got[0].Chunk.ID)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats["hits"])
	assert.Equal(t, int64(1), stats["misses"])
}

func TestCache_TTLExpiry(t *testing.T) {
	c := NewCache(10, 50*time.Millisecond)
	c.Put("k1", []*kb.RetrievalResult{result("A", 0.9)})

	_, ok := c.Get("k1")
	require.True(t, ok)

	time.Sleep(80 * time.Millisecond)

	_, ok = c.Get("k1")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "expired entry evicted on access")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats["expirations"])
}

func TestCache_LRUEviction(t *testing.T) {
	c := NewCache(2, time.Minute)

	c.Put("q1", []*kb.RetrievalResult{result("A", 0.9)})
	got, ok := c.Get("q1")
	require.True(t, ok)
	require.Len(t, got, 1)

	c.Put("q2", []*kb.RetrievalResult{result("B", 0.8)})
	c.Put("q3", []*kb.RetrievalResult{result("C", 0.7)})

	_, ok = c.Get("q1")
	assert.False(t, ok, "oldest entry evicted at capacity")
	_, ok = c.Get("q2")
	assert.True(t, ok)
	_, ok = c.Get("q3")
	assert.True(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats["evictions"])
}

func TestCache_GetRefreshesRecency(t *testing.T) {
	c := NewCache(2, time.Minute)
	c.Put("q1", []*kb.RetrievalResult{result("A", 0.9)})
	c.Put("q2", []*kb.RetrievalResult{result("B", 0.8)})

	// Touch q1 so q2 becomes the LRU victim.
	_, ok := c.Get("q1")
	require.True(t, ok)

	c.Put("q3", []*kb.RetrievalResult{result("C", 0.7)})

	_, ok = c.Get("q1")
	assert.True(t, ok)
	_, ok = c.Get("q2")
	assert.False(t, ok)
}

func TestCache_ReturnsCopies(t *testing.T) {
	c := NewCache(10, time.Minute)
	c.Put("k", []*kb.RetrievalResult{result("A", 0.9)})

	got, ok := c.Get("k")
	require.True(t, ok)
	got[0].Chunk.Text = "mutated"
	got[0].Score = 0

	again, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "text for A", again[0].Chunk.Text)
	assert.Equal(t, 0.9, again[0].Score)
}

func TestCache_Invalidate(t *testing.T) {
	c := NewCache(10, time.Minute)
	c.Put("k1", []*kb.RetrievalResult{result("A", 0.9)})
	c.Put("k2", []*kb.RetrievalResult{result("B", 0.8)})

	c.Invalidate()
	assert.Equal(t, 0, c.Len())
	_, ok := c.Get("k1")
	assert.False(t, ok)
}
