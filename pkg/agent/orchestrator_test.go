package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/corpus/pkg/chunking"
	"github.com/kadirpekel/corpus/pkg/generation"
	"github.com/kadirpekel/corpus/pkg/kb"
	"github.com/kadirpekel/corpus/pkg/metadata"
	"github.com/kadirpekel/corpus/pkg/processor"
	"github.com/kadirpekel/corpus/pkg/retrieval"
	"github.com/kadirpekel/corpus/pkg/store"
)

// stubEmbedder maps every text to the same vector and fails on texts
// containing "poison".
type stubEmbedder struct{}

func (stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "poison") {
		return nil, fmt.Errorf("embedder rejected input")
	}
	return []float32{1, 0, 0}, nil
}

func (e stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (stubEmbedder) Dimension() int { return 3 }
func (stubEmbedder) Model() string  { return "stub" }
func (stubEmbedder) Close() error   { return nil }

// stubModel returns a canned answer.
type stubModel struct{ response string }

func (m stubModel) Generate(ctx context.Context, prompt string) (string, error) {
	return m.response, nil
}

func (m stubModel) GenerateStream(ctx context.Context, prompt string) (<-chan generation.StreamChunk, error) {
	out := make(chan generation.StreamChunk, 1)
	out <- generation.StreamChunk{Text: m.response}
	close(out)
	return out, nil
}

func (stubModel) Model() string { return "stub" }
func (stubModel) Close() error  { return nil }

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	emb := stubEmbedder{}
	chunker := chunking.NewParagraphChunker(chunking.Config{Size: 200, Overlap: 0})
	extractor := metadata.NewExtractor(metadata.Config{ExtractMetadata: true})
	proc := processor.New(processor.Config{}, chunker, extractor, emb)

	provider := store.NewMemoryProvider(store.Config{})
	require.NoError(t, provider.Initialize(context.Background()))

	retriever := retrieval.New(retrieval.Config{TopK: 5, CacheEnabled: true}, emb, provider)
	generator := generation.New(generation.Config{}, stubModel{response: "A generated answer."})

	o := NewOrchestrator(Config{RequestTimeout: 5}, proc, provider, retriever, generator)
	require.NoError(t, o.Start(context.Background()))
	t.Cleanup(func() { _ = o.Stop() })
	return o
}

func TestOrchestrator_AddDocumentThenQuery(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	doc := kb.NewDocument("doc-1", "Chunking splits documents.\n\nEmbedding maps text to vectors.", kb.DocumentTypeText)
	result := o.ReceiveRequest(ctx, "client", RequestAddDocument, map[string]any{"document": doc})

	assert.Equal(t, true, result["success"])
	assert.Equal(t, "doc-1", result["document_id"])
	assert.Equal(t, 2, result["chunks_created"])

	answer := o.ReceiveRequest(ctx, "client", RequestQuery, map[string]any{"query": "what is chunking?"})
	assert.Equal(t, true, answer["success"])
	assert.Equal(t, "A generated answer.", answer["answer"])

	chunks := answer["chunks"].([]*kb.RetrievalResult)
	assert.Len(t, chunks, 2)
}

func TestOrchestrator_AddDocumentPartialFragmentFailure(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	// One of the two fragments fails to embed; ingestion still succeeds
	// with the remaining fragment.
	doc := kb.NewDocument("doc-2", "A healthy paragraph here.\n\nA poison paragraph here.", kb.DocumentTypeText)
	result := o.ReceiveRequest(ctx, "client", RequestAddDocument, map[string]any{"document": doc})

	assert.Equal(t, true, result["success"])
	assert.Equal(t, 1, result["chunks_created"])
	assert.Equal(t, 1, result["skipped"])
}

func TestOrchestrator_QueryEmptyStore(t *testing.T) {
	o := newTestOrchestrator(t)

	result := o.ReceiveRequest(context.Background(), "client", RequestQuery, map[string]any{"query": "anything"})
	assert.Equal(t, true, result["success"])
	assert.Equal(t, kb.NoAnswerSentinel, result["answer"])
	assert.Empty(t, result["chunks"])
}

func TestOrchestrator_QueryMissingQuery(t *testing.T) {
	o := newTestOrchestrator(t)

	result := o.ReceiveRequest(context.Background(), "client", RequestQuery, map[string]any{})
	assert.Equal(t, false, result["success"])
	assert.Contains(t, result["error"], "query")
}

func TestOrchestrator_StreamingQuery(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	doc := kb.NewDocument("doc-3", "Some indexed content for streaming.", kb.DocumentTypeText)
	require.Equal(t, true, o.ReceiveRequest(ctx, "client", RequestAddDocument, map[string]any{"document": doc})["success"])

	result := o.ReceiveRequest(ctx, "client", RequestQuery, map[string]any{
		"query":  "content",
		"stream": true,
	})
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "streaming", result["status"])

	stream := result["stream"].(<-chan generation.StreamChunk)
	var text strings.Builder
	for chunk := range stream {
		require.NoError(t, chunk.Err)
		text.WriteString(chunk.Text)
	}
	assert.Equal(t, "A generated answer.", text.String())
}

func TestOrchestrator_DeleteDocument(t *testing.T) {
	o := newTestOrchestrator(t)
	ctx := context.Background()

	doc := kb.NewDocument("doc-4", "Content that will be deleted.", kb.DocumentTypeText)
	require.Equal(t, true, o.ReceiveRequest(ctx, "client", RequestAddDocument, map[string]any{"document": doc})["success"])

	result := o.ReceiveRequest(ctx, "client", RequestDeleteDocument, map[string]any{"document_id": "doc-4"})
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "doc-4", result["document_id"])

	// Deletion invalidates the cache, so the query sees the empty store.
	answer := o.ReceiveRequest(ctx, "client", RequestQuery, map[string]any{"query": "deleted content"})
	assert.Equal(t, true, answer["success"])
	assert.Equal(t, kb.NoAnswerSentinel, answer["answer"])
}

func TestOrchestrator_HealthCheck(t *testing.T) {
	o := newTestOrchestrator(t)

	result := o.ReceiveRequest(context.Background(), "client", RequestHealthCheck, nil)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "healthy", result["status"])

	agents := result["agents"].(map[string]any)
	assert.Len(t, agents, 6)
	for _, id := range []string{AgentCollection, AgentProcessing, AgentStorage, AgentRetrieval, AgentMaintenance, AgentRAG} {
		status := agents[id].(map[string]any)
		assert.Equal(t, true, status["running"], id)
	}
}

func TestOrchestrator_Maintain(t *testing.T) {
	o := newTestOrchestrator(t)

	result := o.ReceiveRequest(context.Background(), "client", RequestMaintain, nil)
	assert.Equal(t, true, result["success"])

	storeStats := result["store"].(map[string]any)
	assert.Equal(t, 0, storeStats["total_chunks"])
	assert.Contains(t, result, "cache")
}

func TestOrchestrator_UnknownRequestType(t *testing.T) {
	o := newTestOrchestrator(t)

	result := o.ReceiveRequest(context.Background(), "client", "reboot", nil)
	assert.Equal(t, false, result["success"])
	assert.Contains(t, result["error"], "unsupported request type")
}

func TestOrchestrator_AddDocumentFromInlineContent(t *testing.T) {
	o := newTestOrchestrator(t)

	result := o.ReceiveRequest(context.Background(), "client", RequestAddDocument, map[string]any{
		"content": "Inline content without a prebuilt document.",
		"id":      "inline-1",
	})
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "inline-1", result["document_id"])
	assert.Equal(t, 1, result["chunks_created"])
}

func TestOrchestrator_StaleOutcomeDiscarded(t *testing.T) {
	o := newTestOrchestrator(t)

	// An outcome for a task nobody is waiting on must be dropped, not
	// panic or block.
	stale := NewMessage(AgentStorage, OrchestratorID, MessageTaskComplete, map[string]any{
		"task_id": "long-gone",
		"result":  map[string]any{},
	})
	require.NoError(t, o.Dispatch(stale))
}

func TestOrchestrator_BroadcastExcludesSource(t *testing.T) {
	o := newTestOrchestrator(t)

	// Broadcast from storage: non-task messages are ignored by agents,
	// but delivery itself must not loop back to the source.
	msg := NewMessage(AgentStorage, Broadcast, MessageAgentStatus, nil)
	require.NoError(t, o.Dispatch(msg))
}
