package agent

import (
	"context"

	"github.com/kadirpekel/corpus/pkg/store"
)

// AgentStorage is the storage agent's id.
const AgentStorage = "storage"

// StorageAgent fronts the vector store provider.
type StorageAgent struct {
	*BaseAgent
	provider store.Provider
}

// NewStorageAgent creates the storage agent.
func NewStorageAgent(dispatcher Dispatcher, provider store.Provider) *StorageAgent {
	a := &StorageAgent{
		BaseAgent: NewBaseAgent(AgentStorage, dispatcher),
		provider:  provider,
	}
	a.RegisterTask("store_chunks", a.storeChunks)
	a.RegisterTask("delete_document", a.deleteDocument)
	a.RegisterTask("delete_chunks", a.deleteChunks)
	a.RegisterTask("stats", a.stats)
	return a
}

func (a *StorageAgent) storeChunks(ctx context.Context, params map[string]any) (map[string]any, error) {
	chunks, err := chunksParam(a.ID(), "store_chunks", params, "chunks")
	if err != nil {
		return nil, err
	}

	err = store.WithRetry(ctx, store.DefaultRetryAttempts, func() error {
		return a.provider.AddChunks(ctx, chunks)
	})
	if err != nil {
		return nil, NewAgentError(a.ID(), "store_chunks", "failed to store fragments", err)
	}
	return map[string]any{"stored": len(chunks)}, nil
}

func (a *StorageAgent) deleteDocument(ctx context.Context, params map[string]any) (map[string]any, error) {
	documentID, err := stringParam(a.ID(), "delete_document", params, "document_id")
	if err != nil {
		return nil, err
	}
	if err := a.provider.DeleteDocument(ctx, documentID); err != nil {
		return nil, NewAgentError(a.ID(), "delete_document", "failed to delete document", err)
	}
	return map[string]any{"document_id": documentID}, nil
}

func (a *StorageAgent) deleteChunks(ctx context.Context, params map[string]any) (map[string]any, error) {
	ids, ok := params["chunk_ids"].([]string)
	if !ok {
		return nil, NewAgentError(a.ID(), "delete_chunks", "missing required param: chunk_ids", nil)
	}
	if err := a.provider.DeleteChunks(ctx, ids); err != nil {
		return nil, NewAgentError(a.ID(), "delete_chunks", "failed to delete fragments", err)
	}
	return map[string]any{"deleted": len(ids)}, nil
}

func (a *StorageAgent) stats(ctx context.Context, params map[string]any) (map[string]any, error) {
	stats, err := a.provider.Stats(ctx)
	if err != nil {
		return nil, NewAgentError(a.ID(), "stats", "failed to read stats", err)
	}
	return stats, nil
}
