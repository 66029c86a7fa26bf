package agent

import (
	"context"

	"github.com/kadirpekel/corpus/pkg/retrieval"
	"github.com/kadirpekel/corpus/pkg/store"
)

// AgentRetrieval is the retrieval agent's id.
const AgentRetrieval = "retrieval"

// RetrievalAgent answers retrieve tasks through the cached retriever.
type RetrievalAgent struct {
	*BaseAgent
	retriever *retrieval.Retriever
}

// NewRetrievalAgent creates the retrieval agent.
func NewRetrievalAgent(dispatcher Dispatcher, retriever *retrieval.Retriever) *RetrievalAgent {
	a := &RetrievalAgent{
		BaseAgent: NewBaseAgent(AgentRetrieval, dispatcher),
		retriever: retriever,
	}
	a.RegisterTask("retrieve", a.retrieve)
	a.RegisterTask("invalidate_cache", a.invalidateCache)
	return a
}

func (a *RetrievalAgent) retrieve(ctx context.Context, params map[string]any) (map[string]any, error) {
	query, err := stringParam(a.ID(), "retrieve", params, "query")
	if err != nil {
		return nil, err
	}

	results, err := a.retriever.Retrieve(ctx, query, store.SearchOptions{
		TopK:    intParam(params, "top_k"),
		Filters: filtersParam(params, "filters"),
	})
	if err != nil {
		return nil, NewAgentError(a.ID(), "retrieve", "retrieval failed", err)
	}
	return map[string]any{"results": results, "count": len(results)}, nil
}

func (a *RetrievalAgent) invalidateCache(ctx context.Context, params map[string]any) (map[string]any, error) {
	a.retriever.InvalidateCache()
	return map[string]any{"invalidated": true}, nil
}

// Invalidate drops cached retrieval results. Called synchronously by the
// orchestrator after mutations; going through the mailbox would race the
// next query.
func (a *RetrievalAgent) Invalidate() {
	a.retriever.InvalidateCache()
}
