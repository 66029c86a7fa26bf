package agent

import (
	"context"

	"github.com/kadirpekel/corpus/pkg/retrieval"
	"github.com/kadirpekel/corpus/pkg/store"
)

// AgentMaintenance is the maintenance agent's id.
const AgentMaintenance = "maintenance"

// MaintenanceAgent performs housekeeping: cache invalidation and store
// statistics collection.
type MaintenanceAgent struct {
	*BaseAgent
	provider  store.Provider
	retriever *retrieval.Retriever
}

// NewMaintenanceAgent creates the maintenance agent.
func NewMaintenanceAgent(dispatcher Dispatcher, provider store.Provider, retriever *retrieval.Retriever) *MaintenanceAgent {
	a := &MaintenanceAgent{
		BaseAgent: NewBaseAgent(AgentMaintenance, dispatcher),
		provider:  provider,
		retriever: retriever,
	}
	a.RegisterTask("maintain", a.maintain)
	return a
}

// maintain invalidates the retrieval cache and reports store and cache
// statistics.
func (a *MaintenanceAgent) maintain(ctx context.Context, params map[string]any) (map[string]any, error) {
	a.retriever.InvalidateCache()

	stats, err := a.provider.Stats(ctx)
	if err != nil {
		return nil, NewAgentError(a.ID(), "maintain", "failed to read store stats", err)
	}

	result := map[string]any{"store": stats}
	if cacheStats := a.retriever.CacheStats(); cacheStats != nil {
		result["cache"] = cacheStats
	}
	return result, nil
}
