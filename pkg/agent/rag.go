package agent

import (
	"context"

	"github.com/kadirpekel/corpus/pkg/generation"
	"github.com/kadirpekel/corpus/pkg/kb"
)

// AgentRAG is the answer-generation agent's id.
const AgentRAG = "rag"

// RAGAgent turns retrieved fragments into cited answers.
type RAGAgent struct {
	*BaseAgent
	generator *generation.Generator
}

// NewRAGAgent creates the generation agent.
func NewRAGAgent(dispatcher Dispatcher, generator *generation.Generator) *RAGAgent {
	a := &RAGAgent{
		BaseAgent: NewBaseAgent(AgentRAG, dispatcher),
		generator: generator,
	}
	a.RegisterTask("generate", a.generate)
	return a
}

func (a *RAGAgent) generate(ctx context.Context, params map[string]any) (map[string]any, error) {
	query, err := stringParam(a.ID(), "generate", params, "query")
	if err != nil {
		return nil, err
	}
	sources, err := resultsParam(a.ID(), "generate", params, "sources")
	if err != nil {
		return nil, err
	}

	result, err := a.generator.AnswerWithCitations(ctx, query, sources)
	if err != nil {
		return nil, NewAgentError(a.ID(), "generate", "generation failed", err)
	}

	return map[string]any{
		"answer":     result.Answer,
		"citations":  result.Citations,
		"confidence": result.Confidence,
	}, nil
}

// Stream invokes the generator's streaming path directly, bypassing the
// mailbox: token streams are consumed by the caller, not routed as
// messages.
func (a *RAGAgent) Stream(ctx context.Context, query string, sources []*kb.RetrievalResult) (<-chan generation.StreamChunk, error) {
	return a.generator.AnswerStream(ctx, query, sources)
}
