package agent

import (
	"context"

	"github.com/kadirpekel/corpus/pkg/processor"
)

// AgentProcessing is the processing agent's id.
const AgentProcessing = "processing"

// ProcessingAgent runs the chunk → extract → embed pipeline.
type ProcessingAgent struct {
	*BaseAgent
	processor *processor.Processor
}

// NewProcessingAgent creates the processing agent.
func NewProcessingAgent(dispatcher Dispatcher, proc *processor.Processor) *ProcessingAgent {
	a := &ProcessingAgent{
		BaseAgent: NewBaseAgent(AgentProcessing, dispatcher),
		processor: proc,
	}
	a.RegisterTask("process_document", a.processDocument)
	return a
}

// processDocument turns one document into embedded fragments. Fragments
// that fail individually are dropped and counted, not fatal.
func (a *ProcessingAgent) processDocument(ctx context.Context, params map[string]any) (map[string]any, error) {
	doc, err := documentParam(a.ID(), "process_document", params, "document")
	if err != nil {
		return nil, err
	}

	result, err := a.processor.Process(ctx, doc)
	if err != nil {
		return nil, NewAgentError(a.ID(), "process_document", "processing failed", err)
	}

	return map[string]any{
		"document_id":    result.DocumentID,
		"chunks":         result.Chunks,
		"chunks_created": len(result.Chunks),
		"skipped":        result.Skipped,
	}, nil
}
