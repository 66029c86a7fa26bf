package agent

import (
	"context"
	"os"

	"github.com/kadirpekel/corpus/pkg/kb"
	"github.com/kadirpekel/corpus/pkg/processor"
)

// AgentCollection is the collection agent's id.
const AgentCollection = "collection"

// CollectionAgent turns raw inputs (inline content, file paths) into
// documents, detecting type and parsing binary formats.
type CollectionAgent struct {
	*BaseAgent
	parsers *processor.ParserRegistry
}

// NewCollectionAgent creates the collection agent.
func NewCollectionAgent(dispatcher Dispatcher) *CollectionAgent {
	a := &CollectionAgent{
		BaseAgent: NewBaseAgent(AgentCollection, dispatcher),
		parsers:   processor.NewParserRegistry(),
	}
	a.RegisterTask("collect_document", a.collectDocument)
	a.RegisterTask("collect_file", a.collectFile)
	return a
}

// collectDocument builds a document from inline content.
func (a *CollectionAgent) collectDocument(ctx context.Context, params map[string]any) (map[string]any, error) {
	content, err := stringParam(a.ID(), "collect_document", params, "content")
	if err != nil {
		return nil, err
	}

	id, _ := params["id"].(string)
	docType := processor.DetectType("", "", content)
	if t, ok := params["type"].(string); ok && t != "" {
		docType = kb.ParseDocumentType(t)
	}

	doc := kb.NewDocument(id, content, docType)
	if source, ok := params["source"].(string); ok {
		doc.Source = source
	}
	if meta, ok := params["metadata"].(map[string]any); ok {
		doc.Metadata = kb.CloneMetadata(meta)
	}
	return map[string]any{"document": doc}, nil
}

// collectFile builds a document from a file on disk, routing binary
// formats through the native parsers.
func (a *CollectionAgent) collectFile(ctx context.Context, params map[string]any) (map[string]any, error) {
	path, err := stringParam(a.ID(), "collect_file", params, "path")
	if err != nil {
		return nil, err
	}

	if a.parsers.CanParse(path) {
		doc, err := a.parsers.ParseFile(ctx, path)
		if err != nil {
			return nil, NewAgentError(a.ID(), "collect_file", "failed to parse file", err)
		}
		return map[string]any{"document": doc}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewAgentError(a.ID(), "collect_file", "failed to read file", err)
	}

	content := string(data)
	doc := kb.NewDocument(path, content, processor.DetectType("", path, content))
	doc.Source = path
	return map[string]any{"document": doc}, nil
}
