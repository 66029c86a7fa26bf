package agent

import (
	"github.com/mitchellh/mapstructure"

	"github.com/kadirpekel/corpus/pkg/kb"
)

// stringParam extracts a required string param.
func stringParam(agent, task string, params map[string]any, key string) (string, error) {
	value, ok := params[key].(string)
	if !ok || value == "" {
		return "", NewAgentError(agent, task, "missing required param: "+key, nil)
	}
	return value, nil
}

// intParam extracts an optional int param, tolerating the float64 that
// JSON decoding produces.
func intParam(params map[string]any, key string) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// documentParam extracts a document, accepting either a typed value or a
// plain map (e.g. a decoded JSON request body).
func documentParam(agent, task string, params map[string]any, key string) (*kb.Document, error) {
	switch v := params[key].(type) {
	case *kb.Document:
		return v, nil
	case kb.Document:
		return &v, nil
	case map[string]any:
		var doc kb.Document
		if err := mapstructure.Decode(v, &doc); err != nil {
			return nil, NewAgentError(agent, task, "malformed document param", err)
		}
		return &doc, nil
	}
	return nil, NewAgentError(agent, task, "missing required param: "+key, nil)
}

// chunksParam extracts a fragment list.
func chunksParam(agent, task string, params map[string]any, key string) ([]*kb.Chunk, error) {
	if chunks, ok := params[key].([]*kb.Chunk); ok {
		return chunks, nil
	}
	return nil, NewAgentError(agent, task, "missing required param: "+key, nil)
}

// resultsParam extracts a retrieval result list.
func resultsParam(agent, task string, params map[string]any, key string) ([]*kb.RetrievalResult, error) {
	if results, ok := params[key].([]*kb.RetrievalResult); ok {
		return results, nil
	}
	return nil, NewAgentError(agent, task, "missing required param: "+key, nil)
}

// filtersParam extracts an optional filter map.
func filtersParam(params map[string]any, key string) map[string]any {
	filters, _ := params[key].(map[string]any)
	return filters
}
