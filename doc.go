// Package corpus provides a retrieval-augmented knowledge base.
//
// Corpus ingests documents, splits them into overlapping fragments,
// embeds the fragments, and stores them in a vector store. Queries are
// answered by retrieving the most similar fragments and generating a
// cited answer with an external language model.
//
// # Quick Start
//
// Install the CLI:
//
//	go install github.com/kadirpekel/corpus/cmd/corpus@latest
//
// Ingest documents and ask questions:
//
//	corpus ingest docs/*.md
//	corpus query "how does chunk overlap work?"
//
// Configuration is a single YAML file:
//
//	chunking:
//	  strategy: sentence
//	  chunk_size: 1000
//	  chunk_overlap: 200
//	embedding:
//	  provider: ollama
//	  model: nomic-embed-text
//	storage:
//	  provider: memory
//	  persistence_enabled: true
//	  persistence_path: .corpus
//	generation:
//	  include_citations: true
//	  provider: ollama
//	  model: llama3.2
//
// # Using as a Go Library
//
// Import the packages you need:
//
//	import (
//	    "github.com/kadirpekel/corpus/pkg/agent"
//	    "github.com/kadirpekel/corpus/pkg/config"
//	    "github.com/kadirpekel/corpus/pkg/store"
//	)
//
// The agent.Orchestrator is the main entry point: it owns specialist
// agents for collection, processing, storage, retrieval, generation,
// and maintenance, and exposes a single ReceiveRequest API.
package corpus
