package main

import (
	"context"
	"fmt"

	"github.com/kadirpekel/corpus/pkg/agent"
	"github.com/kadirpekel/corpus/pkg/chunking"
	"github.com/kadirpekel/corpus/pkg/config"
	"github.com/kadirpekel/corpus/pkg/embedder"
	"github.com/kadirpekel/corpus/pkg/generation"
	"github.com/kadirpekel/corpus/pkg/metadata"
	"github.com/kadirpekel/corpus/pkg/processor"
	"github.com/kadirpekel/corpus/pkg/retrieval"
	"github.com/kadirpekel/corpus/pkg/store"
)

// runtime assembles the full pipeline behind a started orchestrator.
type runtime struct {
	orchestrator *agent.Orchestrator
	provider     store.Provider
	embedder     embedder.Embedder
	model        generation.TextGenerator
}

// newRuntime builds and starts the pipeline from config. Callers must
// Close it.
func newRuntime(ctx context.Context, cfg *config.Config) (*runtime, error) {
	emb, err := embedder.New(cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	provider, err := store.New(cfg.Storage)
	if err != nil {
		emb.Close()
		return nil, fmt.Errorf("failed to create storage provider: %w", err)
	}
	if err := provider.Initialize(ctx); err != nil {
		emb.Close()
		return nil, fmt.Errorf("failed to initialize storage provider: %w", err)
	}

	model, err := generation.NewModel(cfg.Generation.Model)
	if err != nil {
		provider.Close()
		emb.Close()
		return nil, fmt.Errorf("failed to create text generator: %w", err)
	}

	chunker := chunking.New(cfg.Chunking.Chunker)
	extractor := metadata.NewExtractor(cfg.Chunking.Metadata)
	proc := processor.New(cfg.Processor, chunker, extractor, emb)
	retriever := retrieval.New(cfg.Retrieval, emb, provider)
	generator := generation.New(cfg.Generation.Answer, model)

	orchestrator := agent.NewOrchestrator(cfg.Orchestrator, proc, provider, retriever, generator)
	if err := orchestrator.Start(ctx); err != nil {
		model.Close()
		provider.Close()
		emb.Close()
		return nil, fmt.Errorf("failed to start orchestrator: %w", err)
	}

	return &runtime{
		orchestrator: orchestrator,
		provider:     provider,
		embedder:     emb,
		model:        model,
	}, nil
}

// Close stops the agents and releases provider and client resources.
func (r *runtime) Close() {
	_ = r.orchestrator.Stop()
	_ = r.model.Close()
	_ = r.provider.Close()
	_ = r.embedder.Close()
}
