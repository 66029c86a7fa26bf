// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package processor transforms documents into embedded, metadata-enriched
// chunks: type detection, format conversion, native binary parsing, and the
// chunk → extract → embed pipeline.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kadirpekel/corpus/pkg/chunking"
	"github.com/kadirpekel/corpus/pkg/embedder"
	"github.com/kadirpekel/corpus/pkg/kb"
	"github.com/kadirpekel/corpus/pkg/metadata"
)

// Config controls the processing pipeline.
type Config struct {
	// MaxConcurrentTasks bounds batch fan-out.
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks" mapstructure:"max_concurrent_tasks"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.MaxConcurrentTasks <= 0 {
		c.MaxConcurrentTasks = 4
	}
}

// Processor runs Chunker → MetadataExtractor → Embedder for documents.
type Processor struct {
	config    Config
	chunker   chunking.Chunker
	extractor *metadata.Extractor
	embedder  embedder.Embedder
	metrics   *Metrics
}

// New creates a processor. The extractor may be nil when metadata extraction
// is disabled.
func New(cfg Config, chunker chunking.Chunker, extractor *metadata.Extractor, emb embedder.Embedder) *Processor {
	cfg.SetDefaults()
	return &Processor{
		config:    cfg,
		chunker:   chunker,
		extractor: extractor,
		embedder:  emb,
		metrics:   NewMetrics(),
	}
}

// Metrics returns the pipeline metrics tracker.
func (p *Processor) Metrics() *Metrics { return p.metrics }

// Process transforms one document into embedded chunks.
func (p *Processor) Process(ctx context.Context, doc *kb.Document) (*kb.ChunkingResult, error) {
	start := time.Now()
	p.metrics.IncrementTotal()

	docMeta := kb.CloneMetadata(doc.Metadata)
	if p.extractor != nil {
		// Derived keys never shadow metadata the collection layer set.
		if extracted := p.extractor.ExtractDocument(doc); extracted != nil {
			docMeta = kb.MergeMetadata(extracted, docMeta)
		}
	}

	pieces, err := p.chunker.Chunk(doc.Content)
	if err != nil {
		p.metrics.IncrementErrors()
		return nil, NewProcessingError(doc.ID, "chunk", "chunking failed", err)
	}
	if len(pieces) == 0 {
		return &kb.ChunkingResult{DocumentID: doc.ID, Elapsed: time.Since(start)}, nil
	}

	chunks := make([]*kb.Chunk, len(pieces))
	texts := make([]string, len(pieces))
	for i, piece := range pieces {
		base := map[string]any{
			"document_id":   doc.ID,
			"chunk_index":   i,
			"chunk_count":   len(pieces),
			"document_type": string(doc.Type),
		}
		if doc.Source != "" {
			base["source"] = doc.Source
		}
		if p.extractor != nil {
			for k, v := range p.extractor.ExtractChunk(piece.Text) {
				base[k] = v
			}
		}

		meta := kb.MergeMetadata(base, docMeta)
		meta["document_id"] = doc.ID
		if p.extractor != nil {
			meta = p.extractor.PrepareForIndex(meta)
		}

		chunks[i] = &kb.Chunk{
			ID:         fmt.Sprintf("%s_chunk_%d", doc.ID, i),
			DocumentID: doc.ID,
			Text:       piece.Text,
			StartIndex: piece.Start,
			EndIndex:   piece.End,
			Metadata:   meta,
		}
		texts[i] = piece.Text
	}

	// One batch call regardless of chunk count; the embedder handles its own
	// API batching limits. A failed batch degrades to per-chunk embedding so
	// one bad fragment cannot sink the whole document.
	skipped := 0
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err == nil && len(vectors) != len(chunks) {
		err = fmt.Errorf("expected %d embeddings, got %d", len(chunks), len(vectors))
	}
	if err != nil {
		slog.Warn("batch embedding failed, retrying per chunk",
			"document_id", doc.ID, "error", err)
		chunks, skipped = p.embedPerChunk(ctx, doc.ID, chunks, texts)
		if len(chunks) == 0 {
			p.metrics.IncrementErrors()
			return nil, NewProcessingError(doc.ID, "embed", "batch embedding failed", err)
		}
	} else {
		for i, v := range vectors {
			chunks[i].Embedding = v
		}
	}

	p.metrics.IncrementProcessed()
	p.metrics.AddChunks(int64(len(chunks)))
	return &kb.ChunkingResult{
		DocumentID: doc.ID,
		Chunks:     chunks,
		Skipped:    skipped,
		Elapsed:    time.Since(start),
	}, nil
}

// embedPerChunk embeds each chunk individually, dropping the ones that
// fail. Renumbering is deliberately not done: chunk_index keeps its
// position in the original chunking.
func (p *Processor) embedPerChunk(ctx context.Context, docID string, chunks []*kb.Chunk, texts []string) ([]*kb.Chunk, int) {
	kept := make([]*kb.Chunk, 0, len(chunks))
	skipped := 0
	for i, ch := range chunks {
		vec, err := p.embedder.Embed(ctx, texts[i])
		if err != nil {
			skipped++
			slog.Error("fragment embedding failed, dropping fragment",
				"document_id", docID, "chunk_id", ch.ID, "error", err)
			continue
		}
		ch.Embedding = vec
		kept = append(kept, ch)
	}
	return kept, skipped
}

// ProcessBatch processes documents under a bounded semaphore. A document
// that fails is logged and skipped; the batch never fails as a whole. The
// returned results preserve input order with failed documents omitted.
func (p *Processor) ProcessBatch(ctx context.Context, docs []*kb.Document) []*kb.ChunkingResult {
	sem := semaphore.NewWeighted(int64(p.config.MaxConcurrentTasks))
	results := make([]*kb.ChunkingResult, len(docs))

	var wg sync.WaitGroup
	for i, doc := range docs {
		if err := sem.Acquire(ctx, 1); err != nil {
			slog.Warn("batch processing cancelled", "remaining", len(docs)-i, "error", err)
			break
		}
		wg.Add(1)
		go func(i int, doc *kb.Document) {
			defer wg.Done()
			defer sem.Release(1)

			result, err := p.Process(ctx, doc)
			if err != nil {
				p.metrics.IncrementSkipped()
				slog.Error("document processing failed, skipping",
					"document_id", doc.ID, "error", err)
				return
			}
			results[i] = result
		}(i, doc)
	}
	wg.Wait()

	out := make([]*kb.ChunkingResult, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
