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

package store

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kadirpekel/corpus/pkg/kb"
	"github.com/kadirpekel/corpus/pkg/metadata"
)

// MemoryProvider is the reference in-memory provider.
//
// State is four structures: chunks by id, a parallel vector map (search
// ranks without dereferencing chunks), a document -> ordered chunk ids
// index, and a metadata key -> stringified value -> ids index for filtered
// retrieval.
type MemoryProvider struct {
	config Config

	mu             sync.RWMutex
	chunks         map[string]*kb.Chunk
	vectors        map[string][]float32
	documentChunks map[string][]string
	metadataIndex  map[string]map[string][]string

	lastSave time.Time
	metrics  *Metrics
}

// NewMemoryProvider creates an in-memory provider.
func NewMemoryProvider(cfg Config) *MemoryProvider {
	cfg.SetDefaults()
	return &MemoryProvider{
		config:         cfg,
		chunks:         make(map[string]*kb.Chunk),
		vectors:        make(map[string][]float32),
		documentChunks: make(map[string][]string),
		metadataIndex:  make(map[string]map[string][]string),
		metrics:        sharedMetrics(),
	}
}

// Initialize loads persisted state when persistence is enabled and all
// state files are present.
func (p *MemoryProvider) Initialize(ctx context.Context) error {
	if !p.config.PersistenceEnabled {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadLocked()
}

// Close saves state when persistence is enabled.
func (p *MemoryProvider) Close() error {
	if !p.config.PersistenceEnabled {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saveLocked()
}

// AddChunks inserts chunks into all four structures. Re-adding an existing
// id overwrites it (latest write wins) without growing the store. Chunks
// without embeddings are skipped with a warning.
func (p *MemoryProvider) AddChunks(ctx context.Context, chunks []*kb.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	added := 0
	for _, ch := range chunks {
		if _, exists := p.chunks[ch.ID]; !exists && len(ch.Embedding) > 0 {
			added++
		}
	}
	if len(p.chunks)+added > p.config.MaxChunks {
		return NewStorageError(p.Name(), "add_chunks", KindOperation,
			fmt.Sprintf("store is full: %d existing + %d new exceeds max_chunks %d",
				len(p.chunks), added, p.config.MaxChunks), nil)
	}

	for _, ch := range chunks {
		if len(ch.Embedding) == 0 {
			slog.Warn("skipping chunk without embedding", "chunk_id", ch.ID)
			continue
		}
		p.insertLocked(ch)
	}
	p.metrics.addChunks(float64(added))
	p.maybeAutoSaveLocked()
	return nil
}

// insertLocked places one chunk into all four structures, replacing any
// previous entry with the same id.
func (p *MemoryProvider) insertLocked(ch *kb.Chunk) {
	if old, exists := p.chunks[ch.ID]; exists {
		p.unindexLocked(old)
	}

	stored := ch.Clone()
	p.chunks[ch.ID] = stored

	vec := make([]float32, len(ch.Embedding))
	copy(vec, ch.Embedding)
	p.vectors[ch.ID] = vec

	ids := p.documentChunks[ch.DocumentID]
	found := false
	for _, id := range ids {
		if id == ch.ID {
			found = true
			break
		}
	}
	if !found {
		p.documentChunks[ch.DocumentID] = append(ids, ch.ID)
	}

	p.indexLocked(stored)
}

func (p *MemoryProvider) indexLocked(ch *kb.Chunk) {
	for key, value := range ch.Metadata {
		if !kb.IsIndexableValue(value) {
			continue
		}
		sv := kb.StringifyValue(value)
		bucket := p.metadataIndex[key]
		if bucket == nil {
			bucket = make(map[string][]string)
			p.metadataIndex[key] = bucket
		}
		bucket[sv] = append(bucket[sv], ch.ID)
	}
}

func (p *MemoryProvider) unindexLocked(ch *kb.Chunk) {
	for key, value := range ch.Metadata {
		if !kb.IsIndexableValue(value) {
			continue
		}
		sv := kb.StringifyValue(value)
		bucket := p.metadataIndex[key]
		if bucket == nil {
			continue
		}
		bucket[sv] = removeID(bucket[sv], ch.ID)
		if len(bucket[sv]) == 0 {
			delete(bucket, sv)
		}
		if len(bucket) == 0 {
			delete(p.metadataIndex, key)
		}
	}
}

// GetChunk returns a copy of the chunk, or (nil, nil) when absent.
func (p *MemoryProvider) GetChunk(ctx context.Context, id string) (*kb.Chunk, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ch, ok := p.chunks[id]
	if !ok {
		return nil, nil
	}
	return ch.Clone(), nil
}

// GetChunks returns copies of the chunks for the given ids, omitting
// missing ones.
func (p *MemoryProvider) GetChunks(ctx context.Context, ids []string) ([]*kb.Chunk, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*kb.Chunk, 0, len(ids))
	for _, id := range ids {
		if ch, ok := p.chunks[id]; ok {
			out = append(out, ch.Clone())
		}
	}
	return out, nil
}

// GetDocumentChunks returns a document's chunks in insertion order.
func (p *MemoryProvider) GetDocumentChunks(ctx context.Context, documentID string) ([]*kb.Chunk, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ids := p.documentChunks[documentID]
	out := make([]*kb.Chunk, 0, len(ids))
	for _, id := range ids {
		if ch, ok := p.chunks[id]; ok {
			out = append(out, ch.Clone())
		}
	}
	return out, nil
}

// SearchSimilar ranks candidate chunks by cosine similarity.
func (p *MemoryProvider) SearchSimilar(ctx context.Context, queryVector []float32, opts SearchOptions) ([]kb.RetrievalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	p.mu.RLock()
	defer p.mu.RUnlock()

	candidates := p.candidatesLocked(opts.Filters)

	type scored struct {
		id    string
		score float64
	}
	hits := make([]scored, 0, len(candidates))
	for _, id := range candidates {
		vec, ok := p.vectors[id]
		if !ok {
			continue
		}
		score := CosineSimilarity(queryVector, vec)
		if score >= opts.MinScore {
			hits = append(hits, scored{id: id, score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})
	if opts.TopK < len(hits) {
		hits = hits[:max(opts.TopK, 0)]
	}

	// Dereference chunks only after ranking.
	results := make([]kb.RetrievalResult, 0, len(hits))
	for rank, h := range hits {
		results = append(results, kb.RetrievalResult{
			Chunk: p.chunks[h.id].Clone(),
			Score: h.score,
			Rank:  rank,
		})
	}

	p.metrics.observeSearch(time.Since(start))
	return results, nil
}

// KeywordSearch ranks candidates by query term frequency, normalized so the
// best match scores 1.0.
func (p *MemoryProvider) KeywordSearch(ctx context.Context, query string, opts SearchOptions) ([]kb.RetrievalResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	terms := metadata.Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	type scored struct {
		id  string
		raw float64
	}
	var hits []scored
	for _, id := range p.candidatesLocked(opts.Filters) {
		ch, ok := p.chunks[id]
		if !ok {
			continue
		}
		text := strings.ToLower(ch.Text)
		raw := 0.0
		for _, term := range terms {
			raw += float64(strings.Count(text, term))
		}
		if raw > 0 {
			hits = append(hits, scored{id: id, raw: raw})
		}
	}
	if len(hits) == 0 {
		return nil, nil
	}

	maxRaw := 0.0
	for _, h := range hits {
		if h.raw > maxRaw {
			maxRaw = h.raw
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].raw != hits[j].raw {
			return hits[i].raw > hits[j].raw
		}
		return hits[i].id < hits[j].id
	})
	if opts.TopK < len(hits) {
		hits = hits[:max(opts.TopK, 0)]
	}

	results := make([]kb.RetrievalResult, 0, len(hits))
	for rank, h := range hits {
		results = append(results, kb.RetrievalResult{
			Chunk: p.chunks[h.id].Clone(),
			Score: h.raw / maxRaw,
			Rank:  rank,
		})
	}

	p.metrics.observeSearch(time.Since(start))
	return results, nil
}

// candidatesLocked intersects filter-derived id sets; no filters means all
// ids. The filter key document_id resolves through the document index.
func (p *MemoryProvider) candidatesLocked(filters map[string]any) []string {
	if len(filters) == 0 {
		all := make([]string, 0, len(p.chunks))
		for id := range p.chunks {
			all = append(all, id)
		}
		sort.Strings(all)
		return all
	}

	var result map[string]bool
	for key, value := range filters {
		var ids []string
		if key == "document_id" {
			ids = p.documentChunks[kb.StringifyValue(value)]
		} else if bucket := p.metadataIndex[key]; bucket != nil {
			ids = bucket[kb.StringifyValue(value)]
		}

		set := make(map[string]bool, len(ids))
		for _, id := range ids {
			set[id] = true
		}
		if result == nil {
			result = set
			continue
		}
		for id := range result {
			if !set[id] {
				delete(result, id)
			}
		}
		if len(result) == 0 {
			return nil
		}
	}

	out := make([]string, 0, len(result))
	for id := range result {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// DeleteChunks removes chunks from all four structures, trimming empty
// index buckets.
func (p *MemoryProvider) DeleteChunks(ctx context.Context, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	deleted := 0
	for _, id := range ids {
		ch, ok := p.chunks[id]
		if !ok {
			continue
		}
		p.unindexLocked(ch)
		delete(p.chunks, id)
		delete(p.vectors, id)

		p.documentChunks[ch.DocumentID] = removeID(p.documentChunks[ch.DocumentID], id)
		if len(p.documentChunks[ch.DocumentID]) == 0 {
			delete(p.documentChunks, ch.DocumentID)
		}
		deleted++
	}
	p.metrics.deleteChunks(float64(deleted))
	p.maybeAutoSaveLocked()
	return nil
}

// DeleteDocument removes all chunks belonging to a document.
func (p *MemoryProvider) DeleteDocument(ctx context.Context, documentID string) error {
	p.mu.RLock()
	ids := append([]string(nil), p.documentChunks[documentID]...)
	p.mu.RUnlock()

	return p.DeleteChunks(ctx, ids)
}

// Clear removes everything, including persisted files.
func (p *MemoryProvider) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.chunks = make(map[string]*kb.Chunk)
	p.vectors = make(map[string][]float32)
	p.documentChunks = make(map[string][]string)
	p.metadataIndex = make(map[string]map[string][]string)

	if p.config.PersistenceEnabled {
		return p.removeStateFiles()
	}
	return nil
}

// UpdateMetadata merges metadata into a chunk and reindexes it.
func (p *MemoryProvider) UpdateMetadata(ctx context.Context, id string, md map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.chunks[id]
	if !ok {
		return NewStorageError(p.Name(), "update_metadata", KindNotFound,
			fmt.Sprintf("chunk %s not found", id), nil)
	}

	p.unindexLocked(ch)
	ch.Metadata = kb.MergeMetadata(ch.Metadata, md)
	p.indexLocked(ch)
	return nil
}

// Stats returns store counters.
func (p *MemoryProvider) Stats(ctx context.Context) (map[string]any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]any{
		"provider":            p.Name(),
		"total_chunks":        len(p.chunks),
		"total_documents":     len(p.documentChunks),
		"max_chunks":          p.config.MaxChunks,
		"indexed_keys":        len(p.metadataIndex),
		"persistence_enabled": p.config.PersistenceEnabled,
	}, nil
}

// Name identifies the provider.
func (p *MemoryProvider) Name() string { return "memory" }

// Ensure MemoryProvider implements Provider.
var _ Provider = (*MemoryProvider)(nil)

// CosineSimilarity computes dot(a,b)/(|a|*|b|), clamped to [0,1]. Length
// mismatch or a zero magnitude yields 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}

	score := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}

func init() {
	_ = RegisterProvider("memory", func(cfg Config) (Provider, error) {
		return NewMemoryProvider(cfg), nil
	})
}
