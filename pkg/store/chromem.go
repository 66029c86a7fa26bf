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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/kadirpekel/corpus/pkg/kb"
)

// ChromemProvider adapts chromem-go, an embedded pure-Go vector database
// with optional gob persistence. Similarity search runs inside chromem;
// id-based lookups go through a local mirror because chromem does not
// expose document iteration. The mirror is not restored across restarts.
type ChromemProvider struct {
	config Config
	db     *chromem.DB

	mu     sync.RWMutex
	col    *chromem.Collection
	mirror map[string]*kb.Chunk
	byDoc  map[string][]string
}

// NewChromemProvider creates a chromem-backed provider.
func NewChromemProvider(cfg Config) (*ChromemProvider, error) {
	cfg.SetDefaults()

	var db *chromem.DB
	if cfg.PersistenceEnabled && cfg.PersistencePath != "" {
		if err := os.MkdirAll(cfg.PersistencePath, 0o755); err != nil {
			return nil, NewStorageError("chromem", "init", KindOperation,
				"failed to create persistence directory", err)
		}
		var err error
		db, err = chromem.NewPersistentDB(cfg.PersistencePath, false)
		if err != nil {
			slog.Warn("failed to open persistent vector database, starting empty",
				"path", cfg.PersistencePath, "error", err)
			db = chromem.NewDB()
		}
	} else {
		db = chromem.NewDB()
	}

	return &ChromemProvider{
		config: cfg,
		db:     db,
		mirror: make(map[string]*kb.Chunk),
		byDoc:  make(map[string][]string),
	}, nil
}

// Initialize opens the collection.
func (p *ChromemProvider) Initialize(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Embeddings are always pre-computed; chromem must never embed.
	noEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("embedding function called but vectors are pre-computed")
	}
	col, err := p.db.GetOrCreateCollection(p.config.Collection, nil, noEmbed)
	if err != nil {
		return NewStorageError("chromem", "init", KindOperation,
			fmt.Sprintf("failed to open collection %q", p.config.Collection), err)
	}
	p.col = col
	return nil
}

// Close is a no-op; the persistent DB writes through on mutation.
func (p *ChromemProvider) Close() error { return nil }

// AddChunks stores chunks as chromem documents with pre-computed embeddings.
func (p *ChromemProvider) AddChunks(ctx context.Context, chunks []*kb.Chunk) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	docs := make([]chromem.Document, 0, len(chunks))
	for _, ch := range chunks {
		if len(ch.Embedding) == 0 {
			slog.Warn("skipping chunk without embedding", "chunk_id", ch.ID)
			continue
		}
		meta, err := chromemMetadata(ch)
		if err != nil {
			return NewStorageError("chromem", "add_chunks", KindOperation,
				fmt.Sprintf("failed to encode metadata for %s", ch.ID), err)
		}
		docs = append(docs, chromem.Document{
			ID:        ch.ID,
			Content:   ch.Text,
			Metadata:  meta,
			Embedding: ch.Embedding,
		})
	}
	if len(docs) == 0 {
		return nil
	}

	if err := p.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return NewStorageError("chromem", "add_chunks", KindOperation,
			"failed to add documents", err)
	}

	for _, ch := range chunks {
		if len(ch.Embedding) == 0 {
			continue
		}
		if _, exists := p.mirror[ch.ID]; !exists {
			p.byDoc[ch.DocumentID] = append(p.byDoc[ch.DocumentID], ch.ID)
		}
		p.mirror[ch.ID] = ch.Clone()
	}
	return nil
}

// GetChunk returns a chunk from the mirror, or (nil, nil) when absent.
func (p *ChromemProvider) GetChunk(ctx context.Context, id string) (*kb.Chunk, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ch, ok := p.mirror[id]
	if !ok {
		return nil, nil
	}
	return ch.Clone(), nil
}

// GetChunks returns the chunks for the given ids, omitting missing ones.
func (p *ChromemProvider) GetChunks(ctx context.Context, ids []string) ([]*kb.Chunk, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*kb.Chunk, 0, len(ids))
	for _, id := range ids {
		if ch, ok := p.mirror[id]; ok {
			out = append(out, ch.Clone())
		}
	}
	return out, nil
}

// GetDocumentChunks returns a document's chunks in insertion order.
func (p *ChromemProvider) GetDocumentChunks(ctx context.Context, documentID string) ([]*kb.Chunk, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*kb.Chunk, 0, len(p.byDoc[documentID]))
	for _, id := range p.byDoc[documentID] {
		if ch, ok := p.mirror[id]; ok {
			out = append(out, ch.Clone())
		}
	}
	return out, nil
}

// SearchSimilar queries chromem with the pre-computed vector.
func (p *ChromemProvider) SearchSimilar(ctx context.Context, queryVector []float32, opts SearchOptions) ([]kb.RetrievalResult, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if opts.TopK <= 0 {
		return nil, nil
	}
	n := opts.TopK
	if count := p.col.Count(); n > count {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	var where map[string]string
	if len(opts.Filters) > 0 {
		where = make(map[string]string, len(opts.Filters))
		for k, v := range opts.Filters {
			where[k] = kb.StringifyValue(v)
		}
	}

	hits, err := p.col.QueryEmbedding(ctx, queryVector, n, where, nil)
	if err != nil {
		return nil, NewStorageError("chromem", "search_similar", KindOperation,
			"query failed", err)
	}

	results := make([]kb.RetrievalResult, 0, len(hits))
	for rank, hit := range hits {
		score := float64(hit.Similarity)
		if score < opts.MinScore {
			continue
		}
		if score < 0 {
			score = 0
		} else if score > 1 {
			score = 1
		}
		results = append(results, kb.RetrievalResult{
			Chunk: p.chunkFromResult(hit),
			Score: score,
			Rank:  rank,
		})
	}
	return results, nil
}

// KeywordSearch is not supported by chromem; it returns no results.
func (p *ChromemProvider) KeywordSearch(ctx context.Context, query string, opts SearchOptions) ([]kb.RetrievalResult, error) {
	slog.Warn("keyword search is not supported by the chromem provider")
	return nil, nil
}

// DeleteChunks removes chunks by id.
func (p *ChromemProvider) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.col.Delete(ctx, nil, nil, ids...); err != nil {
		return NewStorageError("chromem", "delete_chunks", KindOperation,
			"failed to delete documents", err)
	}
	for _, id := range ids {
		if ch, ok := p.mirror[id]; ok {
			p.byDoc[ch.DocumentID] = removeID(p.byDoc[ch.DocumentID], id)
			if len(p.byDoc[ch.DocumentID]) == 0 {
				delete(p.byDoc, ch.DocumentID)
			}
			delete(p.mirror, id)
		}
	}
	return nil
}

// DeleteDocument removes all chunks carrying the document id.
func (p *ChromemProvider) DeleteDocument(ctx context.Context, documentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.col.Delete(ctx, map[string]string{"document_id": documentID}, nil); err != nil {
		return NewStorageError("chromem", "delete_document", KindOperation,
			"failed to delete by filter", err)
	}
	for _, id := range p.byDoc[documentID] {
		delete(p.mirror, id)
	}
	delete(p.byDoc, documentID)
	return nil
}

// Clear drops and recreates the collection.
func (p *ChromemProvider) Clear(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.db.DeleteCollection(p.config.Collection); err != nil {
		return NewStorageError("chromem", "clear", KindOperation,
			"failed to delete collection", err)
	}
	noEmbed := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("embedding function called but vectors are pre-computed")
	}
	col, err := p.db.GetOrCreateCollection(p.config.Collection, nil, noEmbed)
	if err != nil {
		return NewStorageError("chromem", "clear", KindOperation,
			"failed to recreate collection", err)
	}
	p.col = col
	p.mirror = make(map[string]*kb.Chunk)
	p.byDoc = make(map[string][]string)
	return nil
}

// UpdateMetadata merges metadata into the mirrored chunk and rewrites the
// chromem document.
func (p *ChromemProvider) UpdateMetadata(ctx context.Context, id string, md map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.mirror[id]
	if !ok {
		return NewStorageError("chromem", "update_metadata", KindNotFound,
			fmt.Sprintf("chunk %s not found", id), nil)
	}
	ch.Metadata = kb.MergeMetadata(ch.Metadata, md)

	meta, err := chromemMetadata(ch)
	if err != nil {
		return NewStorageError("chromem", "update_metadata", KindOperation,
			"failed to encode metadata", err)
	}
	doc := chromem.Document{
		ID:        ch.ID,
		Content:   ch.Text,
		Metadata:  meta,
		Embedding: ch.Embedding,
	}
	if err := p.col.AddDocuments(ctx, []chromem.Document{doc}, 1); err != nil {
		return NewStorageError("chromem", "update_metadata", KindOperation,
			"failed to rewrite document", err)
	}
	return nil
}

// Stats returns store counters.
func (p *ChromemProvider) Stats(ctx context.Context) (map[string]any, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]any{
		"provider":        p.Name(),
		"total_chunks":    p.col.Count(),
		"total_documents": len(p.byDoc),
		"collection":      p.config.Collection,
	}, nil
}

// Name identifies the provider.
func (p *ChromemProvider) Name() string { return "chromem" }

// Ensure ChromemProvider implements Provider.
var _ Provider = (*ChromemProvider)(nil)

// chromemMetadata flattens chunk fields into chromem's string-valued
// metadata, with the full metadata preserved as JSON.
func chromemMetadata(ch *kb.Chunk) (map[string]string, error) {
	meta := map[string]string{
		"document_id": ch.DocumentID,
		"start_index": strconv.Itoa(ch.StartIndex),
		"end_index":   strconv.Itoa(ch.EndIndex),
	}
	for k, v := range ch.Metadata {
		if kb.IsIndexableValue(v) {
			meta[k] = kb.StringifyValue(v)
		}
	}
	if len(ch.Metadata) > 0 {
		blob, err := json.Marshal(ch.Metadata)
		if err != nil {
			return nil, err
		}
		meta["metadata_json"] = string(blob)
	}
	return meta, nil
}

// chunkFromResult reconstructs a chunk from a chromem hit, preferring the
// mirror copy when available. Caller holds at least the read lock.
func (p *ChromemProvider) chunkFromResult(hit chromem.Result) *kb.Chunk {
	if ch, ok := p.mirror[hit.ID]; ok {
		return ch.Clone()
	}

	ch := &kb.Chunk{
		ID:         hit.ID,
		DocumentID: hit.Metadata["document_id"],
		Text:       hit.Content,
		Embedding:  hit.Embedding,
	}
	ch.StartIndex, _ = strconv.Atoi(hit.Metadata["start_index"])
	ch.EndIndex, _ = strconv.Atoi(hit.Metadata["end_index"])
	if blob, ok := hit.Metadata["metadata_json"]; ok {
		_ = json.Unmarshal([]byte(blob), &ch.Metadata)
	}
	return ch
}

func init() {
	_ = RegisterProvider("chromem", func(cfg Config) (Provider, error) {
		return NewChromemProvider(cfg)
	})
}
