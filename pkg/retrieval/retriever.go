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

package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/kadirpekel/corpus/pkg/embedder"
	"github.com/kadirpekel/corpus/pkg/kb"
	"github.com/kadirpekel/corpus/pkg/store"
)

// Weights for merging vector and keyword scores in hybrid mode.
const (
	vectorWeight  = 0.7
	keywordWeight = 0.3
)

// Config controls retrieval behavior.
type Config struct {
	TopK     int     `yaml:"top_k" mapstructure:"top_k"`
	MinScore float64 `yaml:"min_score" mapstructure:"min_score"`
	Hybrid   bool    `yaml:"hybrid" mapstructure:"hybrid"`

	CacheEnabled bool    `yaml:"cache_enabled" mapstructure:"cache_enabled"`
	CacheTTL     float64 `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	CacheSize    int     `yaml:"cache_size" mapstructure:"cache_size"`

	// Timeout in seconds applied per external call.
	Timeout int `yaml:"timeout" mapstructure:"timeout"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.TopK <= 0 {
		c.TopK = 5
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 300
	}
	if c.CacheSize <= 0 {
		c.CacheSize = 100
	}
	if c.Timeout <= 0 {
		c.Timeout = 30
	}
}

// Retriever answers queries from a vector store, embedding the query and
// caching ranked results by request fingerprint.
type Retriever struct {
	config   Config
	embedder embedder.Embedder
	provider store.Provider
	cache    *Cache
}

// New creates a retriever.
func New(cfg Config, emb embedder.Embedder, provider store.Provider) *Retriever {
	cfg.SetDefaults()

	var cache *Cache
	if cfg.CacheEnabled {
		cache = NewCache(cfg.CacheSize, time.Duration(cfg.CacheTTL*float64(time.Second)))
	}

	return &Retriever{
		config:   cfg,
		embedder: emb,
		provider: provider,
		cache:    cache,
	}
}

// Retrieve returns the ranked fragments for query. A zero TopK in opts
// falls back to the configured default.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts store.SearchOptions) ([]*kb.RetrievalResult, error) {
	if opts.TopK <= 0 {
		opts.TopK = r.config.TopK
	}
	if opts.MinScore == 0 {
		opts.MinScore = r.config.MinScore
	}

	key := Fingerprint(query, opts.Filters, opts.TopK)
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			slog.Debug("retrieval cache hit", "query", query, "results", len(cached))
			return cached, nil
		}
	}

	callCtx := ctx
	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, time.Duration(r.config.Timeout)*time.Second)
		defer cancel()
	}

	vec, err := r.embedder.Embed(callCtx, query)
	if err != nil {
		return nil, NewRetrievalError("embed_query", "failed to embed query", err)
	}

	hits, err := r.provider.SearchSimilar(callCtx, vec, opts)
	if err != nil {
		return nil, NewRetrievalError("search", "similarity search failed", err)
	}
	results := toResults(hits)

	if r.config.Hybrid {
		keyword, err := r.provider.KeywordSearch(callCtx, query, opts)
		if err != nil {
			return nil, NewRetrievalError("keyword_search", "keyword search failed", err)
		}
		results = mergeHybrid(results, toResults(keyword), opts.TopK)
	}

	rerank(results)

	// A timed-out call never reaches this point, so the cache only ever
	// holds completed results.
	if r.cache != nil {
		r.cache.Put(key, results)
	}
	return results, nil
}

// InvalidateCache drops cached results, typically after document
// additions or deletions.
func (r *Retriever) InvalidateCache() {
	if r.cache != nil {
		r.cache.Invalidate()
	}
}

// CacheStats returns cache counters, or nil when caching is disabled.
func (r *Retriever) CacheStats() map[string]any {
	if r.cache == nil {
		return nil
	}
	return r.cache.Stats()
}

func toResults(hits []kb.RetrievalResult) []*kb.RetrievalResult {
	out := make([]*kb.RetrievalResult, len(hits))
	for i := range hits {
		hit := hits[i]
		out[i] = &hit
	}
	return out
}

// mergeHybrid combines vector and keyword hits into one ranked list. A
// chunk found by both channels gets a weighted sum of its scores; a chunk
// found by one keeps that channel's weighted score.
func mergeHybrid(vector, keyword []*kb.RetrievalResult, topK int) []*kb.RetrievalResult {
	merged := make(map[string]*kb.RetrievalResult, len(vector)+len(keyword))

	for _, res := range vector {
		clone := *res
		clone.Score = res.Score * vectorWeight
		merged[res.Chunk.ID] = &clone
	}
	for _, res := range keyword {
		if existing, ok := merged[res.Chunk.ID]; ok {
			existing.Score += res.Score * keywordWeight
			continue
		}
		clone := *res
		clone.Score = res.Score * keywordWeight
		merged[res.Chunk.ID] = &clone
	}

	out := make([]*kb.RetrievalResult, 0, len(merged))
	for _, res := range merged {
		out = append(out, res)
	}
	rerank(out)

	if topK >= 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// rerank stable-sorts by score descending, breaking ties by chunk id,
// then renumbers ranks.
func rerank(results []*kb.RetrievalResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ID < results[j].Chunk.ID
	})
	for i, res := range results {
		res.Rank = i
	}
}
