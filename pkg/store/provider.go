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

// Package store defines the vector store provider capability set and ships
// the in-memory reference provider plus adapters for external stores.
package store

import (
	"context"
	"fmt"

	"github.com/kadirpekel/corpus/pkg/kb"
	"github.com/kadirpekel/corpus/pkg/registry"
)

// SearchOptions tunes a similarity or keyword search.
type SearchOptions struct {
	// TopK is the maximum number of results; zero yields no results.
	TopK int

	// Filters restricts candidates by metadata equality. The key
	// "document_id" resolves through the document index.
	Filters map[string]any

	// MinScore drops results scoring below the threshold.
	MinScore float64
}

// Provider is the full vector store capability set. Implementations must be
// safe for concurrent use and must hand out chunk copies, never internal
// state.
type Provider interface {
	// Initialize prepares the provider (loads persisted state, opens
	// connections).
	Initialize(ctx context.Context) error

	// Close flushes and releases resources.
	Close() error

	// AddChunks persists chunks; ids are chosen by the caller and used
	// verbatim. Chunks without embeddings are skipped with a warning.
	AddChunks(ctx context.Context, chunks []*kb.Chunk) error

	// GetChunk returns a chunk by id, or (nil, nil) when absent.
	GetChunk(ctx context.Context, id string) (*kb.Chunk, error)

	// GetChunks returns the chunks for the given ids, omitting missing ones.
	GetChunks(ctx context.Context, ids []string) ([]*kb.Chunk, error)

	// GetDocumentChunks returns a document's chunks in insertion order.
	GetDocumentChunks(ctx context.Context, documentID string) ([]*kb.Chunk, error)

	// SearchSimilar ranks chunks by cosine similarity to the query vector,
	// clamped to [0,1], descending.
	SearchSimilar(ctx context.Context, queryVector []float32, opts SearchOptions) ([]kb.RetrievalResult, error)

	// KeywordSearch ranks chunks by term-frequency relevance normalized to
	// [0,1]. Providers with native full-text search may delegate.
	KeywordSearch(ctx context.Context, query string, opts SearchOptions) ([]kb.RetrievalResult, error)

	// DeleteChunks removes chunks by id; unknown ids are ignored.
	DeleteChunks(ctx context.Context, ids []string) error

	// DeleteDocument removes all chunks belonging to a document.
	DeleteDocument(ctx context.Context, documentID string) error

	// Clear removes everything, including persisted state.
	Clear(ctx context.Context) error

	// UpdateMetadata merges metadata into a chunk; existing keys not in the
	// update are kept.
	UpdateMetadata(ctx context.Context, id string, md map[string]any) error

	// Stats returns a free-form mapping including at minimum total_chunks
	// and total_documents.
	Stats(ctx context.Context) (map[string]any, error)

	// Name identifies the provider.
	Name() string
}

// Config selects and configures a provider.
type Config struct {
	Provider           string  `yaml:"provider" mapstructure:"provider"`
	Collection         string  `yaml:"collection" mapstructure:"collection"`
	MaxChunks          int     `yaml:"max_chunks" mapstructure:"max_chunks"`
	PersistenceEnabled bool    `yaml:"persistence_enabled" mapstructure:"persistence_enabled"`
	PersistencePath    string  `yaml:"persistence_path" mapstructure:"persistence_path"`
	AutoSave           bool    `yaml:"auto_save" mapstructure:"auto_save"`
	AutoSaveInterval   float64 `yaml:"auto_save_interval" mapstructure:"auto_save_interval"`

	// External provider connection settings.
	Host      string `yaml:"host" mapstructure:"host"`
	Port      int    `yaml:"port" mapstructure:"port"`
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	EnableTLS bool   `yaml:"enable_tls" mapstructure:"enable_tls"`
	Dimension int    `yaml:"dimension" mapstructure:"dimension"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "memory"
	}
	if c.Collection == "" {
		c.Collection = "corpus"
	}
	if c.MaxChunks <= 0 {
		c.MaxChunks = 100000
	}
	if c.AutoSaveInterval <= 0 {
		c.AutoSaveInterval = 60
	}
}

// Factory builds a provider from config.
type Factory func(cfg Config) (Provider, error)

// The process-wide provider registry, append-only after startup.
var factories = registry.New[Factory]()

// RegisterProvider makes a provider available by name.
func RegisterProvider(name string, f Factory) error {
	return factories.Register(name, f)
}

// ProviderNames returns the registered provider names.
func ProviderNames() []string {
	return factories.Names()
}

// New builds the provider named by cfg.Provider.
func New(cfg Config) (Provider, error) {
	cfg.SetDefaults()
	f, ok := factories.Get(cfg.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.Provider)
	}
	return f(cfg)
}
