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

// Package config loads, validates, and watches the corpus configuration.
//
// Configuration is a single YAML document with one section per pipeline
// component. Every string value supports ${VAR} and ${VAR:-default}
// environment expansion.
package config

import (
	"github.com/kadirpekel/corpus/pkg/agent"
	"github.com/kadirpekel/corpus/pkg/chunking"
	"github.com/kadirpekel/corpus/pkg/embedder"
	"github.com/kadirpekel/corpus/pkg/generation"
	"github.com/kadirpekel/corpus/pkg/metadata"
	"github.com/kadirpekel/corpus/pkg/processor"
	"github.com/kadirpekel/corpus/pkg/retrieval"
	"github.com/kadirpekel/corpus/pkg/store"
)

// Config is the root configuration document. Section and option names
// follow the recognised-option table in the project docs: metadata
// extraction flags live in the chunking section, the model selection
// flat in the generation section.
type Config struct {
	Name        string `yaml:"name,omitempty" mapstructure:"name"`
	Description string `yaml:"description,omitempty" mapstructure:"description"`

	Chunking  ChunkingConfig   `yaml:"chunking,omitempty" mapstructure:"chunking"`
	Embedding embedder.Config  `yaml:"embedding,omitempty" mapstructure:"embedding"`
	Processor processor.Config `yaml:"processor,omitempty" mapstructure:"processor"`
	Storage   store.Config     `yaml:"storage,omitempty" mapstructure:"storage"`
	Retrieval retrieval.Config `yaml:"retrieval,omitempty" mapstructure:"retrieval"`

	Generation GenerationConfig `yaml:"generation,omitempty" mapstructure:"generation"`

	Orchestrator agent.Config `yaml:"orchestrator,omitempty" mapstructure:"orchestrator"`

	Logger LoggerConfig `yaml:"logger,omitempty" mapstructure:"logger"`
}

// ChunkingConfig merges the splitting options with the metadata
// extraction flags that share the section.
type ChunkingConfig struct {
	Chunker  chunking.Config `yaml:",inline" mapstructure:",squash"`
	Metadata metadata.Config `yaml:",inline" mapstructure:",squash"`
}

// GenerationConfig merges the answer-assembly settings with the model
// they run against; the provider/model options sit at the section level.
type GenerationConfig struct {
	Answer generation.Config      `yaml:",inline" mapstructure:",squash"`
	Model  generation.ModelConfig `yaml:",inline" mapstructure:",squash"`
}

// SetDefaults applies defaults to every section.
func (c *Config) SetDefaults() {
	c.Chunking.Chunker.SetDefaults()
	c.Chunking.Metadata.SetDefaults()
	c.Embedding.SetDefaults()
	c.Processor.SetDefaults()
	c.Storage.SetDefaults()
	c.Retrieval.SetDefaults()
	c.Generation.Model.SetDefaults()
	c.Orchestrator.SetDefaults()
	c.Logger.SetDefaults()
}

// Validate checks every section. The first violation is returned as a
// ConfigurationError naming its section.
func (c *Config) Validate() error {
	if err := c.Chunking.Chunker.Validate(); err != nil {
		return NewConfigurationError("chunking", "invalid chunking settings", err)
	}
	if err := c.Logger.Validate(); err != nil {
		return NewConfigurationError("logger", "invalid logger settings", err)
	}
	if c.Retrieval.TopK < 0 {
		return NewConfigurationError("retrieval", "top_k must not be negative", nil)
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		return NewConfigurationError("retrieval", "min_score must be within [0, 1]", nil)
	}
	if c.Storage.MaxChunks < 0 {
		return NewConfigurationError("storage", "max_chunks must not be negative", nil)
	}
	if c.Storage.PersistenceEnabled && c.Storage.PersistencePath == "" {
		return NewConfigurationError("storage", "persistence_path is required when persistence is enabled", nil)
	}
	if c.Generation.Answer.MaxContextTokens < 0 {
		return NewConfigurationError("generation", "max_context_tokens must not be negative", nil)
	}
	return nil
}

// Default returns a fully defaulted configuration without reading a
// file. It backs the zero-config CLI path.
func Default() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}
