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

// Package generation turns retrieved fragments into answers via an
// external text-generation model, optionally with source citations.
package generation

import (
	"context"
	"fmt"

	"github.com/kadirpekel/corpus/pkg/registry"
)

// StreamChunk is one piece of a streaming generation. A non-nil Err
// terminates the stream.
type StreamChunk struct {
	Text string
	Err  error
}

// TextGenerator is the contract an external text-generation model must
// satisfy.
type TextGenerator interface {
	// Generate produces a complete response for prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// GenerateStream produces response pieces as the model yields them,
	// in order. The channel is closed when the response is complete.
	GenerateStream(ctx context.Context, prompt string) (<-chan StreamChunk, error)

	// Model returns the model identifier in use.
	Model() string

	// Close releases resources.
	Close() error
}

// ModelConfig selects and configures the external model.
type ModelConfig struct {
	Provider    string  `yaml:"provider" mapstructure:"provider"`
	Model       string  `yaml:"model" mapstructure:"model"`
	Host        string  `yaml:"host" mapstructure:"host"`
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`

	// Timeout in seconds per model call.
	Timeout int `yaml:"timeout" mapstructure:"timeout"`
}

// SetDefaults fills zero values.
func (c *ModelConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "ollama"
	}
	if c.Timeout <= 0 {
		c.Timeout = 120
	}
}

// ModelFactory builds a generator from config.
type ModelFactory func(cfg ModelConfig) (TextGenerator, error)

var modelFactories = registry.New[ModelFactory]()

// RegisterModel makes a text-generation provider available by name.
func RegisterModel(name string, f ModelFactory) error {
	return modelFactories.Register(name, f)
}

// NewModel creates a text generator for the configured provider.
func NewModel(cfg ModelConfig) (TextGenerator, error) {
	cfg.SetDefaults()
	factory, ok := modelFactories.Get(cfg.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown generation provider: %s (available: %v)",
			cfg.Provider, modelFactories.Names())
	}
	return factory(cfg)
}
