// Package embedder provides text embedding providers for semantic search.
package embedder

import (
	"context"
	"fmt"

	"github.com/kadirpekel/corpus/pkg/registry"
)

// Embedder produces vector embeddings from text.
type Embedder interface {
	// Embed converts text to a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts to vector embeddings in order.
	// More efficient than calling Embed in a loop.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// Model returns the model identifier in use.
	Model() string

	// Close releases provider resources.
	Close() error
}

// Config configures an embedding provider.
type Config struct {
	Provider   string `yaml:"provider" mapstructure:"provider"`
	Model      string `yaml:"model" mapstructure:"model"`
	Host       string `yaml:"host" mapstructure:"host"`
	APIKey     string `yaml:"api_key" mapstructure:"api_key"`
	Dimension  int    `yaml:"dimension" mapstructure:"dimension"`
	BatchSize  int    `yaml:"batch_size" mapstructure:"batch_size"`
	Timeout    int    `yaml:"timeout" mapstructure:"timeout"`
	MaxRetries int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "ollama"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.Timeout <= 0 {
		c.Timeout = 30
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
}

// Factory builds an embedder from config.
type Factory func(cfg Config) (Embedder, error)

var factories = registry.New[Factory]()

// RegisterFactory makes a provider available by name. Called from init
// functions; the registry is append-only after startup.
func RegisterFactory(name string, f Factory) error {
	return factories.Register(name, f)
}

// New builds the embedder named by cfg.Provider.
func New(cfg Config) (Embedder, error) {
	cfg.SetDefaults()
	f, ok := factories.Get(cfg.Provider)
	if !ok {
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
	return f(cfg)
}
