package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/corpus/pkg/chunking"
)

const sampleYAML = `
name: docs-kb
chunking:
  strategy: sentence
  chunk_size: 800
  chunk_overlap: 100
  extract_metadata: true
  index_metadata: true
embedding:
  provider: ollama
  model: nomic-embed-text
storage:
  provider: memory
  collection: docs
retrieval:
  top_k: 8
  hybrid: true
  cache_enabled: true
generation:
  include_citations: true
  provider: ollama
  model: llama3.2
logger:
  level: debug
`

func TestParse_FullDocument(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "docs-kb", cfg.Name)
	assert.Equal(t, chunking.StrategySentence, cfg.Chunking.Chunker.Strategy)
	assert.Equal(t, 800, cfg.Chunking.Chunker.Size)
	assert.True(t, cfg.Chunking.Metadata.ExtractMetadata)
	assert.True(t, cfg.Chunking.Metadata.IndexMetadata)
	assert.Equal(t, "nomic-embed-text", cfg.Embedding.Model)
	assert.Equal(t, "docs", cfg.Storage.Collection)
	assert.Equal(t, 8, cfg.Retrieval.TopK)
	assert.True(t, cfg.Retrieval.Hybrid)
	assert.True(t, cfg.Generation.Answer.IncludeCitations)
	assert.Equal(t, "ollama", cfg.Generation.Model.Provider)
	assert.Equal(t, "llama3.2", cfg.Generation.Model.Model)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte("name: minimal"))
	require.NoError(t, err)

	assert.Equal(t, chunking.StrategyRecursive, cfg.Chunking.Chunker.Strategy)
	assert.Equal(t, "memory", cfg.Storage.Provider)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 60, cfg.Orchestrator.RequestTimeout)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "text", cfg.Logger.Format)
}

func TestParse_ExpandsEnvVars(t *testing.T) {
	t.Setenv("CORPUS_MODEL", "mistral")
	t.Setenv("CORPUS_TOP_K", "12")

	cfg, err := Parse([]byte(`
generation:
  model: ${CORPUS_MODEL}
retrieval:
  top_k: ${CORPUS_TOP_K}
embedding:
  host: ${CORPUS_EMBED_HOST:-http://localhost:11434}
`))
	require.NoError(t, err)

	assert.Equal(t, "mistral", cfg.Generation.Model.Model)
	assert.Equal(t, 12, cfg.Retrieval.TopK)
	assert.Equal(t, "http://localhost:11434", cfg.Embedding.Host)
}

func TestParse_UnknownKeysTolerated(t *testing.T) {
	cfg, err := Parse([]byte("name: kb\nno_such_section:\n  key: value\n"))
	require.NoError(t, err)
	assert.Equal(t, "kb", cfg.Name)
}

func TestParse_ValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		section string
	}{
		{"bad log level", "logger:\n  level: loud\n", "logger"},
		{"min score out of range", "retrieval:\n  min_score: 1.5\n", "retrieval"},
		{"persistence without path", "storage:\n  persistence_enabled: true\n", "storage"},
		{"negative context budget", "generation:\n  max_context_tokens: -1\n", "generation"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			require.Error(t, err)

			var ce *ConfigurationError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tc.section, ce.Section)
		})
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("{not yaml"))
	require.Error(t, err)

	var ce *ConfigurationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "loader", ce.Section)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "memory", cfg.Storage.Provider)
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corpus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "docs-kb", cfg.Name)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestLoader_WatchReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corpus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: before\n"), 0o644))

	reloaded := make(chan *Config, 1)
	loader, err := NewLoader(path, WithOnChange(func(cfg *Config) {
		select {
		case reloaded <- cfg:
		default:
		}
	}))
	require.NoError(t, err)
	defer loader.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = loader.Watch(ctx) }()

	// Give the watcher a moment to attach before writing.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("name: after\n"), 0o644))

	select {
	case cfg := <-reloaded:
		assert.Equal(t, "after", cfg.Name)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestExpandEnvVarsInData(t *testing.T) {
	t.Setenv("A_VALUE", "42")

	out := ExpandEnvVarsInData(map[string]any{
		"number": "${A_VALUE}",
		"flag":   "${A_FLAG:-true}",
		"plain":  "untouched",
		"nested": []any{"${A_VALUE}"},
	}).(map[string]any)

	assert.Equal(t, 42, out["number"])
	assert.Equal(t, true, out["flag"])
	assert.Equal(t, "untouched", out["plain"])
	assert.Equal(t, []any{42}, out["nested"])
}
