package generation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaGenerator talks to a local Ollama server's /api/generate
// endpoint.
type OllamaGenerator struct {
	config ModelConfig
	client *http.Client
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options *ollamaGenerateOptions `json:"options,omitempty"`
}

type ollamaGenerateOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaGenerateResponse struct {
	Model     string `json:"model"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
	EvalCount int    `json:"eval_count"`
	Error     string `json:"error,omitempty"`
}

// NewOllamaGenerator creates an Ollama-backed generator.
func NewOllamaGenerator(cfg ModelConfig) (*OllamaGenerator, error) {
	cfg.SetDefaults()
	if cfg.Model == "" {
		cfg.Model = "llama3.2"
	}
	if cfg.Host == "" {
		cfg.Host = "http://localhost:11434"
	}
	cfg.Host = strings.TrimSuffix(cfg.Host, "/")

	return &OllamaGenerator{
		config: cfg,
		client: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
	}, nil
}

// Generate produces a complete response.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := g.do(ctx, g.buildRequest(prompt, false))
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", NewGenerationError(g.Name(), "generate", "failed to read response", err)
	}

	var response ollamaGenerateResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return "", NewGenerationError(g.Name(), "generate", "failed to decode response", err)
	}
	if response.Error != "" {
		return "", NewGenerationError(g.Name(), "generate", response.Error, nil)
	}
	return response.Response, nil
}

// GenerateStream produces response pieces as Ollama yields them. Ollama
// streams newline-delimited JSON objects.
func (g *OllamaGenerator) GenerateStream(ctx context.Context, prompt string) (<-chan StreamChunk, error) {
	body, err := g.do(ctx, g.buildRequest(prompt, true))
	if err != nil {
		return nil, err
	}

	out := make(chan StreamChunk, 64)
	go func() {
		defer close(out)
		defer body.Close()

		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadBytes('\n')
			if err != nil {
				if err != io.EOF {
					out <- StreamChunk{Err: NewGenerationError(g.Name(), "stream", "failed to read stream", err)}
				}
				return
			}

			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}

			var chunk ollamaGenerateResponse
			if err := json.Unmarshal(line, &chunk); err != nil {
				continue
			}
			if chunk.Error != "" {
				out <- StreamChunk{Err: NewGenerationError(g.Name(), "stream", chunk.Error, nil)}
				return
			}
			if chunk.Response != "" {
				select {
				case out <- StreamChunk{Text: chunk.Response}:
				case <-ctx.Done():
					return
				}
			}
			if chunk.Done {
				return
			}
		}
	}()
	return out, nil
}

// Model returns the configured model identifier.
func (g *OllamaGenerator) Model() string { return g.config.Model }

// Name identifies the provider.
func (g *OllamaGenerator) Name() string { return "ollama" }

// Close releases resources.
func (g *OllamaGenerator) Close() error { return nil }

func (g *OllamaGenerator) buildRequest(prompt string, stream bool) ollamaGenerateRequest {
	request := ollamaGenerateRequest{
		Model:  g.config.Model,
		Prompt: prompt,
		Stream: stream,
	}
	if g.config.Temperature > 0 || g.config.MaxTokens > 0 {
		request.Options = &ollamaGenerateOptions{
			Temperature: g.config.Temperature,
			NumPredict:  g.config.MaxTokens,
		}
	}
	return request
}

func (g *OllamaGenerator) do(ctx context.Context, request ollamaGenerateRequest) (io.ReadCloser, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return nil, NewGenerationError(g.Name(), "request", "failed to marshal request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.config.Host+"/api/generate", bytes.NewReader(data))
	if err != nil {
		return nil, NewGenerationError(g.Name(), "request", "failed to create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, NewGenerationError(g.Name(), "request", "request failed", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return nil, NewGenerationError(g.Name(), "request", apiErr.Error, nil)
		}
		return nil, NewGenerationError(g.Name(), "request",
			fmt.Sprintf("request failed with status %d: %s", resp.StatusCode, string(body)), nil)
	}
	return resp.Body, nil
}

var _ TextGenerator = (*OllamaGenerator)(nil)

func init() {
	_ = RegisterModel("ollama", func(cfg ModelConfig) (TextGenerator, error) {
		return NewOllamaGenerator(cfg)
	})
}
