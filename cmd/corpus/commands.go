package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kadirpekel/corpus/pkg/agent"
	"github.com/kadirpekel/corpus/pkg/config"
	"github.com/kadirpekel/corpus/pkg/generation"
	"github.com/kadirpekel/corpus/pkg/kb"
)

// signalContext returns a context cancelled by SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// IngestCmd ingests one or more files into the knowledge base.
type IngestCmd struct {
	Paths []string `arg:"" help:"Files to ingest." type:"existingfile"`
}

func (c *IngestCmd) Run(cfg *config.Config) error {
	ctx, cancel := signalContext()
	defer cancel()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	failed := 0
	for _, path := range c.Paths {
		result := rt.orchestrator.ReceiveRequest(ctx, "cli", agent.RequestAddDocument, map[string]any{
			"path": path,
		})
		if success, _ := result["success"].(bool); !success {
			failed++
			fmt.Fprintf(os.Stderr, "failed: %s: %v\n", path, result["error"])
			continue
		}
		fmt.Printf("ingested %s: %v fragments", path, result["chunks_created"])
		if skipped, ok := result["skipped"].(int); ok && skipped > 0 {
			fmt.Printf(" (%d skipped)", skipped)
		}
		fmt.Println()
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(c.Paths))
	}
	return nil
}

// QueryCmd asks the knowledge base a question.
type QueryCmd struct {
	Query  string `arg:"" help:"The question to ask."`
	TopK   int    `name:"top-k" help:"Number of fragments to retrieve."`
	Stream bool   `help:"Stream the answer token by token."`
	JSON   bool   `help:"Print the full result as JSON."`
}

func (c *QueryCmd) Run(cfg *config.Config) error {
	ctx, cancel := signalContext()
	defer cancel()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	payload := map[string]any{"query": c.Query, "stream": c.Stream}
	if c.TopK > 0 {
		payload["top_k"] = c.TopK
	}

	result := rt.orchestrator.ReceiveRequest(ctx, "cli", agent.RequestQuery, payload)
	if success, _ := result["success"].(bool); !success {
		return fmt.Errorf("query failed: %v", result["error"])
	}

	if stream, ok := result["stream"].(<-chan generation.StreamChunk); ok {
		for chunk := range stream {
			if chunk.Err != nil {
				fmt.Println()
				return chunk.Err
			}
			fmt.Print(chunk.Text)
		}
		fmt.Println()
		return nil
	}

	if c.JSON {
		return printJSON(result)
	}

	fmt.Println(result["answer"])
	if chunks, ok := result["chunks"].([]*kb.RetrievalResult); ok && len(chunks) > 0 {
		fmt.Printf("\n%d source fragments", len(chunks))
		if confidence, ok := result["confidence"].(float64); ok {
			fmt.Printf(", top score %.3f", confidence)
		}
		fmt.Println()
	}
	return nil
}

// DeleteCmd deletes a document and all its fragments.
type DeleteCmd struct {
	DocumentID string `arg:"" help:"Document id to delete."`
}

func (c *DeleteCmd) Run(cfg *config.Config) error {
	ctx, cancel := signalContext()
	defer cancel()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	result := rt.orchestrator.ReceiveRequest(ctx, "cli", agent.RequestDeleteDocument, map[string]any{
		"document_id": c.DocumentID,
	})
	if success, _ := result["success"].(bool); !success {
		return fmt.Errorf("delete failed: %v", result["error"])
	}
	fmt.Printf("deleted %s\n", c.DocumentID)
	return nil
}

// StatsCmd shows store statistics and agent health.
type StatsCmd struct{}

func (c *StatsCmd) Run(cfg *config.Config) error {
	ctx, cancel := signalContext()
	defer cancel()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	health := rt.orchestrator.ReceiveRequest(ctx, "cli", agent.RequestHealthCheck, nil)
	stats, err := rt.provider.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read store stats: %w", err)
	}

	return printJSON(map[string]any{
		"store":  stats,
		"status": health["status"],
		"agents": health["agents"],
	})
}

// MaintainCmd runs a maintenance pass.
type MaintainCmd struct{}

func (c *MaintainCmd) Run(cfg *config.Config) error {
	ctx, cancel := signalContext()
	defer cancel()

	rt, err := newRuntime(ctx, cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	result := rt.orchestrator.ReceiveRequest(ctx, "cli", agent.RequestMaintain, nil)
	if success, _ := result["success"].(bool); !success {
		return fmt.Errorf("maintenance failed: %v", result["error"])
	}
	return printJSON(result)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
