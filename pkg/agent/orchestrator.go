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

package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kadirpekel/corpus/pkg/generation"
	"github.com/kadirpekel/corpus/pkg/kb"
	"github.com/kadirpekel/corpus/pkg/processor"
	"github.com/kadirpekel/corpus/pkg/retrieval"
	"github.com/kadirpekel/corpus/pkg/store"
)

// OrchestratorID is the orchestrator's agent id on the fabric.
const OrchestratorID = "orchestrator"

// Request verbs accepted by ReceiveRequest.
const (
	RequestAddDocument    = "add_document"
	RequestDeleteDocument = "delete_document"
	RequestQuery          = "query"
	RequestHealthCheck    = "health_check"
	RequestMaintain       = "maintain"
)

// Config controls the orchestrator.
type Config struct {
	// RequestTimeout in seconds per agent task.
	RequestTimeout int `yaml:"request_timeout" mapstructure:"request_timeout"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 60
	}
}

// Orchestrator owns the specialist agents and decomposes requests into
// task flows across them. It is also the fabric's dispatcher: every
// agent reply routes back through Dispatch.
type Orchestrator struct {
	config Config

	collection  *CollectionAgent
	processing  *ProcessingAgent
	storage     *StorageAgent
	retrieval   *RetrievalAgent
	maintenance *MaintenanceAgent
	rag         *RAGAgent
	agents      map[string]Agent

	mu      sync.Mutex
	pending map[string]chan *Message
}

// NewOrchestrator wires the six specialist agents around the pipeline
// components.
func NewOrchestrator(cfg Config, proc *processor.Processor, provider store.Provider,
	retriever *retrieval.Retriever, generator *generation.Generator) *Orchestrator {
	cfg.SetDefaults()

	o := &Orchestrator{
		config:  cfg,
		pending: make(map[string]chan *Message),
	}
	o.collection = NewCollectionAgent(o)
	o.processing = NewProcessingAgent(o, proc)
	o.storage = NewStorageAgent(o, provider)
	o.retrieval = NewRetrievalAgent(o, retriever)
	o.maintenance = NewMaintenanceAgent(o, provider, retriever)
	o.rag = NewRAGAgent(o, generator)

	o.agents = map[string]Agent{
		AgentCollection:  o.collection,
		AgentProcessing:  o.processing,
		AgentStorage:     o.storage,
		AgentRetrieval:   o.retrieval,
		AgentMaintenance: o.maintenance,
		AgentRAG:         o.rag,
	}
	return o
}

// Start starts every agent.
func (o *Orchestrator) Start(ctx context.Context) error {
	for id, a := range o.agents {
		if err := a.Start(ctx); err != nil {
			return fmt.Errorf("failed to start agent %s: %w", id, err)
		}
	}
	slog.Info("orchestrator started", "agents", len(o.agents))
	return nil
}

// Stop stops every agent.
func (o *Orchestrator) Stop() error {
	for _, a := range o.agents {
		if err := a.Stop(); err != nil {
			slog.Warn("failed to stop agent", "agent", a.ID(), "error", err)
		}
	}
	return nil
}

// Dispatch routes a message to its destination. Broadcasts deliver to
// every agent except the source.
func (o *Orchestrator) Dispatch(msg *Message) error {
	if msg.Destination == Broadcast {
		for id, a := range o.agents {
			if id == msg.Source {
				continue
			}
			if err := a.Deliver(msg); err != nil {
				slog.Warn("broadcast delivery failed", "agent", id, "error", err)
			}
		}
		return nil
	}

	if msg.Destination == OrchestratorID {
		o.handleReply(msg)
		return nil
	}

	a, ok := o.agents[msg.Destination]
	if !ok {
		return fmt.Errorf("unknown destination agent: %s", msg.Destination)
	}
	return a.Deliver(msg)
}

// handleReply routes task outcomes back to the waiting request. Outcomes
// for tasks no longer pending (cancelled or timed out requests) are
// discarded.
func (o *Orchestrator) handleReply(msg *Message) {
	switch msg.Type {
	case MessageTaskComplete, MessageTaskError:
		o.mu.Lock()
		ch, ok := o.pending[msg.TaskID()]
		o.mu.Unlock()
		if !ok {
			slog.Debug("discarding stale task outcome",
				"task_id", msg.TaskID(), "type", msg.Type, "source", msg.Source)
			return
		}
		ch <- msg
	case MessageTaskResponse:
		slog.Debug("task acknowledged",
			"task_id", msg.TaskID(), "source", msg.Source)
	default:
		slog.Debug("orchestrator ignoring message", "type", msg.Type, "source", msg.Source)
	}
}

// callTask sends one task to an agent and waits for its outcome.
func (o *Orchestrator) callTask(ctx context.Context, destination, task string, params map[string]any) (map[string]any, error) {
	taskID := uuid.NewString()
	outcome := make(chan *Message, 1)

	o.mu.Lock()
	o.pending[taskID] = outcome
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.pending, taskID)
		o.mu.Unlock()
	}()

	msg := NewMessage(OrchestratorID, destination, MessageTask, map[string]any{
		"task_id": taskID,
		"task":    task,
		"params":  params,
	})
	if err := o.Dispatch(msg); err != nil {
		return nil, NewAgentError(destination, task, "dispatch failed", err)
	}

	timeout := time.Duration(o.config.RequestTimeout) * time.Second
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(timeout):
		return nil, NewAgentError(destination, task,
			fmt.Sprintf("task timed out after %s", timeout), nil)
	case reply := <-outcome:
		if reply.Type == MessageTaskError {
			errText, _ := reply.Payload["error"].(string)
			return nil, NewAgentError(destination, task, errText, nil)
		}
		result, _ := reply.Payload["result"].(map[string]any)
		return result, nil
	}
}

// ReceiveRequest is the public entry point. Terminal errors become a
// result object with success false; they are never raised.
func (o *Orchestrator) ReceiveRequest(ctx context.Context, source, requestType string, payload map[string]any) map[string]any {
	slog.Debug("request received", "source", source, "type", requestType)

	switch requestType {
	case RequestAddDocument:
		return o.addDocument(ctx, payload)
	case RequestDeleteDocument:
		return o.deleteDocument(ctx, payload)
	case RequestQuery:
		return o.query(ctx, payload)
	case RequestHealthCheck:
		return o.healthCheck()
	case RequestMaintain:
		return o.maintain(ctx)
	default:
		return failure(fmt.Sprintf("unsupported request type: %s", requestType))
	}
}

// addDocument runs processing then storage. The two stages are strictly
// ordered; fragments cannot be stored before they exist.
func (o *Orchestrator) addDocument(ctx context.Context, payload map[string]any) map[string]any {
	doc, ok := payload["document"]
	if !ok {
		// Raw inputs go through the collection agent first: file paths
		// hit the parsers, inline content is typed and wrapped.
		task := "collect_document"
		if _, hasPath := payload["path"]; hasPath {
			task = "collect_file"
		}
		collected, err := o.callTask(ctx, AgentCollection, task, payload)
		if err != nil {
			return failure(err.Error())
		}
		doc = collected["document"]
	}

	processed, err := o.callTask(ctx, AgentProcessing, "process_document", map[string]any{
		"document": doc,
	})
	if err != nil {
		return failure(err.Error())
	}

	chunks, _ := processed["chunks"].([]*kb.Chunk)
	if len(chunks) > 0 {
		if _, err := o.callTask(ctx, AgentStorage, "store_chunks", map[string]any{
			"chunks": chunks,
		}); err != nil {
			return failure(err.Error())
		}
	}

	// New fragments invalidate cached retrievals.
	o.retrieval.Invalidate()

	return map[string]any{
		"success":        true,
		"document_id":    processed["document_id"],
		"chunks_created": processed["chunks_created"],
		"skipped":        processed["skipped"],
	}
}

func (o *Orchestrator) deleteDocument(ctx context.Context, payload map[string]any) map[string]any {
	result, err := o.callTask(ctx, AgentStorage, "delete_document", payload)
	if err != nil {
		return failure(err.Error())
	}
	o.retrieval.Invalidate()

	return map[string]any{
		"success":     true,
		"document_id": result["document_id"],
	}
}

// query runs retrieval then generation. An empty store yields the
// sentinel answer as a success, not an error.
func (o *Orchestrator) query(ctx context.Context, payload map[string]any) map[string]any {
	query, _ := payload["query"].(string)
	if query == "" {
		return failure("missing required param: query")
	}

	retrieved, err := o.callTask(ctx, AgentRetrieval, "retrieve", payload)
	if err != nil {
		return failure(err.Error())
	}
	sources, _ := retrieved["results"].([]*kb.RetrievalResult)

	if len(sources) == 0 {
		return map[string]any{
			"success": true,
			"answer":  kb.NoAnswerSentinel,
			"chunks":  []*kb.RetrievalResult{},
		}
	}

	if stream, _ := payload["stream"].(bool); stream {
		// Streaming bypasses the mailbox; the caller consumes the channel.
		ch, err := o.rag.Stream(ctx, query, sources)
		if err != nil {
			return failure(err.Error())
		}
		return map[string]any{
			"success": true,
			"status":  "streaming",
			"stream":  ch,
			"chunks":  sources,
		}
	}

	generated, err := o.callTask(ctx, AgentRAG, "generate", map[string]any{
		"query":   query,
		"sources": sources,
	})
	if err != nil {
		return failure(err.Error())
	}

	return map[string]any{
		"success":    true,
		"answer":     generated["answer"],
		"chunks":     sources,
		"citations":  generated["citations"],
		"confidence": generated["confidence"],
	}
}

func (o *Orchestrator) healthCheck() map[string]any {
	statuses := make(map[string]any, len(o.agents))
	healthy := true
	for id := range o.agents {
		status := o.agentStatus(id)
		statuses[id] = status
		if running, ok := status["running"].(bool); ok && !running {
			healthy = false
		}
	}

	state := "healthy"
	if !healthy {
		state = "degraded"
	}
	return map[string]any{"success": true, "status": state, "agents": statuses}
}

func (o *Orchestrator) maintain(ctx context.Context) map[string]any {
	result, err := o.callTask(ctx, AgentMaintenance, "maintain", nil)
	if err != nil {
		return failure(err.Error())
	}
	if result == nil {
		result = map[string]any{}
	}
	result["success"] = true
	return result
}

func (o *Orchestrator) agentStatus(id string) map[string]any {
	switch id {
	case AgentCollection:
		return o.collection.Status()
	case AgentProcessing:
		return o.processing.Status()
	case AgentStorage:
		return o.storage.Status()
	case AgentRetrieval:
		return o.retrieval.Status()
	case AgentMaintenance:
		return o.maintenance.Status()
	case AgentRAG:
		return o.rag.Status()
	}
	return map[string]any{"agent": id, "running": false}
}

func failure(message string) map[string]any {
	return map[string]any{"success": false, "error": message}
}
