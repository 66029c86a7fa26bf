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
)

// Handler executes one task verb. The returned map becomes the
// task_complete result; an error becomes a task_error.
type Handler func(ctx context.Context, params map[string]any) (map[string]any, error)

// Dispatcher routes messages between agents. The orchestrator is the
// canonical implementation.
type Dispatcher interface {
	Dispatch(msg *Message) error
}

// Agent is one actor on the fabric.
type Agent interface {
	ID() string
	Start(ctx context.Context) error
	Stop() error

	// Deliver enqueues a message into the agent's mailbox.
	Deliver(msg *Message) error
}

const mailboxSize = 64

// BaseAgent implements the mailbox, the task protocol, and error
// containment. Specialist agents embed it and register task handlers.
//
// One goroutine drains the mailbox, so an agent processes messages in
// receive order.
type BaseAgent struct {
	id         string
	dispatcher Dispatcher
	handlers   map[string]Handler
	mailbox    chan *Message

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewBaseAgent creates an agent with the given id.
func NewBaseAgent(id string, dispatcher Dispatcher) *BaseAgent {
	return &BaseAgent{
		id:         id,
		dispatcher: dispatcher,
		handlers:   make(map[string]Handler),
		mailbox:    make(chan *Message, mailboxSize),
	}
}

// ID returns the agent id.
func (a *BaseAgent) ID() string { return a.id }

// RegisterTask binds a task verb to a handler. Registration happens at
// construction time, before Start.
func (a *BaseAgent) RegisterTask(task string, h Handler) {
	a.handlers[task] = h
}

// Start begins draining the mailbox.
func (a *BaseAgent) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return fmt.Errorf("agent %s already running", a.id)
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.done = make(chan struct{})
	a.running = true

	go a.run(runCtx)
	slog.Debug("agent started", "agent", a.id, "tasks", len(a.handlers))
	return nil
}

// Stop shuts the agent down and waits for the drain goroutine to exit.
// Messages still queued in the mailbox are abandoned.
func (a *BaseAgent) Stop() error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.cancel()
	done := a.done
	a.mu.Unlock()

	<-done
	slog.Debug("agent stopped", "agent", a.id)
	return nil
}

// Deliver enqueues a message. Delivery to a stopped agent is an error,
// as is a full mailbox, rather than blocking the dispatcher.
func (a *BaseAgent) Deliver(msg *Message) error {
	a.mu.Lock()
	running := a.running
	a.mu.Unlock()
	if !running {
		return NewAgentError(a.id, msg.Task(), "agent is not running", nil)
	}

	select {
	case a.mailbox <- msg:
		return nil
	default:
		return NewAgentError(a.id, msg.Task(), "mailbox full", nil)
	}
}

func (a *BaseAgent) run(ctx context.Context) {
	defer close(a.done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-a.mailbox:
			a.processMessage(ctx, msg)
		}
	}
}

// processMessage dispatches one message. Handler errors and panics are
// contained: each failed task produces exactly one task_error and nothing
// escapes to the dispatcher.
func (a *BaseAgent) processMessage(ctx context.Context, msg *Message) {
	if msg.Type != MessageTask {
		slog.Debug("agent ignoring message", "agent", a.id, "type", msg.Type, "source", msg.Source)
		return
	}

	taskID := msg.TaskID()
	task := msg.Task()

	a.reply(msg, MessageTaskResponse, map[string]any{
		"task_id": taskID,
		"status":  "processing",
	})

	handler, ok := a.handlers[task]
	if !ok {
		a.replyError(msg, taskID, task, NewAgentError(a.id, task, "unsupported task", nil))
		return
	}

	result, err := a.invoke(ctx, handler, msg.Params(), task)
	if err != nil {
		a.replyError(msg, taskID, task, err)
		return
	}

	a.reply(msg, MessageTaskComplete, map[string]any{
		"task_id": taskID,
		"result":  result,
	})
}

// invoke runs a handler, converting panics to errors.
func (a *BaseAgent) invoke(ctx context.Context, h Handler, params map[string]any, task string) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewAgentError(a.id, task, fmt.Sprintf("handler panic: %v", r), nil)
		}
	}()
	return h(ctx, params)
}

func (a *BaseAgent) replyError(msg *Message, taskID, task string, err error) {
	slog.Error("task failed", "agent", a.id, "task", task, "task_id", taskID, "error", err)
	a.reply(msg, MessageTaskError, map[string]any{
		"task_id": taskID,
		"task":    task,
		"error":   err.Error(),
	})
}

func (a *BaseAgent) reply(msg *Message, msgType MessageType, payload map[string]any) {
	reply := NewMessage(a.id, msg.Source, msgType, payload)
	reply.CorrelationID = msg.ID
	if err := a.dispatcher.Dispatch(reply); err != nil {
		slog.Warn("failed to dispatch reply", "agent", a.id, "type", msgType, "error", err)
	}
}

// Status reports the agent's health for health_check aggregation.
func (a *BaseAgent) Status() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]any{
		"agent":   a.id,
		"running": a.running,
		"queued":  len(a.mailbox),
	}
}
