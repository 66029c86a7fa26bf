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

// Package agent implements the message-passing runtime: specialist agents
// with private mailboxes, a task protocol, and the orchestrator that
// decomposes end-to-end requests into cross-agent task flows.
package agent

import (
	"time"

	"github.com/google/uuid"
)

// MessageType classifies a message on the agent fabric.
type MessageType string

const (
	MessageTask         MessageType = "task"
	MessageTaskResponse MessageType = "task_response"
	MessageTaskComplete MessageType = "task_complete"
	MessageTaskError    MessageType = "task_error"
	MessageAgentStatus  MessageType = "agent_status"
	MessageStreamStart  MessageType = "stream_start"
	MessageStreamChunk  MessageType = "stream_chunk"
	MessageStreamEnd    MessageType = "stream_end"
	MessageStreamError  MessageType = "stream_error"
)

// Broadcast as a destination delivers to every agent except the source.
const Broadcast = "*"

// Message is the wire unit of the agent fabric.
type Message struct {
	ID            string         `json:"message_id"`
	Source        string         `json:"source"`
	Destination   string         `json:"destination"`
	Type          MessageType    `json:"message_type"`
	Payload       map[string]any `json:"payload,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// NewMessage creates a message with a fresh id and timestamp.
func NewMessage(source, destination string, msgType MessageType, payload map[string]any) *Message {
	return &Message{
		ID:          uuid.NewString(),
		Source:      source,
		Destination: destination,
		Type:        msgType,
		Payload:     payload,
		Timestamp:   time.Now(),
	}
}

// TaskID returns the task_id carried in the payload, if any.
func (m *Message) TaskID() string {
	if m.Payload == nil {
		return ""
	}
	id, _ := m.Payload["task_id"].(string)
	return id
}

// Task returns the task verb carried in the payload, if any.
func (m *Message) Task() string {
	if m.Payload == nil {
		return ""
	}
	task, _ := m.Payload["task"].(string)
	return task
}

// Params returns the task params carried in the payload, never nil.
func (m *Message) Params() map[string]any {
	if m.Payload == nil {
		return map[string]any{}
	}
	if params, ok := m.Payload["params"].(map[string]any); ok {
		return params
	}
	return map[string]any{}
}
