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

import "fmt"

// AgentError describes a malformed task, an unsupported task verb, or a
// missing required param.
type AgentError struct {
	Agent   string
	Task    string
	Message string
	Err     error
}

func (e *AgentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("agent[%s].%s: %s: %v", e.Agent, e.Task, e.Message, e.Err)
	}
	return fmt.Sprintf("agent[%s].%s: %s", e.Agent, e.Task, e.Message)
}

func (e *AgentError) Unwrap() error { return e.Err }

// NewAgentError creates an agent error.
func NewAgentError(agent, task, message string, err error) *AgentError {
	return &AgentError{Agent: agent, Task: task, Message: message, Err: err}
}
