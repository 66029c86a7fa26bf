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

package generation

import "fmt"

// GenerationError describes a failed or empty model response.
type GenerationError struct {
	Provider  string
	Operation string
	Message   string
	Err       error
}

func (e *GenerationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation[%s].%s: %s: %v", e.Provider, e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("generation[%s].%s: %s", e.Provider, e.Operation, e.Message)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// NewGenerationError creates a generation error.
func NewGenerationError(provider, operation, message string, err error) *GenerationError {
	return &GenerationError{Provider: provider, Operation: operation, Message: message, Err: err}
}
