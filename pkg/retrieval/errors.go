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

package retrieval

import "fmt"

// RetrievalError describes a failure while answering a retrieval request.
type RetrievalError struct {
	Operation string
	Message   string
	Err       error
}

func (e *RetrievalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("retrieval.%s: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("retrieval.%s: %s", e.Operation, e.Message)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// NewRetrievalError creates a retrieval error.
func NewRetrievalError(operation, message string, err error) *RetrievalError {
	return &RetrievalError{Operation: operation, Message: message, Err: err}
}
