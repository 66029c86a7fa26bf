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

package processor

import "fmt"

// ProcessingError represents a failure while transforming one document.
// In batch processing these are logged and the document is skipped; the
// batch as a whole does not fail.
type ProcessingError struct {
	DocumentID string // Document that failed
	Stage      string // Pipeline stage (e.g., "chunk", "embed", "parse")
	Message    string // Error message
	Err        error  // Underlying error
}

// Error implements the error interface.
func (e *ProcessingError) Error() string {
	msg := fmt.Sprintf("[%s] processing failed for %s: %s", e.Stage, e.DocumentID, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// NewProcessingError creates a new ProcessingError.
func NewProcessingError(documentID, stage, message string, err error) *ProcessingError {
	return &ProcessingError{
		DocumentID: documentID,
		Stage:      stage,
		Message:    message,
		Err:        err,
	}
}
