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

package store

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a storage failure.
type ErrorKind string

const (
	// KindConnection marks transient connectivity failures; these are the
	// only failures retried.
	KindConnection ErrorKind = "connection"

	// KindNotFound marks lookups of absent entities where absence is an
	// error (GetChunk returns nil, nil instead).
	KindNotFound ErrorKind = "not_found"

	// KindOperation marks every other provider-level failure.
	KindOperation ErrorKind = "operation"
)

// StorageError represents a provider-level failure.
type StorageError struct {
	Provider  string    // Provider name
	Operation string    // Operation that failed
	Kind      ErrorKind // Failure classification
	Message   string    // Error message
	Err       error     // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	msg := fmt.Sprintf("[%s] %s (%s): %s", e.Provider, e.Operation, e.Kind, e.Message)
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// NewStorageError creates a new StorageError.
func NewStorageError(provider, operation string, kind ErrorKind, message string, err error) *StorageError {
	return &StorageError{
		Provider:  provider,
		Operation: operation,
		Kind:      kind,
		Message:   message,
		Err:       err,
	}
}

// NewConnectionError creates a connection-kind StorageError.
func NewConnectionError(provider, operation, message string, err error) *StorageError {
	return NewStorageError(provider, operation, KindConnection, message, err)
}

// IsConnectionError reports whether err is a connection-kind StorageError.
func IsConnectionError(err error) bool {
	var se *StorageError
	return errors.As(err, &se) && se.Kind == KindConnection
}
