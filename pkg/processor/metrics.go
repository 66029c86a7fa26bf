// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package processor

import "sync/atomic"

// Metrics tracks pipeline counters.
//
// Thread-safe for concurrent access during batch processing.
type Metrics struct {
	totalDocs     int64
	processedDocs int64
	skippedDocs   int64
	errorDocs     int64
	totalChunks   int64
}

// NewMetrics creates a metrics tracker.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// IncrementTotal increments total document count.
func (m *Metrics) IncrementTotal() {
	atomic.AddInt64(&m.totalDocs, 1)
}

// IncrementProcessed increments processed document count.
func (m *Metrics) IncrementProcessed() {
	atomic.AddInt64(&m.processedDocs, 1)
}

// IncrementSkipped increments skipped document count.
func (m *Metrics) IncrementSkipped() {
	atomic.AddInt64(&m.skippedDocs, 1)
}

// IncrementErrors increments error count.
func (m *Metrics) IncrementErrors() {
	atomic.AddInt64(&m.errorDocs, 1)
}

// AddChunks adds to the produced chunk count.
func (m *Metrics) AddChunks(n int64) {
	atomic.AddInt64(&m.totalChunks, n)
}

// Reset clears all counters.
func (m *Metrics) Reset() {
	atomic.StoreInt64(&m.totalDocs, 0)
	atomic.StoreInt64(&m.processedDocs, 0)
	atomic.StoreInt64(&m.skippedDocs, 0)
	atomic.StoreInt64(&m.errorDocs, 0)
	atomic.StoreInt64(&m.totalChunks, 0)
}

// Snapshot returns a point-in-time copy of all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		TotalDocs:     atomic.LoadInt64(&m.totalDocs),
		ProcessedDocs: atomic.LoadInt64(&m.processedDocs),
		SkippedDocs:   atomic.LoadInt64(&m.skippedDocs),
		ErrorDocs:     atomic.LoadInt64(&m.errorDocs),
		TotalChunks:   atomic.LoadInt64(&m.totalChunks),
	}
}

// MetricsSnapshot is a point-in-time copy of pipeline counters.
type MetricsSnapshot struct {
	TotalDocs     int64 `json:"total_docs"`
	ProcessedDocs int64 `json:"processed_docs"`
	SkippedDocs   int64 `json:"skipped_docs"`
	ErrorDocs     int64 `json:"error_docs"`
	TotalChunks   int64 `json:"total_chunks"`
}
