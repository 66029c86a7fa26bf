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

package store

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exposes store activity as prometheus collectors. A single shared
// instance backs all providers in the process; the default registerer
// rejects duplicate registration.
type Metrics struct {
	chunksAdded    prometheus.Counter
	chunksDeleted  prometheus.Counter
	searches       prometheus.Counter
	searchDuration prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
)

func sharedMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInst = &Metrics{
			chunksAdded: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "corpus",
				Subsystem: "store",
				Name:      "chunks_added_total",
				Help:      "Chunks inserted into the store.",
			}),
			chunksDeleted: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "corpus",
				Subsystem: "store",
				Name:      "chunks_deleted_total",
				Help:      "Chunks removed from the store.",
			}),
			searches: promauto.NewCounter(prometheus.CounterOpts{
				Namespace: "corpus",
				Subsystem: "store",
				Name:      "searches_total",
				Help:      "Similarity and keyword searches served.",
			}),
			searchDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Namespace: "corpus",
				Subsystem: "store",
				Name:      "search_duration_seconds",
				Help:      "Search latency.",
				Buckets:   prometheus.DefBuckets,
			}),
		}
	})
	return metricsInst
}

func (m *Metrics) addChunks(n float64) {
	if n > 0 {
		m.chunksAdded.Add(n)
	}
}

func (m *Metrics) deleteChunks(n float64) {
	if n > 0 {
		m.chunksDeleted.Add(n)
	}
}

func (m *Metrics) observeSearch(d time.Duration) {
	m.searches.Inc()
	m.searchDuration.Observe(d.Seconds())
}
