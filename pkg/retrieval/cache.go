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

import (
	"container/list"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/kadirpekel/corpus/pkg/kb"
)

// Fingerprint derives a stable cache key from a retrieval request.
// encoding/json sorts map keys, so permuted-but-equal filters hash
// identically. MD5 is fine here; the key only needs to be stable.
func Fingerprint(query string, filters map[string]any, topK int) string {
	payload, err := json.Marshal(map[string]any{
		"query":   query,
		"filters": filters,
		"k":       topK,
	})
	if err != nil {
		// Filters are plain scalars in practice; fall back to the raw query.
		payload = []byte(query)
	}
	sum := md5.Sum(payload)
	return hex.EncodeToString(sum[:])
}

// Cache is a bounded LRU of retrieval results with per-entry TTL.
// Cached results are copies; evicting an entry never touches the store.
type Cache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	order    *list.List
	entries  map[string]*list.Element

	hits        int64
	misses      int64
	evictions   int64
	expirations int64
}

type cacheEntry struct {
	key      string
	results  []*kb.RetrievalResult
	storedAt time.Time
}

// NewCache creates a cache holding up to capacity entries for ttl each.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 100
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		ttl:      ttl,
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[string]*list.Element),
	}
}

// Get returns the cached results for key. Expired entries are evicted on
// access and counted as both an expiration and a miss.
func (c *Cache) Get(key string) ([]*kb.RetrievalResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	entry := elem.Value.(*cacheEntry)
	if time.Since(entry.storedAt) > c.ttl {
		c.removeLocked(elem)
		c.expirations++
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	return cloneResults(entry.results), true
}

// Put stores results under key, evicting the least recently used entry
// when at capacity.
func (c *Cache) Put(key string, results []*kb.RetrievalResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.results = cloneResults(results)
		entry.storedAt = time.Now()
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		if oldest := c.order.Back(); oldest != nil {
			c.removeLocked(oldest)
			c.evictions++
		}
	}

	entry := &cacheEntry{key: key, results: cloneResults(results), storedAt: time.Now()}
	c.entries[key] = c.order.PushFront(entry)
}

// Invalidate drops every entry. Per-query invalidation would need a
// reverse index from document ids to fingerprints; clearing is correct
// and cheap at these sizes.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.entries = make(map[string]*list.Element)
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns cache counters.
func (c *Cache) Stats() map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	return map[string]any{
		"size":        c.order.Len(),
		"capacity":    c.capacity,
		"ttl_seconds": c.ttl.Seconds(),
		"hits":        c.hits,
		"misses":      c.misses,
		"evictions":   c.evictions,
		"expirations": c.expirations,
	}
}

func (c *Cache) removeLocked(elem *list.Element) {
	entry := c.order.Remove(elem).(*cacheEntry)
	delete(c.entries, entry.key)
}

func cloneResults(results []*kb.RetrievalResult) []*kb.RetrievalResult {
	out := make([]*kb.RetrievalResult, len(results))
	for i, r := range results {
		clone := *r
		clone.Chunk = r.Chunk.Clone()
		out[i] = &clone
	}
	return out
}
