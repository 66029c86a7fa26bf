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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kadirpekel/corpus/pkg/kb"
)

const (
	chunksFile         = "chunks.json"
	vectorsFile        = "vectors.json"
	documentChunksFile = "document_chunks.json"
	metadataIndexFile  = "metadata_index.json"
	timestampFile      = "timestamp.txt"
)

// saveLocked writes the four state files plus the save timestamp. Each file
// is written to a temp name and renamed, so a crash mid-save never corrupts
// pre-existing state. Caller holds the write lock.
func (p *MemoryProvider) saveLocked() error {
	dir := p.config.PersistencePath
	if dir == "" {
		return NewStorageError(p.Name(), "save", KindOperation,
			"persistence_path is not configured", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return NewStorageError(p.Name(), "save", KindOperation,
			"failed to create persistence directory", err)
	}

	files := map[string]any{
		chunksFile:         p.chunks,
		vectorsFile:        p.vectors,
		documentChunksFile: p.documentChunks,
		metadataIndexFile:  p.metadataIndex,
	}
	for name, state := range files {
		if err := writeJSONAtomic(filepath.Join(dir, name), state); err != nil {
			return NewStorageError(p.Name(), "save", KindOperation,
				fmt.Sprintf("failed to write %s", name), err)
		}
	}

	now := time.Now()
	ts := strconv.FormatFloat(float64(now.UnixNano())/1e9, 'f', 6, 64)
	if err := writeFileAtomic(filepath.Join(dir, timestampFile), []byte(ts)); err != nil {
		return NewStorageError(p.Name(), "save", KindOperation,
			"failed to write timestamp", err)
	}

	p.lastSave = now
	slog.Debug("store state saved", "path", dir, "chunks", len(p.chunks))
	return nil
}

// loadLocked reconstitutes state from disk. Missing files mean a fresh
// store, not an error; all four state files must be present for a load to
// happen. Caller holds the write lock.
func (p *MemoryProvider) loadLocked() error {
	dir := p.config.PersistencePath
	if dir == "" {
		return nil
	}
	for _, name := range []string{chunksFile, vectorsFile, documentChunksFile, metadataIndexFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			slog.Debug("no persisted state to load", "path", dir, "missing", name)
			return nil
		}
	}

	var (
		chunks         map[string]*kb.Chunk
		vectors        map[string][]float32
		documentChunks map[string][]string
		metadataIndex  map[string]map[string][]string
	)
	if err := readJSON(filepath.Join(dir, chunksFile), &chunks); err != nil {
		return NewStorageError(p.Name(), "load", KindOperation, "failed to read chunks", err)
	}
	if err := readJSON(filepath.Join(dir, vectorsFile), &vectors); err != nil {
		return NewStorageError(p.Name(), "load", KindOperation, "failed to read vectors", err)
	}
	if err := readJSON(filepath.Join(dir, documentChunksFile), &documentChunks); err != nil {
		return NewStorageError(p.Name(), "load", KindOperation, "failed to read document index", err)
	}
	if err := readJSON(filepath.Join(dir, metadataIndexFile), &metadataIndex); err != nil {
		return NewStorageError(p.Name(), "load", KindOperation, "failed to read metadata index", err)
	}

	// Re-attach embeddings from the vectors map and undo JSON's number
	// coercion in chunk metadata where the textual form permits.
	for id, ch := range chunks {
		if vec, ok := vectors[id]; ok {
			ch.Embedding = vec
		}
		for k, v := range ch.Metadata {
			ch.Metadata[k] = decodeLoadedValue(v)
		}
	}

	p.chunks = chunks
	p.vectors = vectors
	p.documentChunks = documentChunks
	p.metadataIndex = metadataIndex

	if ts, err := os.ReadFile(filepath.Join(dir, timestampFile)); err == nil {
		if secs, err := strconv.ParseFloat(strings.TrimSpace(string(ts)), 64); err == nil {
			p.lastSave = time.Unix(0, int64(secs*1e9))
		}
	}

	slog.Info("store state loaded", "path", dir,
		"chunks", len(p.chunks), "documents", len(p.documentChunks))
	return nil
}

// maybeAutoSaveLocked saves opportunistically from mutating operations when
// the auto-save interval has elapsed. Caller holds the write lock.
func (p *MemoryProvider) maybeAutoSaveLocked() {
	if !p.config.PersistenceEnabled || !p.config.AutoSave {
		return
	}
	interval := time.Duration(p.config.AutoSaveInterval * float64(time.Second))
	if time.Since(p.lastSave) <= interval {
		return
	}
	if err := p.saveLocked(); err != nil {
		slog.Error("auto-save failed", "error", err)
	}
}

// removeStateFiles deletes the persisted files on Clear.
func (p *MemoryProvider) removeStateFiles() error {
	dir := p.config.PersistencePath
	if dir == "" {
		return nil
	}
	for _, name := range []string{chunksFile, vectorsFile, documentChunksFile, metadataIndexFile, timestampFile} {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return NewStorageError(p.Name(), "clear", KindOperation,
				fmt.Sprintf("failed to remove %s", name), err)
		}
	}
	return nil
}

// decodeLoadedValue undoes JSON's type coercion heuristically: integral
// float64 values become int, so metadata round-trips as the values the
// pipeline originally wrote.
func decodeLoadedValue(v any) any {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return int(int64(f))
	}
	return v
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return writeFileAtomic(path, data)
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
