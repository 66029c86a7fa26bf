package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/kadirpekel/corpus/pkg/kb"
)

// QdrantProvider adapts the Qdrant gRPC client. Chunk fields live in the
// point payload; the full metadata map is preserved as JSON alongside the
// flattened scalar keys used for filtering.
type QdrantProvider struct {
	config Config
	client *qdrant.Client
}

// NewQdrantProvider creates a Qdrant-backed provider.
func NewQdrantProvider(cfg Config) (*QdrantProvider, error) {
	cfg.SetDefaults()
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.EnableTLS,
	})
	if err != nil {
		return nil, NewConnectionError("qdrant", "init", "failed to create client", err)
	}
	return &QdrantProvider{config: cfg, client: client}, nil
}

// Initialize ensures the collection exists.
func (p *QdrantProvider) Initialize(ctx context.Context) error {
	exists, err := p.client.CollectionExists(ctx, p.config.Collection)
	if err != nil {
		return NewConnectionError("qdrant", "init", "failed to check collection", err)
	}
	if exists {
		return nil
	}

	size := uint64(p.config.Dimension)
	if size == 0 {
		size = 768
	}
	err = p.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: p.config.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     size,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return NewStorageError("qdrant", "init", KindOperation,
			"failed to create collection", err)
	}
	return nil
}

// Close closes the gRPC connection.
func (p *QdrantProvider) Close() error {
	return p.client.Close()
}

// AddChunks upserts chunks as points.
func (p *QdrantProvider) AddChunks(ctx context.Context, chunks []*kb.Chunk) error {
	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, ch := range chunks {
		if len(ch.Embedding) == 0 {
			slog.Warn("skipping chunk without embedding", "chunk_id", ch.ID)
			continue
		}
		payload, err := chunkPayload(ch)
		if err != nil {
			return NewStorageError("qdrant", "add_chunks", KindOperation,
				fmt.Sprintf("failed to encode payload for %s", ch.ID), err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(ch.ID),
			Vectors: qdrant.NewVectors(ch.Embedding...),
			Payload: payload,
		})
	}
	if len(points) == 0 {
		return nil
	}

	_, err := p.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: p.config.Collection,
		Points:         points,
	})
	if err != nil {
		return NewConnectionError("qdrant", "add_chunks", "failed to upsert points", err)
	}
	return nil
}

// GetChunk fetches one point, or (nil, nil) when absent.
func (p *QdrantProvider) GetChunk(ctx context.Context, id string) (*kb.Chunk, error) {
	chunks, err := p.GetChunks(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	return chunks[0], nil
}

// GetChunks fetches points by id, omitting missing ones.
func (p *QdrantProvider) GetChunks(ctx context.Context, ids []string) ([]*kb.Chunk, error) {
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}

	points, err := p.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: p.config.Collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, NewConnectionError("qdrant", "get_chunks", "failed to get points", err)
	}

	out := make([]*kb.Chunk, 0, len(points))
	for _, point := range points {
		out = append(out, chunkFromPayload(pointIDString(point.Id), point.Payload, retrievedVector(point.Vectors)))
	}
	return out, nil
}

// GetDocumentChunks scrolls the collection filtered by document id.
func (p *QdrantProvider) GetDocumentChunks(ctx context.Context, documentID string) ([]*kb.Chunk, error) {
	points, err := p.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: p.config.Collection,
		Filter:         qdrantFilter(map[string]any{"document_id": documentID}),
		Limit:          qdrant.PtrOf(uint32(p.config.MaxChunks)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, NewConnectionError("qdrant", "get_document_chunks", "scroll failed", err)
	}

	out := make([]*kb.Chunk, 0, len(points))
	for _, point := range points {
		out = append(out, chunkFromPayload(pointIDString(point.Id), point.Payload, retrievedVector(point.Vectors)))
	}
	// Scroll order is by id; chunk ids embed the index so this matches
	// insertion order for single-digit counts only. Sort by start offset.
	sortChunksByStart(out)
	return out, nil
}

// SearchSimilar runs a vector query.
func (p *QdrantProvider) SearchSimilar(ctx context.Context, queryVector []float32, opts SearchOptions) ([]kb.RetrievalResult, error) {
	if opts.TopK <= 0 {
		return nil, nil
	}

	query := &qdrant.QueryPoints{
		CollectionName: p.config.Collection,
		Query:          qdrant.NewQuery(queryVector...),
		Limit:          qdrant.PtrOf(uint64(opts.TopK)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	}
	if len(opts.Filters) > 0 {
		query.Filter = qdrantFilter(opts.Filters)
	}
	if opts.MinScore > 0 {
		query.ScoreThreshold = qdrant.PtrOf(float32(opts.MinScore))
	}

	points, err := p.client.Query(ctx, query)
	if err != nil {
		return nil, NewConnectionError("qdrant", "search_similar", "query failed", err)
	}

	results := make([]kb.RetrievalResult, 0, len(points))
	for rank, point := range points {
		score := float64(point.Score)
		if score < 0 {
			score = 0
		} else if score > 1 {
			score = 1
		}
		results = append(results, kb.RetrievalResult{
			Chunk: chunkFromPayload(pointIDString(point.Id), point.Payload, scoredVector(point.Vectors)),
			Score: score,
			Rank:  rank,
		})
	}
	return results, nil
}

// KeywordSearch is not supported by the qdrant adapter; it returns no
// results.
func (p *QdrantProvider) KeywordSearch(ctx context.Context, query string, opts SearchOptions) ([]kb.RetrievalResult, error) {
	slog.Warn("keyword search is not supported by the qdrant provider")
	return nil, nil
}

// DeleteChunks removes points by id.
func (p *QdrantProvider) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = qdrant.NewID(id)
	}

	_, err := p.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: p.config.Collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return NewConnectionError("qdrant", "delete_chunks", "failed to delete points", err)
	}
	return nil
}

// DeleteDocument removes points by document id filter.
func (p *QdrantProvider) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := p.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: p.config.Collection,
		Points:         qdrant.NewPointsSelectorFilter(qdrantFilter(map[string]any{"document_id": documentID})),
	})
	if err != nil {
		return NewConnectionError("qdrant", "delete_document", "failed to delete by filter", err)
	}
	return nil
}

// Clear drops and recreates the collection.
func (p *QdrantProvider) Clear(ctx context.Context) error {
	if err := p.client.DeleteCollection(ctx, p.config.Collection); err != nil {
		return NewConnectionError("qdrant", "clear", "failed to delete collection", err)
	}
	return p.Initialize(ctx)
}

// UpdateMetadata merges metadata into a chunk and rewrites the point.
func (p *QdrantProvider) UpdateMetadata(ctx context.Context, id string, md map[string]any) error {
	ch, err := p.GetChunk(ctx, id)
	if err != nil {
		return err
	}
	if ch == nil {
		return NewStorageError("qdrant", "update_metadata", KindNotFound,
			fmt.Sprintf("chunk %s not found", id), nil)
	}
	ch.Metadata = kb.MergeMetadata(ch.Metadata, md)
	return p.AddChunks(ctx, []*kb.Chunk{ch})
}

// Stats returns collection counters.
func (p *QdrantProvider) Stats(ctx context.Context) (map[string]any, error) {
	count, err := p.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: p.config.Collection,
	})
	if err != nil {
		return nil, NewConnectionError("qdrant", "stats", "count failed", err)
	}
	return map[string]any{
		"provider":        p.Name(),
		"total_chunks":    count,
		"total_documents": -1, // not tracked server-side
		"collection":      p.config.Collection,
	}, nil
}

// Name identifies the provider.
func (p *QdrantProvider) Name() string { return "qdrant" }

// Ensure QdrantProvider implements Provider.
var _ Provider = (*QdrantProvider)(nil)

// chunkPayload encodes a chunk into a qdrant payload: structural fields,
// flattened scalar metadata for filtering, and the full metadata as JSON.
func chunkPayload(ch *kb.Chunk) (map[string]*qdrant.Value, error) {
	payload := map[string]*qdrant.Value{
		"text":        qdrant.NewValueString(ch.Text),
		"document_id": qdrant.NewValueString(ch.DocumentID),
		"start_index": qdrant.NewValueInt(int64(ch.StartIndex)),
		"end_index":   qdrant.NewValueInt(int64(ch.EndIndex)),
	}
	for k, v := range ch.Metadata {
		if !kb.IsIndexableValue(v) {
			continue
		}
		payload["meta_"+k] = qdrant.NewValueString(kb.StringifyValue(v))
	}
	if len(ch.Metadata) > 0 {
		blob, err := json.Marshal(ch.Metadata)
		if err != nil {
			return nil, err
		}
		payload["metadata_json"] = qdrant.NewValueString(string(blob))
	}
	return payload, nil
}

func chunkFromPayload(id string, payload map[string]*qdrant.Value, vector []float32) *kb.Chunk {
	ch := &kb.Chunk{ID: id, Embedding: vector}
	if v, ok := payload["text"]; ok {
		ch.Text = v.GetStringValue()
	}
	if v, ok := payload["document_id"]; ok {
		ch.DocumentID = v.GetStringValue()
	}
	if v, ok := payload["start_index"]; ok {
		ch.StartIndex = int(v.GetIntegerValue())
	}
	if v, ok := payload["end_index"]; ok {
		ch.EndIndex = int(v.GetIntegerValue())
	}
	if v, ok := payload["metadata_json"]; ok {
		_ = json.Unmarshal([]byte(v.GetStringValue()), &ch.Metadata)
	}
	return ch
}

// qdrantFilter builds a must-match-all filter over stringified values; the
// payload stores scalar metadata under meta_ keys.
func qdrantFilter(filters map[string]any) *qdrant.Filter {
	conditions := make([]*qdrant.Condition, 0, len(filters))
	for key, value := range filters {
		field := key
		if key != "document_id" {
			field = "meta_" + key
		}
		conditions = append(conditions, qdrant.NewMatch(field, kb.StringifyValue(value)))
	}
	return &qdrant.Filter{Must: conditions}
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	}
	return ""
}

func retrievedVector(vectors *qdrant.VectorsOutput) []float32 {
	if vectors == nil {
		return nil
	}
	if dense := vectors.GetVector(); dense != nil {
		return dense.GetData()
	}
	return nil
}

func scoredVector(vectors *qdrant.VectorsOutput) []float32 {
	return retrievedVector(vectors)
}

func sortChunksByStart(chunks []*kb.Chunk) {
	sort.Slice(chunks, func(i, j int) bool {
		return chunks[i].StartIndex < chunks[j].StartIndex
	})
}

func init() {
	_ = RegisterProvider("qdrant", func(cfg Config) (Provider, error) {
		return NewQdrantProvider(cfg)
	})
}
