package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/kadirpekel/corpus/pkg/kb"
)

// PineconeProvider adapts the Pinecone cloud vector database. The
// collection name maps to a Pinecone index.
type PineconeProvider struct {
	config Config
	client *pinecone.Client
}

// NewPineconeProvider creates a Pinecone-backed provider. An API key is
// required.
func NewPineconeProvider(cfg Config) (*PineconeProvider, error) {
	cfg.SetDefaults()
	if cfg.APIKey == "" {
		return nil, NewStorageError("pinecone", "init", KindOperation,
			"API key is required", nil)
	}

	client, err := pinecone.NewClient(pinecone.NewClientParams{
		ApiKey: cfg.APIKey,
		Host:   cfg.Host,
	})
	if err != nil {
		return nil, NewConnectionError("pinecone", "init", "failed to create client", err)
	}
	return &PineconeProvider{config: cfg, client: client}, nil
}

// Initialize verifies the index exists.
func (p *PineconeProvider) Initialize(ctx context.Context) error {
	if _, err := p.client.DescribeIndex(ctx, p.config.Collection); err != nil {
		return NewConnectionError("pinecone", "init",
			fmt.Sprintf("failed to describe index %s", p.config.Collection), err)
	}
	return nil
}

// Close is a no-op; index connections are per-operation.
func (p *PineconeProvider) Close() error { return nil }

func (p *PineconeProvider) connect(ctx context.Context) (*pinecone.IndexConnection, error) {
	index, err := p.client.DescribeIndex(ctx, p.config.Collection)
	if err != nil {
		return nil, NewConnectionError("pinecone", "connect",
			fmt.Sprintf("failed to describe index %s", p.config.Collection), err)
	}
	conn, err := p.client.Index(pinecone.NewIndexConnParams{Host: index.Host})
	if err != nil {
		return nil, NewConnectionError("pinecone", "connect",
			"failed to create index connection", err)
	}
	return conn, nil
}

// AddChunks upserts chunks as vectors.
func (p *PineconeProvider) AddChunks(ctx context.Context, chunks []*kb.Chunk) error {
	vectors := make([]*pinecone.Vector, 0, len(chunks))
	for _, ch := range chunks {
		if len(ch.Embedding) == 0 {
			slog.Warn("skipping chunk without embedding", "chunk_id", ch.ID)
			continue
		}
		meta, err := pineconeMetadata(ch)
		if err != nil {
			return NewStorageError("pinecone", "add_chunks", KindOperation,
				fmt.Sprintf("failed to encode metadata for %s", ch.ID), err)
		}
		vectors = append(vectors, &pinecone.Vector{
			Id:       ch.ID,
			Values:   ch.Embedding,
			Metadata: meta,
		})
	}
	if len(vectors) == 0 {
		return nil
	}

	conn, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.UpsertVectors(ctx, vectors); err != nil {
		return NewConnectionError("pinecone", "add_chunks", "failed to upsert vectors", err)
	}
	return nil
}

// GetChunk fetches one vector, or (nil, nil) when absent.
func (p *PineconeProvider) GetChunk(ctx context.Context, id string) (*kb.Chunk, error) {
	chunks, err := p.GetChunks(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	return chunks[0], nil
}

// GetChunks fetches vectors by id, omitting missing ones.
func (p *PineconeProvider) GetChunks(ctx context.Context, ids []string) ([]*kb.Chunk, error) {
	conn, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	resp, err := conn.FetchVectors(ctx, ids)
	if err != nil {
		return nil, NewConnectionError("pinecone", "get_chunks", "fetch failed", err)
	}

	out := make([]*kb.Chunk, 0, len(ids))
	for _, id := range ids {
		if vec, ok := resp.Vectors[id]; ok && vec != nil {
			out = append(out, chunkFromPineconeVector(vec))
		}
	}
	return out, nil
}

// GetDocumentChunks is approximated by a metadata-filtered query; Pinecone
// has no listing API.
func (p *PineconeProvider) GetDocumentChunks(ctx context.Context, documentID string) ([]*kb.Chunk, error) {
	conn, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	filter, err := structpb.NewStruct(map[string]any{"document_id": documentID})
	if err != nil {
		return nil, NewStorageError("pinecone", "get_document_chunks", KindOperation,
			"failed to build filter", err)
	}

	dim := p.config.Dimension
	if dim <= 0 {
		dim = 768
	}
	resp, err := conn.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          make([]float32, dim),
		TopK:            uint32(p.config.MaxChunks),
		MetadataFilter:  filter,
		IncludeValues:   true,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, NewConnectionError("pinecone", "get_document_chunks", "query failed", err)
	}

	out := make([]*kb.Chunk, 0, len(resp.Matches))
	for _, match := range resp.Matches {
		if match.Vector != nil {
			out = append(out, chunkFromPineconeVector(match.Vector))
		}
	}
	sortChunksByStart(out)
	return out, nil
}

// SearchSimilar queries the index by vector values.
func (p *PineconeProvider) SearchSimilar(ctx context.Context, queryVector []float32, opts SearchOptions) ([]kb.RetrievalResult, error) {
	if opts.TopK <= 0 {
		return nil, nil
	}

	conn, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	req := &pinecone.QueryByVectorValuesRequest{
		Vector:          queryVector,
		TopK:            uint32(opts.TopK),
		IncludeValues:   true,
		IncludeMetadata: true,
	}
	if len(opts.Filters) > 0 {
		flat := make(map[string]any, len(opts.Filters))
		for k, v := range opts.Filters {
			field := k
			if k != "document_id" {
				field = "meta_" + k
			}
			flat[field] = kb.StringifyValue(v)
		}
		filter, err := structpb.NewStruct(flat)
		if err != nil {
			return nil, NewStorageError("pinecone", "search_similar", KindOperation,
				"failed to build filter", err)
		}
		req.MetadataFilter = filter
	}

	resp, err := conn.QueryByVectorValues(ctx, req)
	if err != nil {
		return nil, NewConnectionError("pinecone", "search_similar", "query failed", err)
	}

	results := make([]kb.RetrievalResult, 0, len(resp.Matches))
	rank := 0
	for _, match := range resp.Matches {
		if match.Vector == nil {
			continue
		}
		score := float64(match.Score)
		if score < 0 {
			score = 0
		} else if score > 1 {
			score = 1
		}
		if score < opts.MinScore {
			continue
		}
		results = append(results, kb.RetrievalResult{
			Chunk: chunkFromPineconeVector(match.Vector),
			Score: score,
			Rank:  rank,
		})
		rank++
	}
	return results, nil
}

// KeywordSearch is not supported by the pinecone adapter; it returns no
// results.
func (p *PineconeProvider) KeywordSearch(ctx context.Context, query string, opts SearchOptions) ([]kb.RetrievalResult, error) {
	slog.Warn("keyword search is not supported by the pinecone provider")
	return nil, nil
}

// DeleteChunks removes vectors by id.
func (p *PineconeProvider) DeleteChunks(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	conn, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.DeleteVectorsById(ctx, ids); err != nil {
		return NewConnectionError("pinecone", "delete_chunks", "failed to delete vectors", err)
	}
	return nil
}

// DeleteDocument removes vectors by document id filter.
func (p *PineconeProvider) DeleteDocument(ctx context.Context, documentID string) error {
	conn, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	filter, err := structpb.NewStruct(map[string]any{"document_id": documentID})
	if err != nil {
		return NewStorageError("pinecone", "delete_document", KindOperation,
			"failed to build filter", err)
	}
	if err := conn.DeleteVectorsByFilter(ctx, filter); err != nil {
		return NewConnectionError("pinecone", "delete_document", "failed to delete by filter", err)
	}
	return nil
}

// Clear removes every vector in the default namespace.
func (p *PineconeProvider) Clear(ctx context.Context) error {
	conn, err := p.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.DeleteAllVectorsInNamespace(ctx); err != nil {
		return NewConnectionError("pinecone", "clear", "failed to clear namespace", err)
	}
	return nil
}

// UpdateMetadata merges metadata into a chunk and re-upserts it.
func (p *PineconeProvider) UpdateMetadata(ctx context.Context, id string, md map[string]any) error {
	ch, err := p.GetChunk(ctx, id)
	if err != nil {
		return err
	}
	if ch == nil {
		return NewStorageError("pinecone", "update_metadata", KindNotFound,
			fmt.Sprintf("chunk %s not found", id), nil)
	}
	ch.Metadata = kb.MergeMetadata(ch.Metadata, md)
	return p.AddChunks(ctx, []*kb.Chunk{ch})
}

// Stats returns index counters.
func (p *PineconeProvider) Stats(ctx context.Context) (map[string]any, error) {
	conn, err := p.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	stats, err := conn.DescribeIndexStats(ctx)
	if err != nil {
		return nil, NewConnectionError("pinecone", "stats", "describe stats failed", err)
	}
	return map[string]any{
		"provider":        p.Name(),
		"total_chunks":    stats.TotalVectorCount,
		"total_documents": -1, // not tracked server-side
		"collection":      p.config.Collection,
	}, nil
}

// Name identifies the provider.
func (p *PineconeProvider) Name() string { return "pinecone" }

// Ensure PineconeProvider implements Provider.
var _ Provider = (*PineconeProvider)(nil)

// pineconeMetadata encodes a chunk into pinecone metadata: structural
// fields, flattened scalar metadata for filtering, and the full metadata
// as JSON.
func pineconeMetadata(ch *kb.Chunk) (*pinecone.Metadata, error) {
	flat := map[string]any{
		"text":        ch.Text,
		"document_id": ch.DocumentID,
		"start_index": ch.StartIndex,
		"end_index":   ch.EndIndex,
	}
	for k, v := range ch.Metadata {
		if kb.IsIndexableValue(v) {
			flat["meta_"+k] = kb.StringifyValue(v)
		}
	}
	if len(ch.Metadata) > 0 {
		blob, err := json.Marshal(ch.Metadata)
		if err != nil {
			return nil, err
		}
		flat["metadata_json"] = string(blob)
	}
	return structpb.NewStruct(flat)
}

func chunkFromPineconeVector(vec *pinecone.Vector) *kb.Chunk {
	ch := &kb.Chunk{ID: vec.Id, Embedding: vec.Values}
	if vec.Metadata == nil {
		return ch
	}
	fields := vec.Metadata.AsMap()
	if v, ok := fields["text"].(string); ok {
		ch.Text = v
	}
	if v, ok := fields["document_id"].(string); ok {
		ch.DocumentID = v
	}
	if v, ok := fields["start_index"].(float64); ok {
		ch.StartIndex = int(v)
	}
	if v, ok := fields["end_index"].(float64); ok {
		ch.EndIndex = int(v)
	}
	if blob, ok := fields["metadata_json"].(string); ok {
		_ = json.Unmarshal([]byte(blob), &ch.Metadata)
	}
	return ch
}

func init() {
	_ = RegisterProvider("pinecone", func(cfg Config) (Provider, error) {
		return NewPineconeProvider(cfg)
	})
}
