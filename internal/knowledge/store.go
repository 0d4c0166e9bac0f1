package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pgvector/pgvector-go"
)

// ErrNoContent indicates an ingestion request with nothing to index.
var ErrNoContent = errors.New("no content to ingest")

// ChunkRow is the storage representation of a chunk hit.
type ChunkRow struct {
	Content  string
	Metadata []byte
}

// chunkMetadata is the JSON shape stored alongside each chunk.
type chunkMetadata struct {
	Source   string `json:"source"`
	Position int    `json:"position"`
}

// InsertChunkParams carries one chunk insert.
type InsertChunkParams struct {
	Collection string
	Content    string
	Embedding  pgvector.Vector
	Metadata   []byte
}

// Querier defines the database operations Store depends on.
// Defined by the consumer so unit tests can swap in a mock.
type Querier interface {
	// InsertChunk stores one chunk with its embedding.
	InsertChunk(ctx context.Context, arg InsertChunkParams) error

	// SearchChunks returns the topK nearest chunks in the collection
	// by cosine distance.
	SearchChunks(ctx context.Context, collection string, embedding pgvector.Vector, topK int32) ([]ChunkRow, error)

	// CountChunks counts chunks in the collection.
	CountChunks(ctx context.Context, collection string) (int64, error)
}

// Store is the vector index adapter: per-thread document collections
// with embedding-based retrieval.
//
// Store is safe for concurrent use.
type Store struct {
	querier  Querier
	embedder Embedder
	chunker  *Chunker
	logger   *slog.Logger
}

// NewStore creates a Store.
func NewStore(querier Querier, embedder Embedder, chunker *Chunker, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{querier: querier, embedder: embedder, chunker: chunker, logger: logger}
}

// Ingest chunks text, embeds the chunks in batches, and stores them in
// the thread's collection. Chunks are immutable once indexed; repeated
// ingestion of the same source appends rather than replaces.
func (s *Store) Ingest(ctx context.Context, threadID, source, text string) (IngestStats, error) {
	chunks := s.chunker.Split(text)
	if len(chunks) == 0 {
		return IngestStats{}, ErrNoContent
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, chunks)
	if err != nil {
		return IngestStats{}, fmt.Errorf("embedding %d chunks: %w", len(chunks), err)
	}
	if len(vectors) != len(chunks) {
		return IngestStats{}, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	collection := CollectionName(threadID)
	for i, chunk := range chunks {
		metadata, err := json.Marshal(chunkMetadata{Source: source, Position: i})
		if err != nil {
			return IngestStats{}, fmt.Errorf("encoding metadata: %w", err)
		}
		err = s.querier.InsertChunk(ctx, InsertChunkParams{
			Collection: collection,
			Content:    chunk,
			Embedding:  pgvector.NewVector(vectors[i]),
			Metadata:   metadata,
		})
		if err != nil {
			return IngestStats{}, fmt.Errorf("storing chunk %d: %w", i, err)
		}
	}

	s.logger.Info("ingested document", "thread_id", threadID, "source", source, "chunks", len(chunks))
	return IngestStats{Source: source, Chunks: len(chunks)}, nil
}

// Search returns the topK most similar chunks from the thread's
// collection, or nil when the collection is empty.
func (s *Store) Search(ctx context.Context, threadID, query string, topK int) ([]Chunk, error) {
	collection := CollectionName(threadID)

	count, err := s.querier.CountChunks(ctx, collection)
	if err != nil {
		return nil, fmt.Errorf("counting chunks: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	embedding, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	rows, err := s.querier.SearchChunks(ctx, collection, pgvector.NewVector(embedding), int32(topK)) //nolint:gosec // topK is small
	if err != nil {
		return nil, fmt.Errorf("searching collection: %w", err)
	}

	chunks := make([]Chunk, 0, len(rows))
	for _, row := range rows {
		var meta chunkMetadata
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &meta); err != nil {
				return nil, fmt.Errorf("decoding chunk metadata: %w", err)
			}
		}
		chunks = append(chunks, Chunk{Content: row.Content, Source: meta.Source, Position: meta.Position})
	}
	return chunks, nil
}

// HasDocuments reports whether the thread has anything indexed.
func (s *Store) HasDocuments(ctx context.Context, threadID string) (bool, error) {
	count, err := s.querier.CountChunks(ctx, CollectionName(threadID))
	if err != nil {
		return false, fmt.Errorf("counting chunks: %w", err)
	}
	return count > 0, nil
}
