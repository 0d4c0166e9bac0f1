package knowledge

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// DBTX abstracts pgx execution so the querier works with both a pool
// and a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const insertChunkSQL = `
INSERT INTO thread_documents (collection, content, embedding, metadata)
VALUES ($1, $2, $3, $4)
`

const searchChunksSQL = `
SELECT content, metadata
FROM thread_documents
WHERE collection = $1
ORDER BY embedding <=> $2
LIMIT $3
`

const countChunksSQL = `
SELECT COUNT(*) FROM thread_documents WHERE collection = $1
`

// PostgresQuerier implements Querier against the thread_documents table.
type PostgresQuerier struct {
	db DBTX
}

var _ Querier = (*PostgresQuerier)(nil)

// NewPostgresQuerier creates a PostgresQuerier over db.
func NewPostgresQuerier(db DBTX) *PostgresQuerier {
	return &PostgresQuerier{db: db}
}

func (q *PostgresQuerier) InsertChunk(ctx context.Context, arg InsertChunkParams) error {
	_, err := q.db.Exec(ctx, insertChunkSQL, arg.Collection, arg.Content, arg.Embedding, arg.Metadata)
	if err != nil {
		return fmt.Errorf("inserting chunk: %w", err)
	}
	return nil
}

func (q *PostgresQuerier) SearchChunks(ctx context.Context, collection string, embedding pgvector.Vector, topK int32) ([]ChunkRow, error) {
	rows, err := q.db.Query(ctx, searchChunksSQL, collection, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	var out []ChunkRow
	for rows.Next() {
		var row ChunkRow
		if err := rows.Scan(&row.Content, &row.Metadata); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}
	return out, nil
}

func (q *PostgresQuerier) CountChunks(ctx context.Context, collection string) (int64, error) {
	var count int64
	if err := q.db.QueryRow(ctx, countChunksSQL, collection).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}
