package thread

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the subset of pgx operations PostgresQuerier needs. Both
// *pgxpool.Pool and pgx.Tx satisfy it, so the same querier works inside and
// outside transactions.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresQuerier implements Querier against PostgreSQL.
type PostgresQuerier struct {
	db DBTX
}

// NewPostgresQuerier creates a querier bound to db.
func NewPostgresQuerier(db DBTX) *PostgresQuerier {
	return &PostgresQuerier{db: db}
}

var _ Querier = (*PostgresQuerier)(nil)

const ensureThreadSQL = `
INSERT INTO threads (id) VALUES ($1)
ON CONFLICT (id) DO NOTHING`

func (q *PostgresQuerier) EnsureThread(ctx context.Context, threadID string) error {
	_, err := q.db.Exec(ctx, ensureThreadSQL, threadID)
	return err
}

const lockThreadSQL = `
SELECT id FROM threads WHERE id = $1 FOR UPDATE`

func (q *PostgresQuerier) LockThread(ctx context.Context, threadID string) error {
	var id string
	if err := q.db.QueryRow(ctx, lockThreadSQL, threadID).Scan(&id); err != nil {
		return fmt.Errorf("lock thread: %w", err)
	}
	return nil
}

const maxSequenceSQL = `
SELECT COALESCE(MAX(sequence_number), 0) FROM thread_messages WHERE thread_id = $1`

func (q *PostgresQuerier) MaxSequence(ctx context.Context, threadID string) (int32, error) {
	var seq int32
	if err := q.db.QueryRow(ctx, maxSequenceSQL, threadID).Scan(&seq); err != nil {
		return 0, err
	}
	return seq, nil
}

const insertMessageSQL = `
INSERT INTO thread_messages (id, thread_id, role, content, tool_calls, tool_call_id, sequence_number)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
ON CONFLICT (id) DO NOTHING`

func (q *PostgresQuerier) InsertMessage(ctx context.Context, arg InsertMessageParams) (bool, error) {
	row := arg.Row
	tag, err := q.db.Exec(ctx, insertMessageSQL,
		row.ID, row.ThreadID, row.Role, row.Content, row.ToolCalls, row.ToolCallID, row.SequenceNumber)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const touchThreadSQL = `
UPDATE threads SET updated_at = now(), message_count = $2 WHERE id = $1`

func (q *PostgresQuerier) TouchThread(ctx context.Context, threadID string, messageCount int32) error {
	_, err := q.db.Exec(ctx, touchThreadSQL, threadID, messageCount)
	return err
}

const listMessagesSQL = `
SELECT id, thread_id, role, content, tool_calls, COALESCE(tool_call_id, ''), sequence_number, created_at
FROM thread_messages
WHERE thread_id = $1
ORDER BY sequence_number ASC`

func (q *PostgresQuerier) ListMessages(ctx context.Context, threadID string) ([]MessageRow, error) {
	rows, err := q.db.Query(ctx, listMessagesSQL, threadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MessageRow
	for rows.Next() {
		var row MessageRow
		if err := rows.Scan(&row.ID, &row.ThreadID, &row.Role, &row.Content,
			&row.ToolCalls, &row.ToolCallID, &row.SequenceNumber, &row.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

const listThreadsSQL = `
SELECT id, COALESCE(title, ''), message_count, created_at, updated_at
FROM threads
ORDER BY updated_at DESC
LIMIT $1 OFFSET $2`

func (q *PostgresQuerier) ListThreads(ctx context.Context, limit, offset int32) ([]ThreadRow, error) {
	rows, err := q.db.Query(ctx, listThreadsSQL, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ThreadRow
	for rows.Next() {
		var row ThreadRow
		if err := rows.Scan(&row.ID, &row.Title, &row.MessageCount, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

const setTitleSQL = `
INSERT INTO threads (id, title) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET title = EXCLUDED.title`

func (q *PostgresQuerier) SetTitle(ctx context.Context, threadID, title string) error {
	_, err := q.db.Exec(ctx, setTitleSQL, threadID, title)
	return err
}

const getThreadSQL = `
SELECT id, COALESCE(title, ''), message_count, created_at, updated_at
FROM threads WHERE id = $1`

// ErrThreadNotFound indicates the requested thread does not exist.
var ErrThreadNotFound = errors.New("thread not found")

func (q *PostgresQuerier) GetThread(ctx context.Context, threadID string) (ThreadRow, error) {
	var row ThreadRow
	err := q.db.QueryRow(ctx, getThreadSQL, threadID).
		Scan(&row.ID, &row.Title, &row.MessageCount, &row.CreatedAt, &row.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ThreadRow{}, ErrThreadNotFound
	}
	if err != nil {
		return ThreadRow{}, err
	}
	return row, nil
}
