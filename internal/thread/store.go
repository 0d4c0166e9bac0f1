package thread

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrEmptyThreadID indicates an operation was attempted without a thread ID.
var ErrEmptyThreadID = errors.New("thread ID must not be empty")

// MessageRow is the storage representation of a Message.
type MessageRow struct {
	ID             uuid.UUID
	ThreadID       string
	Role           string
	Content        string
	ToolCalls      []byte // JSON-encoded []ToolCall, nil when absent
	ToolCallID     string
	SequenceNumber int32
	CreatedAt      time.Time
}

// ThreadRow is the storage representation of a Thread.
type ThreadRow struct {
	ID           string
	Title        string
	MessageCount int32
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InsertMessageParams carries one message insert.
type InsertMessageParams struct {
	Row MessageRow
}

// Querier defines the database operations Store depends on.
// Interfaces are defined by the consumer: this allows unit tests to use a
// mock while production uses the pgx implementation in postgres.go.
type Querier interface {
	// EnsureThread creates the thread row if it does not exist yet.
	EnsureThread(ctx context.Context, threadID string) error

	// LockThread acquires a row lock on the thread for the duration of
	// the surrounding transaction, serializing concurrent appenders.
	LockThread(ctx context.Context, threadID string) error

	// MaxSequence returns the highest sequence number in the thread,
	// or 0 when the thread has no messages.
	MaxSequence(ctx context.Context, threadID string) (int32, error)

	// InsertMessage inserts one message; returns false when a message
	// with the same ID already exists (idempotent replay).
	InsertMessage(ctx context.Context, arg InsertMessageParams) (bool, error)

	// TouchThread updates the thread's updated_at and message count.
	TouchThread(ctx context.Context, threadID string, messageCount int32) error

	// ListMessages returns all messages of a thread ordered by sequence.
	ListMessages(ctx context.Context, threadID string) ([]MessageRow, error)

	// ListThreads returns threads ordered by updated_at descending.
	ListThreads(ctx context.Context, limit, offset int32) ([]ThreadRow, error)

	// SetTitle stores the thread title.
	SetTitle(ctx context.Context, threadID, title string) error

	// GetThread returns a single thread row.
	GetThread(ctx context.Context, threadID string) (ThreadRow, error)
}

// Store is the checkpoint store: durable, append-only persistence of
// thread message sequences keyed by thread ID.
//
// Store is safe for concurrent use; appends to the same thread are
// serialized by a database row lock.
type Store struct {
	querier Querier
	pool    *pgxpool.Pool // nil in unit tests; disables transactions
	logger  *slog.Logger
}

// NewStore creates a Store.
//
// Example (production):
//
//	store := thread.NewStore(thread.NewPostgresQuerier(pool), pool, logger)
//
// Example (testing):
//
//	store := thread.NewStore(mockQuerier, nil, log.NewNop())
func NewStore(querier Querier, pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{querier: querier, pool: pool, logger: logger}
}

// Load returns the full ordered message sequence for a thread.
// Unknown threads yield an empty slice, not an error.
func (s *Store) Load(ctx context.Context, threadID string) ([]Message, error) {
	if threadID == "" {
		return nil, ErrEmptyThreadID
	}

	rows, err := s.querier.ListMessages(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("loading thread %s: %w", threadID, err)
	}

	messages := make([]Message, 0, len(rows))
	for _, row := range rows {
		msg, err := rowToMessage(row)
		if err != nil {
			// A malformed row would poison every later turn; fail loudly
			// instead of silently dropping history entries.
			return nil, fmt.Errorf("decoding message %s: %w", row.ID, err)
		}
		messages = append(messages, msg)
	}

	s.logger.Debug("loaded thread history", "thread_id", threadID, "count", len(messages))
	return messages, nil
}

// Append durably persists messages at the end of the thread's sequence.
// The whole batch commits atomically: either every new message is stored or
// none is. Messages whose IDs are already persisted are skipped, so
// replaying an already-committed batch cannot duplicate history.
func (s *Store) Append(ctx context.Context, threadID string, messages []Message) error {
	if threadID == "" {
		return ErrEmptyThreadID
	}
	if len(messages) == 0 {
		return nil
	}

	// Unit tests run without a pool; production always has one.
	if s.pool == nil {
		return s.appendWith(ctx, s.querier, threadID, messages)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning append transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil {
			s.logger.Debug("append rollback (may be already committed)", "error", err)
		}
	}()

	txQuerier := NewPostgresQuerier(tx)
	if err := s.appendWith(ctx, txQuerier, threadID, messages); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}
	return nil
}

// appendWith performs the append steps against q, which is either the plain
// querier (tests) or a transaction-scoped one.
func (s *Store) appendWith(ctx context.Context, q Querier, threadID string, messages []Message) error {
	if err := q.EnsureThread(ctx, threadID); err != nil {
		return fmt.Errorf("ensuring thread %s: %w", threadID, err)
	}
	if err := q.LockThread(ctx, threadID); err != nil {
		return fmt.Errorf("locking thread %s: %w", threadID, err)
	}

	maxSeq, err := q.MaxSequence(ctx, threadID)
	if err != nil {
		return fmt.Errorf("reading max sequence for %s: %w", threadID, err)
	}

	inserted := 0
	for i, msg := range messages {
		if msg.ID == uuid.Nil {
			return fmt.Errorf("message at index %d has no ID", i)
		}
		row, err := messageToRow(threadID, msg)
		if err != nil {
			return fmt.Errorf("encoding message %s: %w", msg.ID, err)
		}
		row.SequenceNumber = maxSeq + int32(inserted) + 1 //nolint:gosec // bounded by batch size

		ok, err := q.InsertMessage(ctx, InsertMessageParams{Row: row})
		if err != nil {
			return fmt.Errorf("inserting message %s: %w", msg.ID, err)
		}
		if ok {
			inserted++
		}
	}

	if inserted > 0 {
		if err := q.TouchThread(ctx, threadID, maxSeq+int32(inserted)); err != nil { //nolint:gosec
			return fmt.Errorf("updating thread %s: %w", threadID, err)
		}
	}

	s.logger.Debug("appended messages",
		"thread_id", threadID,
		"requested", len(messages),
		"inserted", inserted,
	)
	return nil
}

// List returns threads ordered by last activity, newest first.
func (s *Store) List(ctx context.Context, limit, offset int32) ([]Thread, error) {
	rows, err := s.querier.ListThreads(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}

	threads := make([]Thread, 0, len(rows))
	for _, row := range rows {
		threads = append(threads, rowToThread(row))
	}
	return threads, nil
}

// Get returns a single thread's metadata.
func (s *Store) Get(ctx context.Context, threadID string) (Thread, error) {
	if threadID == "" {
		return Thread{}, ErrEmptyThreadID
	}
	row, err := s.querier.GetThread(ctx, threadID)
	if err != nil {
		return Thread{}, fmt.Errorf("getting thread %s: %w", threadID, err)
	}
	return rowToThread(row), nil
}

// SaveTitle stores a human-friendly title for the thread.
func (s *Store) SaveTitle(ctx context.Context, threadID, title string) error {
	if threadID == "" {
		return ErrEmptyThreadID
	}
	runes := []rune(title)
	if len(runes) > TitleMaxLength+3 {
		title = string(runes[:TitleMaxLength]) + "..."
	}
	if err := s.querier.SetTitle(ctx, threadID, title); err != nil {
		return fmt.Errorf("saving title for %s: %w", threadID, err)
	}
	return nil
}

// Title returns the stored title, or a fallback derived from the thread ID.
func (s *Store) Title(ctx context.Context, threadID string) string {
	row, err := s.querier.GetThread(ctx, threadID)
	if err == nil && row.Title != "" {
		return row.Title
	}
	short := threadID
	if len(short) > 8 {
		short = short[:8]
	}
	return "Chat " + short
}

func rowToThread(row ThreadRow) Thread {
	return Thread{
		ID:           row.ID,
		Title:        row.Title,
		MessageCount: int(row.MessageCount),
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func rowToMessage(row MessageRow) (Message, error) {
	msg := Message{
		ID:         row.ID,
		Role:       Role(row.Role),
		Content:    row.Content,
		ToolCallID: row.ToolCallID,
		CreatedAt:  row.CreatedAt,
	}
	if len(row.ToolCalls) > 0 {
		if err := json.Unmarshal(row.ToolCalls, &msg.ToolCalls); err != nil {
			return Message{}, fmt.Errorf("unmarshaling tool calls: %w", err)
		}
	}
	return msg, nil
}

func messageToRow(threadID string, msg Message) (MessageRow, error) {
	row := MessageRow{
		ID:         msg.ID,
		ThreadID:   threadID,
		Role:       string(msg.Role),
		Content:    msg.Content,
		ToolCallID: msg.ToolCallID,
	}
	if len(msg.ToolCalls) > 0 {
		data, err := json.Marshal(msg.ToolCalls)
		if err != nil {
			return MessageRow{}, fmt.Errorf("marshaling tool calls: %w", err)
		}
		row.ToolCalls = data
	}
	return row, nil
}
