package thread

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/arahq/ara/internal/log"
)

// mockQuerier implements Querier for unit tests.
type mockQuerier struct {
	// Error configuration
	ensureThreadErr  error
	lockThreadErr    error
	maxSequenceErr   error
	insertMessageErr error
	touchThreadErr   error
	listMessagesErr  error
	listThreadsErr   error
	setTitleErr      error
	getThreadErr     error

	// Return values
	maxSequenceResult  int32
	listMessagesResult []MessageRow
	listThreadsResult  []ThreadRow
	getThreadResult    ThreadRow
	existingIDs        map[uuid.UUID]bool // IDs InsertMessage reports as duplicates

	// Call tracking
	ensureThreadCalls int
	lockThreadCalls   int
	maxSequenceCalls  int
	insertCalls       int
	touchThreadCalls  int

	insertedRows   []MessageRow
	lastTouchCount int32
	lastTitle      string
}

func (m *mockQuerier) EnsureThread(ctx context.Context, threadID string) error {
	m.ensureThreadCalls++
	return m.ensureThreadErr
}

func (m *mockQuerier) LockThread(ctx context.Context, threadID string) error {
	m.lockThreadCalls++
	return m.lockThreadErr
}

func (m *mockQuerier) MaxSequence(ctx context.Context, threadID string) (int32, error) {
	m.maxSequenceCalls++
	if m.maxSequenceErr != nil {
		return 0, m.maxSequenceErr
	}
	return m.maxSequenceResult, nil
}

func (m *mockQuerier) InsertMessage(ctx context.Context, arg InsertMessageParams) (bool, error) {
	m.insertCalls++
	if m.insertMessageErr != nil {
		return false, m.insertMessageErr
	}
	if m.existingIDs[arg.Row.ID] {
		return false, nil
	}
	m.insertedRows = append(m.insertedRows, arg.Row)
	return true, nil
}

func (m *mockQuerier) TouchThread(ctx context.Context, threadID string, messageCount int32) error {
	m.touchThreadCalls++
	m.lastTouchCount = messageCount
	return m.touchThreadErr
}

func (m *mockQuerier) ListMessages(ctx context.Context, threadID string) ([]MessageRow, error) {
	if m.listMessagesErr != nil {
		return nil, m.listMessagesErr
	}
	return m.listMessagesResult, nil
}

func (m *mockQuerier) ListThreads(ctx context.Context, limit, offset int32) ([]ThreadRow, error) {
	if m.listThreadsErr != nil {
		return nil, m.listThreadsErr
	}
	return m.listThreadsResult, nil
}

func (m *mockQuerier) SetTitle(ctx context.Context, threadID, title string) error {
	m.lastTitle = title
	return m.setTitleErr
}

func (m *mockQuerier) GetThread(ctx context.Context, threadID string) (ThreadRow, error) {
	if m.getThreadErr != nil {
		return ThreadRow{}, m.getThreadErr
	}
	return m.getThreadResult, nil
}

func newTestStore(q Querier) *Store {
	return NewStore(q, nil, log.NewNop())
}

func TestNewStore(t *testing.T) {
	t.Run("uses default logger when nil provided", func(t *testing.T) {
		store := NewStore(&mockQuerier{}, nil, nil)
		if store.logger == nil {
			t.Error("expected default logger to be set")
		}
	})
}

func TestStore_Append(t *testing.T) {
	ctx := context.Background()

	t.Run("assigns contiguous sequence numbers after existing max", func(t *testing.T) {
		querier := &mockQuerier{maxSequenceResult: 4}
		store := newTestStore(querier)

		msgs := []Message{
			NewUserMessage("question"),
			NewAssistantMessage("answer", nil),
		}
		if err := store.Append(ctx, "t1", msgs); err != nil {
			t.Fatalf("Append() error = %v", err)
		}

		if querier.ensureThreadCalls != 1 || querier.lockThreadCalls != 1 {
			t.Errorf("ensure/lock calls = %d/%d, want 1/1",
				querier.ensureThreadCalls, querier.lockThreadCalls)
		}
		if len(querier.insertedRows) != 2 {
			t.Fatalf("inserted %d rows, want 2", len(querier.insertedRows))
		}
		for i, want := range []int32{5, 6} {
			if got := querier.insertedRows[i].SequenceNumber; got != want {
				t.Errorf("row %d sequence = %d, want %d", i, got, want)
			}
		}
		if querier.lastTouchCount != 6 {
			t.Errorf("touch count = %d, want 6", querier.lastTouchCount)
		}
	})

	t.Run("replayed messages are skipped without consuming sequence numbers", func(t *testing.T) {
		already := NewUserMessage("seen before")
		fresh := NewAssistantMessage("new", nil)
		querier := &mockQuerier{
			maxSequenceResult: 7,
			existingIDs:       map[uuid.UUID]bool{already.ID: true},
		}
		store := newTestStore(querier)

		if err := store.Append(ctx, "t1", []Message{already, fresh}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}

		if len(querier.insertedRows) != 1 {
			t.Fatalf("inserted %d rows, want 1", len(querier.insertedRows))
		}
		if got := querier.insertedRows[0].SequenceNumber; got != 8 {
			t.Errorf("fresh message sequence = %d, want 8", got)
		}
		if querier.lastTouchCount != 8 {
			t.Errorf("touch count = %d, want 8", querier.lastTouchCount)
		}
	})

	t.Run("fully replayed batch does not touch the thread", func(t *testing.T) {
		msg := NewUserMessage("replay")
		querier := &mockQuerier{
			existingIDs: map[uuid.UUID]bool{msg.ID: true},
		}
		store := newTestStore(querier)

		if err := store.Append(ctx, "t1", []Message{msg}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if querier.touchThreadCalls != 0 {
			t.Errorf("touchThreadCalls = %d, want 0", querier.touchThreadCalls)
		}
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		querier := &mockQuerier{}
		store := newTestStore(querier)

		if err := store.Append(ctx, "t1", nil); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
		if querier.ensureThreadCalls != 0 {
			t.Errorf("ensureThreadCalls = %d, want 0", querier.ensureThreadCalls)
		}
	})

	t.Run("empty thread ID rejected", func(t *testing.T) {
		store := newTestStore(&mockQuerier{})
		err := store.Append(ctx, "", []Message{NewUserMessage("x")})
		if !errors.Is(err, ErrEmptyThreadID) {
			t.Errorf("Append() error = %v, want ErrEmptyThreadID", err)
		}
	})

	t.Run("message without ID rejected", func(t *testing.T) {
		store := newTestStore(&mockQuerier{})
		err := store.Append(ctx, "t1", []Message{{Role: RoleUser, Content: "no id"}})
		if err == nil || !strings.Contains(err.Error(), "has no ID") {
			t.Errorf("Append() error = %v, want no-ID error", err)
		}
	})

	t.Run("insert failure surfaces", func(t *testing.T) {
		dbErr := errors.New("connection reset")
		querier := &mockQuerier{insertMessageErr: dbErr}
		store := newTestStore(querier)

		err := store.Append(ctx, "t1", []Message{NewUserMessage("x")})
		if !errors.Is(err, dbErr) {
			t.Errorf("Append() error = %v, want wrapped %v", err, dbErr)
		}
	})

	t.Run("lock failure surfaces before any insert", func(t *testing.T) {
		lockErr := errors.New("lock timeout")
		querier := &mockQuerier{lockThreadErr: lockErr}
		store := newTestStore(querier)

		err := store.Append(ctx, "t1", []Message{NewUserMessage("x")})
		if !errors.Is(err, lockErr) {
			t.Errorf("Append() error = %v, want wrapped %v", err, lockErr)
		}
		if querier.insertCalls != 0 {
			t.Errorf("insertCalls = %d, want 0", querier.insertCalls)
		}
	})
}

func TestStore_Load(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown thread yields empty history", func(t *testing.T) {
		store := newTestStore(&mockQuerier{})
		msgs, err := store.Load(ctx, "never-seen")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(msgs) != 0 {
			t.Errorf("Load() returned %d messages, want 0", len(msgs))
		}
	})

	t.Run("round-trips tool calls through the row codec", func(t *testing.T) {
		original := NewAssistantMessage("", []ToolCall{
			{ID: "call_1", Name: "web_search", Arguments: []byte(`{"query":"rates"}`)},
		})
		row, err := messageToRow("t1", original)
		if err != nil {
			t.Fatalf("messageToRow() error = %v", err)
		}
		row.CreatedAt = time.Now()

		store := newTestStore(&mockQuerier{listMessagesResult: []MessageRow{row}})
		msgs, err := store.Load(ctx, "t1")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(msgs) != 1 {
			t.Fatalf("Load() returned %d messages, want 1", len(msgs))
		}
		got := msgs[0]
		if got.ID != original.ID || got.Role != RoleAssistant {
			t.Errorf("decoded message = %+v", got)
		}
		if len(got.ToolCalls) != 1 || got.ToolCalls[0].ID != "call_1" || got.ToolCalls[0].Name != "web_search" {
			t.Errorf("decoded tool calls = %+v", got.ToolCalls)
		}
	})

	t.Run("malformed tool_calls JSON fails loudly", func(t *testing.T) {
		row := MessageRow{
			ID:        uuid.New(),
			ThreadID:  "t1",
			Role:      string(RoleAssistant),
			ToolCalls: []byte(`{not json`),
		}
		store := newTestStore(&mockQuerier{listMessagesResult: []MessageRow{row}})
		if _, err := store.Load(ctx, "t1"); err == nil {
			t.Error("Load() expected decode error, got nil")
		}
	})

	t.Run("empty thread ID rejected", func(t *testing.T) {
		store := newTestStore(&mockQuerier{})
		if _, err := store.Load(ctx, ""); !errors.Is(err, ErrEmptyThreadID) {
			t.Errorf("Load() error = %v, want ErrEmptyThreadID", err)
		}
	})
}

func TestStore_SaveTitle(t *testing.T) {
	ctx := context.Background()

	t.Run("long titles truncated", func(t *testing.T) {
		querier := &mockQuerier{}
		store := newTestStore(querier)

		long := strings.Repeat("x", 200)
		if err := store.SaveTitle(ctx, "t1", long); err != nil {
			t.Fatalf("SaveTitle() error = %v", err)
		}
		want := strings.Repeat("x", TitleMaxLength) + "..."
		if querier.lastTitle != want {
			t.Errorf("stored title = %q, want %q", querier.lastTitle, want)
		}
	})
}

func TestStore_Title(t *testing.T) {
	ctx := context.Background()

	t.Run("returns stored title", func(t *testing.T) {
		querier := &mockQuerier{getThreadResult: ThreadRow{ID: "t1", Title: "Market check"}}
		store := newTestStore(querier)
		if got := store.Title(ctx, "t1"); got != "Market check" {
			t.Errorf("Title() = %q, want %q", got, "Market check")
		}
	})

	t.Run("falls back to thread ID prefix", func(t *testing.T) {
		querier := &mockQuerier{getThreadErr: ErrThreadNotFound}
		store := newTestStore(querier)
		if got := store.Title(ctx, "0123456789abcdef"); got != "Chat 01234567" {
			t.Errorf("Title() = %q, want %q", got, "Chat 01234567")
		}
	})
}
