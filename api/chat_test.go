package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arahq/ara/internal/engine"
	"github.com/arahq/ara/internal/log"
	"github.com/arahq/ara/internal/thread"
)

// stubChatter answers every turn with a fixed script and records the
// thread IDs it saw.
type stubChatter struct {
	turn      []thread.Message
	events    []engine.Event
	err       error
	threadIDs []string
}

func (s *stubChatter) Submit(ctx context.Context, threadID, input string) ([]thread.Message, error) {
	return s.SubmitStream(ctx, threadID, input, nil)
}

func (s *stubChatter) SubmitStream(_ context.Context, threadID, _ string, callback engine.StreamCallback) ([]thread.Message, error) {
	s.threadIDs = append(s.threadIDs, threadID)
	if s.err != nil {
		return nil, s.err
	}
	if callback != nil {
		for _, ev := range s.events {
			callback(ev)
		}
	}
	return s.turn, nil
}

func chatTurn(answer string) []thread.Message {
	return []thread.Message{
		thread.NewUserMessage("question"),
		thread.NewAssistantMessage(answer, nil),
	}
}

func TestChatHandler_HandleChat(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		chatter := &stubChatter{turn: chatTurn("the answer")}
		h := NewChatHandler(chatter, log.NewNop())

		body := strings.NewReader(`{"thread_id":"thread-1","message":"question"}`)
		w := httptest.NewRecorder()
		h.handleChat(w, httptest.NewRequest(http.MethodPost, "/api/chat", body))

		require.Equal(t, http.StatusOK, w.Code)
		var resp ChatResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "thread-1", resp.ThreadID)
		assert.Equal(t, "the answer", resp.Response)
		assert.Len(t, resp.Messages, 2)
	})

	t.Run("empty thread ID starts a new thread", func(t *testing.T) {
		chatter := &stubChatter{turn: chatTurn("hi")}
		h := NewChatHandler(chatter, log.NewNop())

		body := strings.NewReader(`{"message":"hello"}`)
		w := httptest.NewRecorder()
		h.handleChat(w, httptest.NewRequest(http.MethodPost, "/api/chat", body))

		require.Equal(t, http.StatusOK, w.Code)
		var resp ChatResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.ThreadID)
		assert.Equal(t, []string{resp.ThreadID}, chatter.threadIDs)
	})

	t.Run("missing message rejected", func(t *testing.T) {
		h := NewChatHandler(&stubChatter{}, log.NewNop())

		body := strings.NewReader(`{"thread_id":"thread-1"}`)
		w := httptest.NewRecorder()
		h.handleChat(w, httptest.NewRequest(http.MethodPost, "/api/chat", body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid body rejected", func(t *testing.T) {
		h := NewChatHandler(&stubChatter{}, log.NewNop())

		body := strings.NewReader(`{broken`)
		w := httptest.NewRecorder()
		h.handleChat(w, httptest.NewRequest(http.MethodPost, "/api/chat", body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("engine failure maps to bad gateway", func(t *testing.T) {
		chatter := &stubChatter{err: errors.New("model down")}
		h := NewChatHandler(chatter, log.NewNop())

		body := strings.NewReader(`{"thread_id":"thread-1","message":"question"}`)
		w := httptest.NewRecorder()
		h.handleChat(w, httptest.NewRequest(http.MethodPost, "/api/chat", body))

		assert.Equal(t, http.StatusBadGateway, w.Code)
		// Internal error detail must not leak to the client.
		assert.NotContains(t, w.Body.String(), "model down")
	})
}

func TestChatHandler_HandleStream(t *testing.T) {
	t.Run("events arrive in order", func(t *testing.T) {
		chatter := &stubChatter{
			turn: chatTurn("streamed answer"),
			events: []engine.Event{
				{Type: engine.EventToolCall, Tool: "web_search", CallID: "c1"},
				{Type: engine.EventToolResult, Tool: "web_search", CallID: "c1"},
				{Type: engine.EventDelta, Delta: "streamed "},
				{Type: engine.EventDelta, Delta: "answer"},
			},
		}
		h := NewChatHandler(chatter, log.NewNop())

		body := strings.NewReader(`{"thread_id":"thread-1","message":"question"}`)
		w := httptest.NewRecorder()
		h.handleStream(w, httptest.NewRequest(http.MethodPost, "/api/chat/stream", body))

		assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
		output := w.Body.String()
		assert.Contains(t, output, "event: tool_call")
		assert.Contains(t, output, "event: tool_result")
		assert.Contains(t, output, "event: chunk")
		assert.Contains(t, output, "event: done")
		assert.Contains(t, output, `"response":"streamed answer"`)
		// done must come last
		assert.True(t, strings.HasSuffix(strings.TrimSpace(output),
			`data: {"thread_id":"thread-1","response":"streamed answer"}`))
	})

	t.Run("turn failure emits an error event", func(t *testing.T) {
		chatter := &stubChatter{err: errors.New("model down")}
		h := NewChatHandler(chatter, log.NewNop())

		body := strings.NewReader(`{"thread_id":"thread-1","message":"question"}`)
		w := httptest.NewRecorder()
		h.handleStream(w, httptest.NewRequest(http.MethodPost, "/api/chat/stream", body))

		output := w.Body.String()
		assert.Contains(t, output, "event: error")
		assert.NotContains(t, output, "event: done")
		assert.NotContains(t, output, "model down")
	})

	t.Run("invalid request emits an error event", func(t *testing.T) {
		h := NewChatHandler(&stubChatter{}, log.NewNop())

		body := strings.NewReader(`{"thread_id":"thread-1"}`)
		w := httptest.NewRecorder()
		h.handleStream(w, httptest.NewRequest(http.MethodPost, "/api/chat/stream", body))

		assert.Contains(t, w.Body.String(), "event: error")
	})
}
