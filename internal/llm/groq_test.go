package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sashabaranov/go-openai"

	"github.com/arahq/ara/internal/log"
	"github.com/arahq/ara/internal/thread"
)

func testConfig(baseURL string) Config {
	return Config{
		APIKey:        "key-primary",
		BackupAPIKey:  "key-backup",
		Model:         "llama-3.3-70b-versatile",
		FallbackModel: "llama-3.1-8b-instant",
		BaseURL:       baseURL,
		Logger:        log.NewNop(),
	}
}

func completionBody(content string, calls ...openai.ToolCall) string {
	resp := openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{
				Role:      "assistant",
				Content:   content,
				ToolCalls: calls,
			}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestNewGroqClient(t *testing.T) {
	t.Run("requires an API key", func(t *testing.T) {
		_, err := NewGroqClient(Config{Model: "m"})
		if err == nil {
			t.Fatal("expected error for missing API key")
		}
	})

	t.Run("requires a model", func(t *testing.T) {
		_, err := NewGroqClient(Config{APIKey: "k"})
		if err == nil {
			t.Fatal("expected error for missing model")
		}
	})

	t.Run("builds key-outer model-inner chain", func(t *testing.T) {
		client, err := NewGroqClient(testConfig("http://unused"))
		if err != nil {
			t.Fatalf("NewGroqClient() error = %v", err)
		}
		models := make([]string, 0, len(client.chain))
		for _, c := range client.chain {
			models = append(models, c.model)
		}
		want := []string{
			"llama-3.3-70b-versatile", "llama-3.1-8b-instant",
			"llama-3.3-70b-versatile", "llama-3.1-8b-instant",
		}
		if len(models) != len(want) {
			t.Fatalf("chain length = %d, want %d", len(models), len(want))
		}
		for i := range want {
			if models[i] != want[i] {
				t.Errorf("chain[%d] model = %s, want %s", i, models[i], want[i])
			}
		}
	})
}

func TestGroqClient_Complete(t *testing.T) {
	t.Run("returns assistant message with tool calls", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req openai.ChatCompletionRequest
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Fatalf("decoding request: %v", err)
			}
			if len(req.Tools) != 1 || req.Tools[0].Function.Name != "web_search" {
				t.Errorf("tools not forwarded: %+v", req.Tools)
			}
			if req.Messages[0].Role != "system" {
				t.Errorf("system prompt not first, got role %s", req.Messages[0].Role)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(completionBody("", openai.ToolCall{
				ID:   "call_1",
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      "web_search",
					Arguments: `{"query":"go"}`,
				},
			})))
		}))
		defer srv.Close()

		client, err := NewGroqClient(testConfig(srv.URL))
		if err != nil {
			t.Fatalf("NewGroqClient() error = %v", err)
		}

		msg, err := client.Complete(context.Background(), Request{
			System:   "be helpful",
			Messages: []thread.Message{thread.NewUserMessage("search go")},
			Tools: []ToolDefinition{
				{Name: "web_search", Description: "search the web"},
			},
		})
		if err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
		if msg.Role != thread.RoleAssistant {
			t.Errorf("role = %s, want assistant", msg.Role)
		}
		if len(msg.ToolCalls) != 1 || msg.ToolCalls[0].Name != "web_search" {
			t.Fatalf("tool calls = %+v", msg.ToolCalls)
		}
		if string(msg.ToolCalls[0].Arguments) != `{"query":"go"}` {
			t.Errorf("arguments = %s", msg.ToolCalls[0].Arguments)
		}
	})

	t.Run("falls back to next candidate on failure", func(t *testing.T) {
		var models []string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req openai.ChatCompletionRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			models = append(models, req.Model)
			if len(models) == 1 {
				http.Error(w, `{"error":{"message":"rate limit"}}`, http.StatusTooManyRequests)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(completionBody("fallback answer")))
		}))
		defer srv.Close()

		client, err := NewGroqClient(testConfig(srv.URL))
		if err != nil {
			t.Fatalf("NewGroqClient() error = %v", err)
		}

		msg, err := client.Complete(context.Background(), Request{
			Messages: []thread.Message{thread.NewUserMessage("hi")},
		})
		if err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
		if msg.Content != "fallback answer" {
			t.Errorf("content = %q", msg.Content)
		}
		if len(models) != 2 || models[1] != "llama-3.1-8b-instant" {
			t.Errorf("models tried = %v, want fallback model second", models)
		}
	})

	t.Run("exhausted chain returns ErrNoModelAvailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":{"message":"boom"}}`, http.StatusInternalServerError)
		}))
		defer srv.Close()

		client, err := NewGroqClient(testConfig(srv.URL))
		if err != nil {
			t.Fatalf("NewGroqClient() error = %v", err)
		}

		_, err = client.Complete(context.Background(), Request{
			Messages: []thread.Message{thread.NewUserMessage("hi")},
		})
		if err == nil || !strings.Contains(err.Error(), "no chat model available") {
			t.Errorf("Complete() error = %v, want ErrNoModelAvailable", err)
		}
	})
}

func TestGroqClient_CompleteStream(t *testing.T) {
	streamChunks := []string{
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","type":"function","function":{"name":"web_search","arguments":"{\"que"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ry\":\"x\"}"}}]}}]}`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range streamChunks {
			_, _ = w.Write([]byte("data: " + chunk + "\n\n"))
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	client, err := NewGroqClient(testConfig(srv.URL))
	if err != nil {
		t.Fatalf("NewGroqClient() error = %v", err)
	}

	var deltas []string
	msg, err := client.CompleteStream(context.Background(), Request{
		Messages: []thread.Message{thread.NewUserMessage("hi")},
	}, func(delta string) {
		deltas = append(deltas, delta)
	})
	if err != nil {
		t.Fatalf("CompleteStream() error = %v", err)
	}

	if msg.Content != "Hello" {
		t.Errorf("content = %q, want %q", msg.Content, "Hello")
	}
	if len(deltas) != 2 || deltas[0] != "Hel" || deltas[1] != "lo" {
		t.Errorf("deltas = %v", deltas)
	}
	if len(msg.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", msg.ToolCalls)
	}
	tc := msg.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "web_search" {
		t.Errorf("tool call = %+v", tc)
	}
	if string(tc.Arguments) != `{"query":"x"}` {
		t.Errorf("accumulated arguments = %s", tc.Arguments)
	}
}
