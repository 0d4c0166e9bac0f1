// Package llm provides the chat model client used by the conversation
// engine. The only implementation talks to Groq's OpenAI-compatible API
// with an automatic key and model fallback chain.
package llm

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/arahq/ara/internal/thread"
)

// ToolDefinition declares one callable tool to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// Request carries everything the model needs for one completion:
// the system prompt, the ordered conversation history, and the tool
// schemas the model is allowed to call.
type Request struct {
	System      string
	Messages    []thread.Message
	Tools       []ToolDefinition
	Temperature float32
}

// Client produces one assistant message per invocation. The message may
// contain text, tool calls, or both.
type Client interface {
	Complete(ctx context.Context, req Request) (thread.Message, error)

	// CompleteStream behaves like Complete but delivers text deltas to
	// onDelta as they arrive. The returned message is the fully
	// assembled assistant message.
	CompleteStream(ctx context.Context, req Request, onDelta func(string)) (thread.Message, error)
}
