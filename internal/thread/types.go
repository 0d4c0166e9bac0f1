// Package thread provides the conversation data model and checkpoint
// persistence for ara.
//
// A thread is a logically isolated conversation: an append-only, strictly
// ordered message sequence plus a document collection in the vector index.
// Message ordering within a thread is the sole source of truth for
// conversation state; nothing may reorder or mutate persisted entries.
package thread

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	// RoleUser is a message written by the human.
	RoleUser Role = "user"

	// RoleAssistant is a model-produced message (text and/or tool calls).
	RoleAssistant Role = "assistant"

	// RoleTool is the result of executing a single tool call.
	RoleTool Role = "tool"
)

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	// ID is unique within the turn and links the eventual tool result
	// back to this request.
	ID string `json:"id"`

	// Name must match a registered tool.
	Name string `json:"name"`

	// Arguments is the raw JSON argument mapping as emitted by the model.
	Arguments json.RawMessage `json:"arguments"`
}

// Message is a single turn unit in a thread.
type Message struct {
	ID        uuid.UUID  `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID is set on tool-role messages only: the call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// NewUserMessage builds a user message with a fresh ID.
func NewUserMessage(text string) Message {
	return Message{ID: uuid.New(), Role: RoleUser, Content: text}
}

// NewAssistantMessage builds an assistant message with a fresh ID.
func NewAssistantMessage(text string, calls []ToolCall) Message {
	return Message{ID: uuid.New(), Role: RoleAssistant, Content: text, ToolCalls: calls}
}

// NewToolMessage builds a tool-result message answering callID.
func NewToolMessage(callID, content string) Message {
	return Message{ID: uuid.New(), Role: RoleTool, Content: content, ToolCallID: callID}
}

// Thread describes a conversation without its messages.
type Thread struct {
	ID           string
	Title        string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TitleMaxLength bounds generated and stored thread titles.
const TitleMaxLength = 40

// GenerateTitle derives a thread title from its first user message:
// whitespace collapsed, truncated to TitleMaxLength runes.
func GenerateTitle(firstMessage string) string {
	title := strings.Join(strings.Fields(firstMessage), " ")
	runes := []rune(title)
	if len(runes) > TitleMaxLength {
		return string(runes[:TitleMaxLength]) + "..."
	}
	return title
}

// ValidateSequence checks the structural invariant of a message sequence:
// every tool-role message must answer a tool call emitted by a preceding
// assistant message, and tool call IDs may be answered at most once.
// The sequence may be a full history or the tail of one appended to history.
func ValidateSequence(history, tail []Message) error {
	pending := make(map[string]bool) // call ID -> unanswered
	check := func(msgs []Message) error {
		for _, m := range msgs {
			switch m.Role {
			case RoleAssistant:
				for _, tc := range m.ToolCalls {
					if tc.ID == "" {
						return fmt.Errorf("assistant message %s: tool call %q has empty ID", m.ID, tc.Name)
					}
					if _, ok := pending[tc.ID]; ok {
						return fmt.Errorf("assistant message %s: duplicate tool call ID %q", m.ID, tc.ID)
					}
					pending[tc.ID] = true
				}
			case RoleTool:
				if m.ToolCallID == "" {
					return fmt.Errorf("tool message %s: empty tool_call_id", m.ID)
				}
				unanswered, ok := pending[m.ToolCallID]
				if !ok {
					return fmt.Errorf("tool message %s: orphaned result for unknown call %q", m.ID, m.ToolCallID)
				}
				if !unanswered {
					return fmt.Errorf("tool message %s: call %q already answered", m.ID, m.ToolCallID)
				}
				pending[m.ToolCallID] = false
			case RoleUser:
				// Nothing to track.
			default:
				return fmt.Errorf("message %s: unknown role %q", m.ID, m.Role)
			}
		}
		return nil
	}

	if err := check(history); err != nil {
		return err
	}
	return check(tail)
}
