package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/arahq/ara/internal/engine"
	"github.com/arahq/ara/internal/log"
	"github.com/arahq/ara/internal/thread"
)

// MaxMessageLength bounds one user message.
const MaxMessageLength = 32 * 1024

// Chatter runs conversational turns. *engine.Engine implements it.
type Chatter interface {
	Submit(ctx context.Context, threadID, input string) ([]thread.Message, error)
	SubmitStream(ctx context.Context, threadID, input string, callback engine.StreamCallback) ([]thread.Message, error)
}

var _ Chatter = (*engine.Engine)(nil)

// ChatHandler serves the chat endpoints.
type ChatHandler struct {
	engine Chatter
	logger log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(engine Chatter, logger log.Logger) *ChatHandler {
	return &ChatHandler{engine: engine, logger: logger}
}

// RegisterRoutes registers chat routes on mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.handleChat)
	mux.HandleFunc("POST /api/chat/stream", h.handleStream)
}

// ChatRequest is the request body for both chat endpoints. An empty
// thread_id starts a new conversation.
type ChatRequest struct {
	ThreadID string `json:"thread_id"`
	Message  string `json:"message"`
}

// ChatResponse is the synchronous response: the final answer plus every
// message the turn produced.
type ChatResponse struct {
	ThreadID string           `json:"thread_id"`
	Response string           `json:"response"`
	Messages []thread.Message `json:"messages"`
}

// decodeChatRequest validates the shared request shape. A generated
// thread ID is returned for requests that start a new conversation.
func decodeChatRequest(r *http.Request) (ChatRequest, error) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	if req.Message == "" {
		return req, errors.New("message is required")
	}
	if len(req.Message) > MaxMessageLength {
		return req, fmt.Errorf("message too long (max %d bytes)", MaxMessageLength)
	}
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}
	return req, nil
}

func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	req, err := decodeChatRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	turn, err := h.engine.Submit(r.Context(), req.ThreadID, req.Message)
	if err != nil {
		h.logger.Error("chat turn failed", "thread_id", req.ThreadID, "error", err)
		writeError(w, http.StatusBadGateway, "turn_failed", "the assistant could not complete this turn")
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{
		ThreadID: req.ThreadID,
		Response: turn[len(turn)-1].Content,
		Messages: turn,
	})
}

// SSE event payloads. Event names: chunk, tool_call, tool_result, done,
// error.
type (
	// SSEChunkData carries one text delta.
	SSEChunkData struct {
		Text string `json:"text"`
	}

	// SSEToolData announces tool activity.
	SSEToolData struct {
		Tool   string `json:"tool"`
		CallID string `json:"call_id"`
	}

	// SSEDoneData closes a successful stream.
	SSEDoneData struct {
		ThreadID string `json:"thread_id"`
		Response string `json:"response"`
	}

	// SSEErrorData closes a failed stream.
	SSEErrorData struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
)

// handleStream runs a turn with SSE delivery: chunk events stream the
// answer as it is generated, tool events mark tool activity, and a final
// done event carries the authoritative response.
func (h *ChatHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.logger.Error("streaming not supported by response writer")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	req, err := decodeChatRequest(r)
	if err != nil {
		writeSSE(w, flusher, "error", SSEErrorData{Code: "invalid_request", Message: err.Error()})
		return
	}

	h.logger.Debug("SSE stream started", "thread_id", req.ThreadID)

	turn, err := h.engine.SubmitStream(r.Context(), req.ThreadID, req.Message, func(ev engine.Event) {
		switch ev.Type {
		case engine.EventDelta:
			writeSSE(w, flusher, "chunk", SSEChunkData{Text: ev.Delta})
		case engine.EventToolCall:
			writeSSE(w, flusher, "tool_call", SSEToolData{Tool: ev.Tool, CallID: ev.CallID})
		case engine.EventToolResult:
			writeSSE(w, flusher, "tool_result", SSEToolData{Tool: ev.Tool, CallID: ev.CallID})
		}
	})
	if err != nil {
		h.logger.Error("stream turn failed", "thread_id", req.ThreadID, "error", err)
		writeSSE(w, flusher, "error", SSEErrorData{Code: "turn_failed", Message: "the assistant could not complete this turn"})
		return
	}

	writeSSE(w, flusher, "done", SSEDoneData{
		ThreadID: req.ThreadID,
		Response: turn[len(turn)-1].Content,
	})
	h.logger.Debug("SSE stream completed", "thread_id", req.ThreadID)
}

// writeSSE writes one event and flushes it to the client.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}
