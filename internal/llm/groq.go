package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"github.com/sashabaranov/go-openai"

	"github.com/arahq/ara/internal/thread"
)

// GroqBaseURL is Groq's OpenAI-compatible endpoint.
const GroqBaseURL = "https://api.groq.com/openai/v1"

// ErrNoModelAvailable indicates every key and model combination failed.
var ErrNoModelAvailable = errors.New("no chat model available")

// Config configures the Groq client.
type Config struct {
	// APIKey is the primary key; BackupAPIKey is optional and tried
	// after the primary key is exhausted.
	APIKey       string
	BackupAPIKey string

	// Model is tried first, FallbackModel second, per key.
	Model         string
	FallbackModel string

	// BaseURL overrides GroqBaseURL, mainly for tests.
	BaseURL string

	// HTTPClient overrides the default transport when set.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// candidate is one (client, model) pair in the fallback chain.
type candidate struct {
	client *openai.Client
	model  string
}

// GroqClient implements Client against Groq with a fixed fallback chain:
// primary model on the primary key, fallback model on the primary key,
// then the same pair on the backup key.
type GroqClient struct {
	chain  []candidate
	logger *slog.Logger
}

var _ Client = (*GroqClient)(nil)

// NewGroqClient builds the fallback chain from cfg. At least one API key
// and the primary model are required.
func NewGroqClient(cfg Config) (*GroqClient, error) {
	if cfg.APIKey == "" && cfg.BackupAPIKey == "" {
		return nil, errors.New("llm: at least one API key is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm: model name is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = GroqBaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	models := []string{cfg.Model}
	if cfg.FallbackModel != "" && cfg.FallbackModel != cfg.Model {
		models = append(models, cfg.FallbackModel)
	}

	var chain []candidate
	for _, key := range []string{cfg.APIKey, cfg.BackupAPIKey} {
		if key == "" {
			continue
		}
		clientCfg := openai.DefaultConfig(key)
		clientCfg.BaseURL = cfg.BaseURL
		if cfg.HTTPClient != nil {
			clientCfg.HTTPClient = cfg.HTTPClient
		}
		client := openai.NewClientWithConfig(clientCfg)
		for _, model := range models {
			chain = append(chain, candidate{client: client, model: model})
		}
	}

	return &GroqClient{chain: chain, logger: logger}, nil
}

// Complete walks the fallback chain until one candidate answers.
// Context cancellation stops the chain immediately.
func (g *GroqClient) Complete(ctx context.Context, req Request) (thread.Message, error) {
	var lastErr error
	for _, cand := range g.chain {
		resp, err := cand.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       cand.model,
			Messages:    toAPIMessages(req),
			Tools:       toAPITools(req.Tools),
			Temperature: req.Temperature,
		})
		if err != nil {
			if ctx.Err() != nil {
				return thread.Message{}, fmt.Errorf("completion canceled: %w", ctx.Err())
			}
			g.logger.Warn("completion failed, trying next candidate", "model", cand.model, "error", err)
			lastErr = err
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New("empty choices in completion response")
			continue
		}
		g.logger.Debug("completion succeeded", "model", cand.model)
		return fromAPIMessage(resp.Choices[0].Message), nil
	}
	return thread.Message{}, fmt.Errorf("%w: %w", ErrNoModelAvailable, lastErr)
}

// CompleteStream walks the fallback chain for stream creation, then
// consumes the stream, forwarding text deltas and accumulating tool
// calls by index. A candidate is only skipped when the stream cannot
// be opened; mid-stream failures surface to the caller so deltas are
// never delivered twice.
func (g *GroqClient) CompleteStream(ctx context.Context, req Request, onDelta func(string)) (thread.Message, error) {
	var lastErr error
	for _, cand := range g.chain {
		stream, err := cand.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:       cand.model,
			Messages:    toAPIMessages(req),
			Tools:       toAPITools(req.Tools),
			Temperature: req.Temperature,
			Stream:      true,
		})
		if err != nil {
			if ctx.Err() != nil {
				return thread.Message{}, fmt.Errorf("stream canceled: %w", ctx.Err())
			}
			g.logger.Warn("stream open failed, trying next candidate", "model", cand.model, "error", err)
			lastErr = err
			continue
		}
		msg, err := g.consumeStream(ctx, stream, onDelta)
		if err != nil {
			return thread.Message{}, err
		}
		g.logger.Debug("stream completed", "model", cand.model)
		return msg, nil
	}
	return thread.Message{}, fmt.Errorf("%w: %w", ErrNoModelAvailable, lastErr)
}

func (g *GroqClient) consumeStream(ctx context.Context, stream *openai.ChatCompletionStream, onDelta func(string)) (thread.Message, error) {
	defer stream.Close()

	var text string
	partial := make(map[int]*thread.ToolCall)
	partialArgs := make(map[int]string)

	for {
		select {
		case <-ctx.Done():
			return thread.Message{}, fmt.Errorf("stream canceled: %w", ctx.Err())
		default:
		}

		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return thread.Message{}, fmt.Errorf("stream recv: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			text += delta.Content
			if onDelta != nil {
				onDelta(delta.Content)
			}
		}

		for _, tc := range delta.ToolCalls {
			if tc.Index == nil {
				continue
			}
			idx := *tc.Index
			existing, ok := partial[idx]
			if !ok {
				existing = &thread.ToolCall{}
				partial[idx] = existing
			}
			if tc.ID != "" {
				existing.ID = tc.ID
			}
			if tc.Function.Name != "" {
				existing.Name = tc.Function.Name
			}
			partialArgs[idx] += tc.Function.Arguments
		}
	}

	indices := make([]int, 0, len(partial))
	for idx := range partial {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	var calls []thread.ToolCall
	for _, idx := range indices {
		tc := *partial[idx]
		tc.Arguments = json.RawMessage(partialArgs[idx])
		calls = append(calls, tc)
	}

	return thread.NewAssistantMessage(text, calls), nil
}

func toAPIMessages(req Request) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		apiMsg := openai.ChatCompletionMessage{
			Role:       string(msg.Role),
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		for _, tc := range msg.ToolCalls {
			apiMsg.ToolCalls = append(apiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		out = append(out, apiMsg)
	}
	return out
}

func toAPITools(tools []ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	return out
}

func fromAPIMessage(msg openai.ChatCompletionMessage) thread.Message {
	var calls []thread.ToolCall
	for _, tc := range msg.ToolCalls {
		calls = append(calls, thread.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return thread.NewAssistantMessage(msg.Content, calls)
}
