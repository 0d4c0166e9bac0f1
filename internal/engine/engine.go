// Package engine runs the conversational turn loop: it feeds the thread
// history to the model, routes tool calls through the dispatcher, and
// persists the whole turn atomically once the model produces a final
// answer. A turn moves through the states awaiting_input, model_thinking,
// tool_dispatch and terminated; model_thinking and tool_dispatch alternate
// until the model stops requesting tools or the turn budget runs out.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/arahq/ara/internal/llm"
	"github.com/arahq/ara/internal/log"
	"github.com/arahq/ara/internal/thread"
	"github.com/arahq/ara/internal/tools"
)

const (
	// DefaultMaxTurns bounds model/tool round trips within one turn.
	DefaultMaxTurns = 8

	// DefaultTemperature keeps tool-selection deterministic enough.
	DefaultTemperature = 0.25

	// FallbackMessage replaces an empty final answer.
	FallbackMessage = "I apologize, but I couldn't generate a response. Please try rephrasing your question."

	// MaxTurnsMessage ends a turn that exhausted its tool-step budget.
	MaxTurnsMessage = "I stopped before finishing: this request needed more tool steps than I can run in one turn. Please narrow the question and try again."
)

// ErrEmptyInput rejects blank user input before any model call.
var ErrEmptyInput = errors.New("input must not be empty")

// tracer resolves lazily against the global provider, so spans are
// no-ops unless observability.Setup ran.
var tracer = otel.Tracer("ara/engine")

// EventType tags streaming events.
type EventType int

const (
	// EventDelta is a fragment of assistant text.
	EventDelta EventType = iota

	// EventToolCall announces a tool invocation.
	EventToolCall

	// EventToolResult announces a completed tool invocation.
	EventToolResult
)

// Event is one streaming notification. Delta is set for EventDelta;
// Tool and CallID are set for tool events.
type Event struct {
	Type   EventType
	Delta  string
	Tool   string
	CallID string
}

// StreamCallback receives events as the turn progresses. Callbacks run on
// the turn's goroutine and must return quickly.
type StreamCallback func(Event)

// History is the checkpoint surface the engine needs. *thread.Store
// implements it.
type History interface {
	Load(ctx context.Context, threadID string) ([]thread.Message, error)
	Append(ctx context.Context, threadID string, messages []thread.Message) error
	SaveTitle(ctx context.Context, threadID, title string) error
}

// ToolRunner executes a batch of tool calls. *tools.Dispatcher
// implements it.
type ToolRunner interface {
	Dispatch(ctx context.Context, calls []tools.Call) []tools.Result
}

// Config carries the engine's dependencies and tuning.
type Config struct {
	Model    llm.Client
	History  History
	Runner   ToolRunner
	Registry *tools.Registry
	Logger   log.Logger

	// MaxTurns defaults to DefaultMaxTurns.
	MaxTurns int

	// Temperature defaults to DefaultTemperature.
	Temperature float32

	// RetryConfig and CircuitBreakerConfig take defaults when zero.
	RetryConfig          RetryConfig
	CircuitBreakerConfig CircuitBreakerConfig

	// RateLimiter defaults to 10 req/s with a burst of 30.
	RateLimiter *rate.Limiter
}

func (cfg Config) validate() error {
	if cfg.Model == nil {
		return errors.New("model client is required")
	}
	if cfg.History == nil {
		return errors.New("history store is required")
	}
	if cfg.Runner == nil {
		return errors.New("tool runner is required")
	}
	if cfg.Registry == nil {
		return errors.New("tool registry is required")
	}
	return nil
}

// Engine is the conversation loop. Safe for concurrent use; turns on the
// same thread are serialized, turns on different threads run in parallel.
type Engine struct {
	model    llm.Client
	history  History
	runner   ToolRunner
	logger   log.Logger
	toolDefs []llm.ToolDefinition

	maxTurns    int
	temperature float32

	retryConfig RetryConfig
	circuit     *CircuitBreaker
	rateLimiter *rate.Limiter

	// threadLocks holds one *sync.Mutex per active thread ID. In-process
	// single-writer only; the store's row lock covers other processes.
	threadLocks sync.Map
}

// New creates an Engine. Tool schemas are captured from the registry
// once here, so tools must all be registered before construction.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	maxTurns := cfg.MaxTurns
	if maxTurns <= 0 {
		maxTurns = DefaultMaxTurns
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = DefaultTemperature
	}
	retryConfig := cfg.RetryConfig
	if retryConfig.MaxRetries == 0 {
		retryConfig = DefaultRetryConfig()
	}
	cbConfig := cfg.CircuitBreakerConfig
	if cbConfig.FailureThreshold == 0 {
		cbConfig = DefaultCircuitBreakerConfig()
	}
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	all := cfg.Registry.All()
	toolDefs := make([]llm.ToolDefinition, 0, len(all))
	names := make([]string, 0, len(all))
	for _, t := range all {
		toolDefs = append(toolDefs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.InputSchema(),
		})
		names = append(names, t.Name())
	}

	logger.Info("engine initialized",
		"tools", strings.Join(names, ", "),
		"max_turns", maxTurns)

	return &Engine{
		model:       cfg.Model,
		history:     cfg.History,
		runner:      cfg.Runner,
		logger:      logger,
		toolDefs:    toolDefs,
		maxTurns:    maxTurns,
		temperature: temperature,
		retryConfig: retryConfig,
		circuit:     NewCircuitBreaker(cbConfig),
		rateLimiter: limiter,
	}, nil
}

// Submit runs one turn and returns the messages it produced, the user
// message first and the final assistant message last.
func (e *Engine) Submit(ctx context.Context, threadID, input string) ([]thread.Message, error) {
	return e.SubmitStream(ctx, threadID, input, nil)
}

// SubmitStream runs one turn with optional incremental delivery. Events
// mirror what will be persisted; the returned slice is authoritative.
// Nothing is persisted if the turn fails or ctx is canceled.
func (e *Engine) SubmitStream(ctx context.Context, threadID, input string, callback StreamCallback) ([]thread.Message, error) {
	if threadID == "" {
		return nil, thread.ErrEmptyThreadID
	}
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyInput
	}

	ctx, span := tracer.Start(ctx, "engine.turn",
		trace.WithAttributes(attribute.String("thread.id", threadID)))
	defer span.End()

	unlock := e.lockThread(threadID)
	defer unlock()

	history, err := e.history.Load(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	turn, err := e.runTurn(ctx, threadID, input, history, callback)
	if err != nil {
		return nil, err
	}

	if err := thread.ValidateSequence(history, turn); err != nil {
		return nil, fmt.Errorf("refusing to persist inconsistent turn: %w", err)
	}
	if err := e.history.Append(ctx, threadID, turn); err != nil {
		return nil, fmt.Errorf("persisting turn: %w", err)
	}

	if len(history) == 0 {
		if err := e.history.SaveTitle(ctx, threadID, thread.GenerateTitle(input)); err != nil {
			e.logger.Warn("saving thread title failed", "thread_id", threadID, "error", err)
		}
	}

	return turn, nil
}

// runTurn drives the model/tool loop. It only mutates the in-memory turn
// slice; persistence happens in the caller after validation.
func (e *Engine) runTurn(ctx context.Context, threadID, input string, history []thread.Message, callback StreamCallback) ([]thread.Message, error) {
	turn := []thread.Message{thread.NewUserMessage(input)}
	system := buildSystemPrompt(input)
	toolCtx := tools.ContextWithThreadID(ctx, threadID)

	var onDelta func(string)
	if callback != nil {
		onDelta = func(delta string) { callback(Event{Type: EventDelta, Delta: delta}) }
	}

	malformedRetried := false
	for step := 0; step < e.maxTurns; step++ {
		e.logger.Debug("turn state", "thread_id", threadID, "state", StateModelThinking, "step", step)

		if err := e.circuit.Allow(); err != nil {
			return nil, fmt.Errorf("service unavailable: %w", err)
		}

		req := llm.Request{
			System:      system,
			Messages:    append(append([]thread.Message{}, history...), turn...),
			Tools:       e.toolDefs,
			Temperature: e.temperature,
		}
		modelCtx, modelSpan := tracer.Start(ctx, "engine.model_call",
			trace.WithAttributes(attribute.Int("step", step)))
		assistant, err := e.completeWithRetry(modelCtx, req, onDelta)
		if err != nil {
			modelSpan.RecordError(err)
			modelSpan.End()
			e.circuit.Failure()
			return nil, err
		}
		modelSpan.End()
		e.circuit.Success()

		// Unparsable tool-call arguments get one model retry; after
		// that the calls are dropped and the text stands alone.
		if hasMalformedCalls(assistant) {
			if !malformedRetried {
				malformedRetried = true
				e.logger.Warn("model emitted malformed tool arguments, retrying once",
					"thread_id", threadID)
				continue
			}
			e.logger.Warn("model emitted malformed tool arguments twice, treating as text",
				"thread_id", threadID)
			assistant.ToolCalls = nil
		}

		if Route(assistant) == StateTerminated {
			if strings.TrimSpace(assistant.Content) == "" {
				assistant.Content = FallbackMessage
			}
			turn = append(turn, assistant)
			e.logger.Debug("turn state", "thread_id", threadID, "state", StateTerminated, "step", step)
			return turn, nil
		}

		turn = append(turn, assistant)
		e.logger.Debug("turn state", "thread_id", threadID, "state", StateToolDispatch,
			"step", step, "calls", len(assistant.ToolCalls))

		calls := make([]tools.Call, len(assistant.ToolCalls))
		for i, tc := range assistant.ToolCalls {
			calls[i] = tools.Call{ID: tc.ID, Name: tc.Name, Arguments: tc.Arguments}
			if callback != nil {
				callback(Event{Type: EventToolCall, Tool: tc.Name, CallID: tc.ID})
			}
		}

		dispatchCtx, dispatchSpan := tracer.Start(toolCtx, "engine.tool_dispatch",
			trace.WithAttributes(attribute.Int("calls", len(calls))))
		results := e.runner.Dispatch(dispatchCtx, calls)
		dispatchSpan.End()
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("turn canceled: %w", err)
		}
		for _, result := range results {
			turn = append(turn, thread.NewToolMessage(result.CallID, result.Content))
			if callback != nil {
				callback(Event{Type: EventToolResult, Tool: result.Name, CallID: result.CallID})
			}
		}
	}

	e.logger.Warn("turn budget exhausted", "thread_id", threadID, "max_turns", e.maxTurns)
	turn = append(turn, thread.NewAssistantMessage(MaxTurnsMessage, nil))
	return turn, nil
}

// hasMalformedCalls reports whether any tool call carries arguments that
// are not valid JSON. Empty arguments are fine, the dispatcher treats
// them as an empty object.
func hasMalformedCalls(msg thread.Message) bool {
	for _, tc := range msg.ToolCalls {
		if len(tc.Arguments) > 0 && !json.Valid(tc.Arguments) {
			return true
		}
	}
	return false
}

func (e *Engine) lockThread(threadID string) func() {
	v, _ := e.threadLocks.LoadOrStore(threadID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
