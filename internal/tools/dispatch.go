package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// tracer resolves lazily against the global provider; spans are no-ops
// unless tracing is configured.
var tracer = otel.Tracer("ara/tools")

const (
	// DefaultCallTimeout bounds a single tool execution attempt.
	DefaultCallTimeout = 8 * time.Second

	// DefaultMaxAttempts bounds retries of a transiently failing tool.
	DefaultMaxAttempts = 3
)

// Dispatcher executes tool calls against a registry under the dispatch
// contract: per-call timeout, bounded exponential backoff on transient
// failure, and error folding. It always returns exactly one Result per
// Call, in request order.
type Dispatcher struct {
	registry    *Registry
	callTimeout time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithCallTimeout overrides the per-attempt timeout.
func WithCallTimeout(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) { dp.callTimeout = d }
}

// WithMaxAttempts overrides the attempt budget per call.
func WithMaxAttempts(n int) DispatcherOption {
	return func(dp *Dispatcher) { dp.maxAttempts = n }
}

// NewDispatcher creates a Dispatcher over registry.
func NewDispatcher(registry *Registry, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		registry:    registry,
		callTimeout: DefaultCallTimeout,
		maxAttempts: DefaultMaxAttempts,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch executes all calls and returns their results in request order.
// Sibling calls run concurrently; one failing call never aborts another.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []Call) []Result {
	if len(calls) == 0 {
		return nil
	}

	results := make([]Result, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = d.dispatchOne(gctx, call)
			return nil
		})
	}
	// Workers never return errors; failures are folded into results.
	_ = g.Wait()
	return results
}

// dispatchOne resolves, validates, and executes a single call.
func (d *Dispatcher) dispatchOne(ctx context.Context, call Call) Result {
	ctx, span := tracer.Start(ctx, "tools.call",
		trace.WithAttributes(attribute.String("tool.name", call.Name)))
	defer span.End()

	result := Result{CallID: call.ID, Name: call.Name}

	tool, ok := d.registry.Get(call.Name)
	if !ok {
		d.logger.Warn("unknown tool requested", "tool", call.Name)
		result.Content = fmt.Sprintf("Error: unknown tool %q. Available tools: %s.", call.Name, d.toolNames())
		return result
	}

	start := time.Now()
	content, err := d.execute(ctx, tool, call)
	if err != nil {
		d.logger.Warn("tool call failed",
			"tool", call.Name,
			"call_id", call.ID,
			"duration", time.Since(start),
			"error", err,
		)
		if errors.Is(err, ErrInvalidArguments) {
			result.Content = fmt.Sprintf("Error: %v. Correct the arguments and try again.", err)
		} else {
			result.Content = fmt.Sprintf("Error: tool %s failed: %v", call.Name, err)
		}
		return result
	}

	d.logger.Debug("tool call succeeded",
		"tool", call.Name,
		"call_id", call.ID,
		"duration", time.Since(start),
	)
	result.Content = content
	return result
}

// execute runs the tool with the attempt budget. Validation failures are
// permanent; everything else is retried with exponential backoff.
func (d *Dispatcher) execute(ctx context.Context, tool Tool, call Call) (string, error) {
	operation := func() (string, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
		defer cancel()

		content, err := tool.Execute(attemptCtx, call.Arguments)
		if err != nil {
			if errors.Is(err, ErrInvalidArguments) {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		return content, nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(newExecuteBackOff(), uint64(d.maxAttempts-1)), //nolint:gosec // attempts >= 1
		ctx,
	)
	return backoff.RetryWithData(operation, policy)
}

func newExecuteBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	return b
}

func (d *Dispatcher) toolNames() string {
	names := ""
	for i, t := range d.registry.All() {
		if i > 0 {
			names += ", "
		}
		names += t.Name()
	}
	return names
}
