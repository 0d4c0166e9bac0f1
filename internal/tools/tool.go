// Package tools defines the tool contract the conversation engine
// dispatches against: named tools with JSON Schema validated inputs,
// a registry for lookup, and a dispatcher enforcing timeouts, retries,
// and error folding.
//
// Tools never surface failures as errors to the model. Every outcome,
// including validation failures and exhausted retries, is folded into
// the Result content so the model can react to it in-band.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// ErrInvalidArguments marks tool inputs rejected by schema validation.
// Dispatch treats these as permanent: no retry, immediate error-text result.
var ErrInvalidArguments = errors.New("invalid tool arguments")

// Call is one tool invocation requested by the model.
type Call struct {
	// ID links the eventual Result back to this call.
	ID string

	// Name of the tool to invoke.
	Name string

	// Arguments is the raw JSON argument object from the model.
	Arguments json.RawMessage
}

// Result is the outcome of one Call. Failures are folded into Content.
type Result struct {
	CallID  string
	Name    string
	Content string
}

// Tool is a callable capability exposed to the model.
type Tool interface {
	Name() string
	Description() string

	// InputSchema describes the argument object. The schema is sent to
	// the model and enforced before Execute runs.
	InputSchema() *jsonschema.Schema

	// Execute runs the tool with schema-valid arguments and returns the
	// payload text for the model. Errors wrapping ErrInvalidArguments
	// are not retried.
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// typedTool adapts a typed handler to the Tool interface. The schema is
// derived from In once at construction; type erasure keeps heterogeneous
// tools storable in one registry.
type typedTool[In any] struct {
	name        string
	description string
	schema      *jsonschema.Schema
	resolved    *jsonschema.Resolved
	handler     func(context.Context, In) (string, error)
}

// New builds a Tool whose input schema is derived from In.
//
// Example:
//
//	type SearchInput struct {
//		Query string `json:"query"`
//	}
//	tool, err := tools.New("web_search", "Search the web.",
//		func(ctx context.Context, in SearchInput) (string, error) { ... })
func New[In any](name, description string, handler func(context.Context, In) (string, error)) (Tool, error) {
	schema, err := jsonschema.For[In](nil)
	if err != nil {
		return nil, fmt.Errorf("deriving schema for %s: %w", name, err)
	}
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolving schema for %s: %w", name, err)
	}
	return &typedTool[In]{
		name:        name,
		description: description,
		schema:      schema,
		resolved:    resolved,
		handler:     handler,
	}, nil
}

func (t *typedTool[In]) Name() string                    { return t.name }
func (t *typedTool[In]) Description() string             { return t.description }
func (t *typedTool[In]) InputSchema() *jsonschema.Schema { return t.schema }

func (t *typedTool[In]) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	var instance any
	if err := json.Unmarshal(args, &instance); err != nil {
		return "", fmt.Errorf("%w: arguments are not valid JSON: %v", ErrInvalidArguments, err)
	}
	if err := t.resolved.Validate(instance); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	var input In
	if err := json.Unmarshal(args, &input); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}

	return t.handler(ctx, input)
}
